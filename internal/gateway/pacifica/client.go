package pacifica

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"nexwave/internal/logger"
	"nexwave/internal/pkg/circuit"
)

const (
	defaultExpiryWindowMs = 5000
	tpslExpiryWindowMs    = 60000

	// Limit legs of protective orders sit 0.1% past the trigger so a
	// stop-limit still fills through a fast tape.
	protectiveSlippage = 0.001
)

type Config struct {
	BaseURL    string
	APIKey     string
	PrivateKey string // base58 seed or keypair; empty for read-only use

	HTTPTimeout      time.Duration
	MaxRetries       int
	RetryBaseDelay   time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

func (c *Config) withDefaults() {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
}

// Client is the signed REST client. All mutating calls require a signer;
// constructing without a private key yields a read-only client that fails
// fast with ErrNoKeypair on signing paths.
type Client struct {
	baseURL    string
	apiKey     string
	signer     *Signer
	httpClient *http.Client
	breaker    *circuit.Breaker
	maxRetries int
	retryBase  time.Duration
	nowMs      func() int64
}

func NewClient(cfg Config) (*Client, error) {
	cfg.withDefaults()
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		breaker:    circuit.NewBreaker("pacifica", cfg.BreakerThreshold, cfg.BreakerCooldown),
		maxRetries: cfg.MaxRetries,
		retryBase:  cfg.RetryBaseDelay,
		nowMs:      func() int64 { return time.Now().UnixMilli() },
	}
	if cfg.PrivateKey != "" {
		signer, err := NewSigner(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		c.signer = signer
		logger.Infof("pacifica client initialized for wallet %s", signer.Account())
	} else {
		logger.Warnf("pacifica client has no private key, trading calls will fail")
	}
	return c, nil
}

// Account returns the agent wallet address, or empty when read-only.
func (c *Client) Account() string {
	if c.signer == nil {
		return ""
	}
	return c.signer.Account()
}

// CreateMarketOrder normalizes, signs, and submits a market order. The
// amount is floored to lot size and protective levels are validated
// against the entry price before signing.
func (c *Client) CreateMarketOrder(ctx context.Context, req MarketOrderRequest) (OrderAck, error) {
	if c.signer == nil {
		return OrderAck{}, ErrNoKeypair
	}
	inst := InstrumentFor(req.Symbol)
	clientOrderID := normalizeClientOrderID(req.ClientOrderID)

	amount := FloorToLot(req.Amount, inst.LotSize)
	if amount <= 0 {
		return OrderAck{}, fmt.Errorf("pacifica: %s amount %.8f floors to zero at lot %s", req.Symbol, req.Amount, inst.LotSize)
	}
	if amount != req.Amount {
		logger.Debugf("%s: amount adjusted %.8f -> %.8f (lot=%s)", req.Symbol, req.Amount, amount, inst.LotSize)
	}

	slippage := req.SlippagePercent
	if slippage <= 0 {
		slippage = 0.5
	}
	payload := map[string]any{
		"symbol":           strings.ToUpper(req.Symbol),
		"side":             strings.ToLower(req.Side),
		"amount":           formatQty(amount),
		"reduce_only":      req.ReduceOnly,
		"slippage_percent": formatQty(slippage),
		"client_order_id":  clientOrderID,
	}

	sl, tp := req.StopLoss, req.TakeProfit
	if sl > 0 || tp > 0 {
		if req.EntryPrice > 0 {
			sl, tp = ValidateTPSL(req.Symbol, strings.ToLower(req.Side), req.EntryPrice, sl, tp)
		} else {
			sl = RoundToTick(sl, inst.TickSize)
			tp = RoundToTick(tp, inst.TickSize)
		}
	}
	if sl > 0 {
		payload["stop_loss"] = protectiveLeg(req.Symbol, strings.ToLower(req.Side), sl)
	}
	if tp > 0 {
		payload["take_profit"] = protectiveLeg(req.Symbol, strings.ToLower(req.Side), tp)
	}

	body, err := c.signedBody("create_market_order", defaultExpiryWindowMs, payload)
	if err != nil {
		return OrderAck{}, err
	}
	raw, err := c.post(ctx, "/orders/create_market", body)
	if err != nil {
		return OrderAck{}, err
	}
	ack := parseAck(raw)
	ack.ClientOrderID = clientOrderID
	logger.Infof("market order created: %s %s %s (order_id=%s)", req.Symbol, req.Side, formatQty(amount), ack.OrderID)
	return ack, nil
}

// CreateLimitOrder signs and submits a limit order at a tick-aligned price.
func (c *Client) CreateLimitOrder(ctx context.Context, req LimitOrderRequest) (OrderAck, error) {
	if c.signer == nil {
		return OrderAck{}, ErrNoKeypair
	}
	inst := InstrumentFor(req.Symbol)
	clientOrderID := normalizeClientOrderID(req.ClientOrderID)

	amount := FloorToLot(req.Amount, inst.LotSize)
	if amount <= 0 {
		return OrderAck{}, fmt.Errorf("pacifica: %s amount %.8f floors to zero at lot %s", req.Symbol, req.Amount, inst.LotSize)
	}
	price := RoundToTick(req.Price, inst.TickSize)

	payload := map[string]any{
		"symbol":          strings.ToUpper(req.Symbol),
		"side":            strings.ToLower(req.Side),
		"amount":          formatQty(amount),
		"price":           formatQty(price),
		"reduce_only":     req.ReduceOnly,
		"client_order_id": clientOrderID,
	}
	body, err := c.signedBody("create_limit_order", defaultExpiryWindowMs, payload)
	if err != nil {
		return OrderAck{}, err
	}
	raw, err := c.post(ctx, "/orders/create_limit", body)
	if err != nil {
		return OrderAck{}, err
	}
	ack := parseAck(raw)
	ack.ClientOrderID = clientOrderID
	logger.Infof("limit order created: %s %s %s @ %s (order_id=%s)", req.Symbol, req.Side, formatQty(amount), formatQty(price), ack.OrderID)
	return ack, nil
}

// CancelOrder cancels an open order by venue order id.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if c.signer == nil {
		return ErrNoKeypair
	}
	payload := map[string]any{"order_id": orderID}
	body, err := c.signedBody("cancel_order", defaultExpiryWindowMs, payload)
	if err != nil {
		return err
	}
	if _, err := c.post(ctx, "/orders/cancel", body); err != nil {
		return err
	}
	logger.Infof("order canceled: %s", orderID)
	return nil
}

// GetOrderStatus fetches the venue's record of one order.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (OrderStatus, error) {
	raw, err := c.get(ctx, "/orders/"+orderID)
	if err != nil {
		return OrderStatus{}, err
	}
	node := gjson.GetBytes(raw, "data")
	if !node.Exists() {
		node = gjson.ParseBytes(raw)
	}
	return OrderStatus{
		OrderID:       node.Get("order_id").String(),
		ClientOrderID: node.Get("client_order_id").String(),
		Symbol:        node.Get("symbol").String(),
		Side:          node.Get("side").String(),
		Status:        node.Get("status").String(),
		FilledAmount:  node.Get("filled_amount").Float(),
		AveragePrice:  node.Get("average_price").Float(),
	}, nil
}

// ListPositions returns every open position on the account.
func (c *Client) ListPositions(ctx context.Context) ([]Position, error) {
	if c.signer == nil {
		return nil, ErrNoKeypair
	}
	raw, err := c.get(ctx, "/positions?account="+c.signer.Account())
	if err != nil {
		return nil, err
	}
	node := gjson.GetBytes(raw, "data")
	if !node.Exists() {
		node = gjson.ParseBytes(raw)
	}
	var positions []Position
	node.ForEach(func(_, p gjson.Result) bool {
		amount := p.Get("amount").Float()
		if amount == 0 {
			return true
		}
		side := "long"
		if p.Get("side").String() == SideAsk || amount < 0 {
			side = "short"
		}
		positions = append(positions, Position{
			Symbol:        p.Get("symbol").String(),
			Side:          side,
			Amount:        abs(amount),
			EntryPrice:    p.Get("entry_price").Float(),
			MarkPrice:     p.Get("mark_price").Float(),
			UnrealizedPnL: p.Get("unrealized_pnl").Float(),
			Leverage:      p.Get("leverage").Float(),
		})
		return true
	})
	return positions, nil
}

// SetPositionTPSL attaches or replaces protective orders on an open
// position. At least one of stopLoss, takeProfit must be positive.
func (c *Client) SetPositionTPSL(ctx context.Context, symbol, side string, stopLoss, takeProfit float64) error {
	if c.signer == nil {
		return ErrNoKeypair
	}
	if stopLoss <= 0 && takeProfit <= 0 {
		return fmt.Errorf("pacifica: set tpsl requires a stop loss or take profit")
	}
	payload := map[string]any{
		"symbol": strings.ToUpper(symbol),
		"side":   strings.ToLower(side),
	}
	if stopLoss > 0 {
		payload["stop_loss"] = protectiveLeg(symbol, strings.ToLower(side), stopLoss)
	}
	if takeProfit > 0 {
		payload["take_profit"] = protectiveLeg(symbol, strings.ToLower(side), takeProfit)
	}
	body, err := c.signedBody("set_position_tpsl", tpslExpiryWindowMs, payload)
	if err != nil {
		return err
	}
	body["agent_wallet"] = c.signer.Account()
	if _, err := c.post(ctx, "/positions/tpsl", body); err != nil {
		return err
	}
	logger.Infof("tpsl set for %s %s: sl=%.6f tp=%.6f", symbol, side, stopLoss, takeProfit)
	return nil
}

// protectiveLeg builds a stop order leg: trigger at the validated level,
// limit 0.1% through it in the fill direction, both tick-aligned.
func protectiveLeg(symbol, side string, trigger float64) map[string]any {
	tick := InstrumentFor(symbol).TickSize
	var limit float64
	if side == SideBid {
		limit = trigger * (1 - protectiveSlippage)
	} else {
		limit = trigger * (1 + protectiveSlippage)
	}
	return map[string]any{
		"stop_price":  formatQty(RoundToTick(trigger, tick)),
		"limit_price": formatQty(RoundToTick(limit, tick)),
	}
}

// signedBody signs the payload and flattens it into the request body
// alongside the auth fields. The signature covers the payload nested
// under "data" even though the request sends it flat.
func (c *Client) signedBody(kind string, expiryMs int64, payload map[string]any) (map[string]any, error) {
	header := SignatureHeader{
		Timestamp:    c.nowMs(),
		ExpiryWindow: expiryMs,
		Kind:         kind,
	}
	_, signature, err := c.signer.Sign(header, payload)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"account":       c.signer.Account(),
		"signature":     signature,
		"timestamp":     header.Timestamp,
		"expiry_window": header.ExpiryWindow,
	}
	for k, v := range payload {
		body[k] = v
	}
	return body, nil
}

func (c *Client) post(ctx context.Context, path string, body map[string]any) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, path, encoded)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// do runs one request with circuit breaker protection and bounded retry
// on transient faults. Rejections pass through untouched on the first
// response.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			logger.Debugf("pacifica: retry %d for %s %s", attempt, method, path)
		}
		if !c.breaker.Allow() {
			return nil, ErrCircuitOpen
		}
		raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			c.breaker.RecordSuccess()
			return raw, nil
		}
		if !IsTransient(err) {
			// A rejection is the venue answering, not the venue failing.
			c.breaker.RecordSuccess()
			return nil, err
		}
		c.breaker.RecordFailure()
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.signer != nil {
		req.Header.Set("X-Agent-Wallet", c.signer.Account())
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(raw)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &APIError{Status: resp.StatusCode, Body: snippet}
	}
	return raw, nil
}

func parseAck(raw []byte) OrderAck {
	id := gjson.GetBytes(raw, "data.order_id")
	if !id.Exists() {
		id = gjson.GetBytes(raw, "order_id")
	}
	return OrderAck{OrderID: id.String()}
}

// normalizeClientOrderID keeps a caller-supplied UUID or replaces
// anything else, since the venue rejects non-UUID client order ids.
func normalizeClientOrderID(id string) string {
	if id != "" {
		if _, err := uuid.Parse(id); err == nil {
			return id
		}
		logger.Warnf("invalid client_order_id %q, generating a new one", id)
	}
	return uuid.NewString()
}

func formatQty(v float64) string {
	return decimal.NewFromFloat(v).String()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
