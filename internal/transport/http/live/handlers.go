package livehttp

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"nexwave/internal/config"
	"nexwave/internal/performance"
	"nexwave/internal/position"
	"nexwave/internal/risk"
	"nexwave/internal/store"
	"nexwave/internal/store/signallog"
	"nexwave/internal/strategy"
)

type handlers struct {
	store       store.Store
	signals     *signallog.Store
	performance *performance.Tracker
	watcher     *config.Watcher
}

func (h *handlers) register(g *gin.RouterGroup) {
	g.GET("/positions", h.listPositions)
	g.GET("/orders", h.listOrders)
	g.GET("/trades", h.listTrades)
	g.GET("/performance", h.getPerformance)
	g.GET("/signals", h.listSignals)
	g.GET("/config", h.getConfig)
	g.PUT("/config/trading", h.updateTradingConfig)
}

func (h *handlers) listPositions(c *gin.Context) {
	positions, err := h.store.ListOpenPositions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var longUSD, shortUSD float64
	for _, pos := range positions {
		notional := pos.EntryPrice * pos.Amount
		if pos.Side == "short" {
			shortUSD += notional
		} else {
			longUSD += notional
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"positions": positions,
		"count":     len(positions),
		"exposure":  gin.H{"long_usd": longUSD, "short_usd": shortUSD},
	})
}

func (h *handlers) listOrders(c *gin.Context) {
	limit := intQuery(c, "limit", 50, 500)
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	orders, err := h.store.ListRecentOrders(c.Request.Context(), symbol, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

func (h *handlers) listTrades(c *gin.Context) {
	limit := intQuery(c, "limit", 50, 500)
	since := sinceQuery(c, 7*24*time.Hour)
	trades, err := h.store.ListTradeLogs(c.Request.Context(), since, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

func (h *handlers) getPerformance(c *gin.Context) {
	if h.performance == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "performance tracker not enabled"})
		return
	}
	window := strings.TrimSpace(c.DefaultQuery("window", "7d"))
	since := sinceQuery(c, windowDuration(window))
	rep, rerr := h.performance.Report(c.Request.Context(), since, window)
	if rerr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": rerr.Error()})
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *handlers) listSignals(c *gin.Context) {
	if h.signals == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "signal log not enabled"})
		return
	}
	q := signallog.Query{
		Symbol: strings.ToUpper(strings.TrimSpace(c.Query("symbol"))),
		Kind:   strings.TrimSpace(c.Query("kind")),
		Limit:  intQuery(c, "limit", 100, 1000),
	}
	records, err := h.signals.Recent(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": records, "count": len(records)})
}

func (h *handlers) getConfig(c *gin.Context) {
	if h.watcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "config watcher not enabled"})
		return
	}
	snap := h.watcher.Snapshot()
	redacted := *snap.Config
	redacted.Exchange.APIKey = mask(redacted.Exchange.APIKey)
	redacted.Exchange.PrivateKey = mask(redacted.Exchange.PrivateKey)
	c.JSON(http.StatusOK, gin.H{
		"version":   snap.Version,
		"loaded_at": snap.LoadedAt,
		"config":    redacted,
	})
}

// TradingUpdateRequest carries the hot-tunable knobs. Omitted sections
// keep their current values; credentials and venue endpoints are not
// updatable through the API.
type TradingUpdateRequest struct {
	Symbols  []string               `json:"symbols"`
	Strategy *strategy.Params       `json:"strategy"`
	Risk     *risk.Limits           `json:"risk"`
	Position *position.ManageParams `json:"position"`
}

func (h *handlers) updateTradingConfig(c *gin.Context) {
	if h.watcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "config watcher not enabled"})
		return
	}
	var req TradingUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	next := *h.watcher.Snapshot().Config
	if len(req.Symbols) > 0 {
		next.Trading.Symbols = req.Symbols
		next.Trading.Symbols = next.Trading.SymbolsUpper()
	}
	if req.Strategy != nil {
		next.Strategy = *req.Strategy
	}
	if req.Risk != nil {
		next.Risk = *req.Risk
	}
	if req.Position != nil {
		next.Position = *req.Position
	}

	if err := h.watcher.Apply(&next); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	snap := h.watcher.Snapshot()
	c.JSON(http.StatusOK, gin.H{"status": "applied", "version": snap.Version})
}

func intQuery(c *gin.Context, key string, def, max int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func sinceQuery(c *gin.Context, def time.Duration) time.Time {
	raw := strings.TrimSpace(c.Query("since"))
	if raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return ts
		}
	}
	return time.Now().UTC().Add(-def)
}

func windowDuration(window string) time.Duration {
	window = strings.ToLower(strings.TrimSpace(window))
	switch window {
	case "24h", "1d":
		return 24 * time.Hour
	case "7d":
		return 7 * 24 * time.Hour
	case "30d":
		return 30 * 24 * time.Hour
	case "all":
		return 10 * 365 * 24 * time.Hour
	default:
		if d, err := time.ParseDuration(window); err == nil && d > 0 {
			return d
		}
		return 7 * 24 * time.Hour
	}
}

func mask(s string) string {
	if len(s) <= 6 {
		if s == "" {
			return ""
		}
		return "***"
	}
	return s[:3] + "..." + s[len(s)-3:]
}
