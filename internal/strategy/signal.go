package strategy

// SignalKind enumerates every decision the strategy can emit. Consumers
// switch exhaustively; an unknown kind is a bug, not a no-op.
type SignalKind int

const (
	SignalNone SignalKind = iota
	SignalEnterLong
	SignalEnterShort
	SignalCloseLong
	SignalCloseShort
)

func (k SignalKind) String() string {
	switch k {
	case SignalNone:
		return "none"
	case SignalEnterLong:
		return "enter_long"
	case SignalEnterShort:
		return "enter_short"
	case SignalCloseLong:
		return "close_long"
	case SignalCloseShort:
		return "close_short"
	default:
		return "unknown"
	}
}

// IsEntry reports whether the signal opens new exposure.
func (k SignalKind) IsEntry() bool {
	return k == SignalEnterLong || k == SignalEnterShort
}

// IsExit reports whether the signal reduces or closes exposure.
func (k SignalKind) IsExit() bool {
	return k == SignalCloseLong || k == SignalCloseShort
}

// Signal is produced once per evaluation cycle and consumed immediately.
// StopLoss/TakeProfit are zero when not applicable (exits never carry them).
type Signal struct {
	Symbol     string
	Kind       SignalKind
	Price      float64
	Amount     float64
	Confidence float64
	StopLoss   float64
	TakeProfit float64

	// Reason records the deciding (or blocking) condition for diagnostics.
	Reason string
}

// None returns the empty signal for a symbol with a diagnostic reason.
func None(symbol, reason string) Signal {
	return Signal{Symbol: symbol, Kind: SignalNone, Reason: reason}
}
