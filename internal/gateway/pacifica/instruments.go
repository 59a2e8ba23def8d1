package pacifica

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Instrument metadata the venue enforces on order placement. The tables
// are seeded from the exchange's published contract specs; unknown
// symbols fall back to conservative defaults.
type Instrument struct {
	Symbol      string
	TickSize    decimal.Decimal
	LotSize     decimal.Decimal
	MaxLeverage float64
}

var (
	defaultTick = decimal.RequireFromString("0.0001")
	defaultLot  = decimal.NewFromInt(1)
)

var tickSizes = map[string]string{
	"BTC":  "0.01",
	"ETH":  "0.01",
	"SOL":  "0.01",
	"BNB":  "0.01",
	"ZEC":  "0.01",
	"LTC":  "0.01",
	"AAVE": "0.01",
	"PAXG": "0.01",
	"TAO":  "0.01",

	"HYPE": "0.001",
	"LINK": "0.001",
	"UNI":  "0.001",
	"AVAX": "0.001",
	"SUI":  "0.001",

	"DOGE":     "0.00001",
	"XRP":      "0.00001",
	"ENA":      "0.0001",
	"VIRTUAL":  "0.0001",
	"FARTCOIN": "0.0001",
	"ASTER":    "0.0001",
	"XPL":      "0.0001",
	"MON":      "0.00001",
	"PENGU":    "0.00001",
	"WLFI":     "0.00001",
	"LDO":      "0.0001",
	"CRV":      "0.0001",
	"2Z":       "0.0001",
	"PUMP":     "0.00001",

	"KPEPE": "0.000001",
	"KBONK": "0.0001",
}

var lotSizes = map[string]string{
	"BTC": "0.0001",
	"ETH": "0.001",
	"SOL": "0.01",

	"HYPE": "0.1",
	"ZEC":  "0.01",
	"BNB":  "0.01",
	"XRP":  "1",
	"PUMP": "1",
	"AAVE": "0.01",

	"ENA":      "0.1",
	"ASTER":    "0.1",
	"KBONK":    "0.1",
	"KPEPE":    "0.1",
	"LTC":      "1",
	"PAXG":     "0.001",
	"VIRTUAL":  "0.1",
	"SUI":      "0.1",
	"FARTCOIN": "0.1",
	"TAO":      "0.01",
	"DOGE":     "1",
	"XPL":      "1",
	"AVAX":     "0.1",
	"LINK":     "0.1",
	"UNI":      "1",
	"WLFI":     "1",

	"PENGU": "1",
	"2Z":    "0.1",
	"MON":   "1",
	"LDO":   "0.1",
	"CRV":   "0.1",
}

// Majors trade with deeper books and higher leverage ceilings.
var maxLeverage = map[string]float64{
	"BTC": 50,
	"ETH": 50,
	"SOL": 20,
	"BNB": 20,
	"ZEC": 10,
}

// InstrumentFor resolves the venue constraints for a symbol.
func InstrumentFor(symbol string) Instrument {
	sym := strings.ToUpper(symbol)
	inst := Instrument{Symbol: sym, TickSize: defaultTick, LotSize: defaultLot, MaxLeverage: 10}
	if s, ok := tickSizes[sym]; ok {
		inst.TickSize = decimal.RequireFromString(s)
	}
	if s, ok := lotSizes[sym]; ok {
		inst.LotSize = decimal.RequireFromString(s)
	}
	if lv, ok := maxLeverage[sym]; ok {
		inst.MaxLeverage = lv
	}
	return inst
}
