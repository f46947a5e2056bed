package trader

import (
	"github.com/shopspring/decimal"

	"github.com/Nibbler1250/Domotique-Jetson/internal/mirror"
)

// moneyFields are attribute names whose values are monetary amounts. They
// are parsed into decimals on the way into canonical state so consumers
// never aggregate binary floats.
var moneyFields = map[string]bool{
	"avg_price":         true,
	"current_price":     true,
	"entry_price":       true,
	"stop_price":        true,
	"target_price":      true,
	"market_value":      true,
	"cost_basis":        true,
	"unrealized_pnl":    true,
	"realized_pnl":      true,
	"daily_pnl":         true,
	"total_pnl":         true,
	"equity":            true,
	"cash":              true,
	"balance":           true,
	"buying_power":      true,
	"margin_used":       true,
	"margin_available":  true,
	"available_capital": true,
	"allocated_capital": true,
	"exposure":          true,
}

// normalizeMoney converts known money fields in place. Floats and numeric
// strings become decimals; unparseable strings are left alone.
func normalizeMoney(attrs mirror.Attributes) {
	for k, v := range attrs {
		if !moneyFields[k] {
			continue
		}
		switch val := v.(type) {
		case float64:
			attrs[k] = decimal.NewFromFloat(val)
		case string:
			if d, err := decimal.NewFromString(val); err == nil {
				attrs[k] = d
			}
		}
	}
}
