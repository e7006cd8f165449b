package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSymbolMapping(t *testing.T) {
	sym, ok := SymbolFor("WTI_CRUDE", ICMarkets)
	assert.True(t, ok)
	assert.Equal(t, "WTI_F6", sym)

	sym, ok = SymbolFor("gold", Libertex)
	assert.True(t, ok)
	assert.Equal(t, "XAUUSD", sym)

	_, ok = SymbolFor("NATURAL_GAS", ICMarkets)
	assert.False(t, ok)

	_, ok = SymbolFor("UNKNOWN", Libertex)
	assert.False(t, ok)
}

func TestBrokerFor(t *testing.T) {
	assert.Equal(t, ICMarkets, BrokerFor("MT5_ICMARKETS_DEMO"))
	assert.Equal(t, Libertex, BrokerFor("MT5_LIBERTEX_REAL"))
}

func TestCommodityForSymbol(t *testing.T) {
	assert.Equal(t, "BRENT_CRUDE", CommodityForSymbol("BRN"))
	assert.Equal(t, "BRENT_CRUDE", CommodityForSymbol("BRENT_F6"))
	assert.Equal(t, "GOLD", CommodityForSymbol("xauusd"))
	assert.Equal(t, "US500", CommodityForSymbol("US500"))
}

func TestCatalogIsComplete(t *testing.T) {
	assert.Len(t, IDs(), 15)
	for _, c := range All() {
		assert.NotEmpty(t, c.YahooSymbol, c.ID)
		assert.NotEmpty(t, c.Symbols[Libertex], c.ID)
	}
}

func utc(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func TestCalendarSessions(t *testing.T) {
	// 2024-06-01 is a Saturday
	sat := utc(2024, 6, 1, 12, 0)
	sunLate := utc(2024, 6, 2, 23, 30)
	sunEarly := utc(2024, 6, 2, 22, 30)
	wedBreak := utc(2024, 6, 5, 22, 30)
	wedNoon := utc(2024, 6, 5, 12, 0)
	wedEvening := utc(2024, 6, 5, 20, 0)
	friLate := utc(2024, 6, 7, 22, 15)

	tests := []struct {
		name  string
		class AssetClass
		at    time.Time
		want  bool
	}{
		{"crypto weekend", Crypto, sat, true},
		{"forex saturday", Forex, sat, false},
		{"forex sunday open", Forex, sunEarly, true},
		{"forex friday close", Forex, friLate, false},
		{"metals sunday before open", Metals, sunEarly, false},
		{"metals sunday after open", Metals, sunLate, true},
		{"energy daily break", Energy, wedBreak, false},
		{"energy midday", Energy, wedNoon, true},
		{"agri midday", Agri, wedNoon, true},
		{"agri after close", Agri, wedEvening, false},
		{"agri saturday", Agri, sat, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassOpenAt(tt.class, tt.at))
		})
	}
}

func TestCalendarWithClock(t *testing.T) {
	cal := NewCalendarWithClock(func() time.Time { return utc(2024, 6, 1, 12, 0) })
	assert.False(t, cal.IsOpen("GOLD"))
	assert.True(t, cal.IsOpen("BITCOIN"))
	assert.False(t, cal.IsOpen("NOPE"))
}
