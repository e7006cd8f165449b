package market

import (
	"sort"
	"strings"
)

// AssetClass groups instruments that share a trading calendar
type AssetClass string

const (
	Metals AssetClass = "metals"
	Energy AssetClass = "energy"
	Agri   AssetClass = "agriculture"
	Forex  AssetClass = "forex"
	Crypto AssetClass = "crypto"
)

// Broker identifies whose symbol naming a platform uses
type Broker string

const (
	Libertex  Broker = "LIBERTEX"
	ICMarkets Broker = "ICMARKETS"
)

// Commodity describes one tradable instrument and its per-broker symbols
type Commodity struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	YahooSymbol string            `json:"yahoo_symbol"`
	Class       AssetClass        `json:"category"`
	Symbols     map[Broker]string `json:"symbols"`
}

var catalog = []Commodity{
	{ID: "GOLD", Name: "Gold", YahooSymbol: "GC=F", Class: Metals, Symbols: map[Broker]string{Libertex: "XAUUSD", ICMarkets: "XAUUSD"}},
	{ID: "SILVER", Name: "Silver", YahooSymbol: "SI=F", Class: Metals, Symbols: map[Broker]string{Libertex: "XAGUSD", ICMarkets: "XAGUSD"}},
	{ID: "PLATINUM", Name: "Platinum", YahooSymbol: "PL=F", Class: Metals, Symbols: map[Broker]string{Libertex: "PL", ICMarkets: "XPTUSD"}},
	{ID: "PALLADIUM", Name: "Palladium", YahooSymbol: "PA=F", Class: Metals, Symbols: map[Broker]string{Libertex: "PA", ICMarkets: "XPDUSD"}},

	{ID: "WTI_CRUDE", Name: "WTI Crude Oil", YahooSymbol: "CL=F", Class: Energy, Symbols: map[Broker]string{Libertex: "CL", ICMarkets: "WTI_F6"}},
	{ID: "BRENT_CRUDE", Name: "Brent Crude Oil", YahooSymbol: "BZ=F", Class: Energy, Symbols: map[Broker]string{Libertex: "BRN", ICMarkets: "BRENT_F6"}},
	{ID: "NATURAL_GAS", Name: "Natural Gas", YahooSymbol: "NG=F", Class: Energy, Symbols: map[Broker]string{Libertex: "NG"}},

	{ID: "WHEAT", Name: "Wheat", YahooSymbol: "ZW=F", Class: Agri, Symbols: map[Broker]string{Libertex: "WHEAT", ICMarkets: "Wheat_H6"}},
	{ID: "CORN", Name: "Corn", YahooSymbol: "ZC=F", Class: Agri, Symbols: map[Broker]string{Libertex: "CORN", ICMarkets: "Corn_H6"}},
	{ID: "SOYBEANS", Name: "Soybeans", YahooSymbol: "ZS=F", Class: Agri, Symbols: map[Broker]string{Libertex: "SOYBEAN", ICMarkets: "Sbean_F6"}},
	{ID: "COFFEE", Name: "Coffee", YahooSymbol: "KC=F", Class: Agri, Symbols: map[Broker]string{Libertex: "COFFEE", ICMarkets: "Coffee_H6"}},
	{ID: "SUGAR", Name: "Sugar", YahooSymbol: "SB=F", Class: Agri, Symbols: map[Broker]string{Libertex: "SUGAR", ICMarkets: "Sugar_H6"}},
	{ID: "COCOA", Name: "Cocoa", YahooSymbol: "CC=F", Class: Agri, Symbols: map[Broker]string{Libertex: "COCOA", ICMarkets: "Cocoa_H6"}},

	{ID: "EURUSD", Name: "EUR/USD", YahooSymbol: "EURUSD=X", Class: Forex, Symbols: map[Broker]string{Libertex: "EURUSD", ICMarkets: "EURUSD"}},

	{ID: "BITCOIN", Name: "Bitcoin", YahooSymbol: "BTC-USD", Class: Crypto, Symbols: map[Broker]string{Libertex: "BTCUSD", ICMarkets: "BTCUSD"}},
}

var byID = func() map[string]Commodity {
	m := make(map[string]Commodity, len(catalog))
	for _, c := range catalog {
		m[c.ID] = c
	}
	return m
}()

// All returns the catalog sorted by id
func All() []Commodity {
	out := make([]Commodity, len(catalog))
	copy(out, catalog)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns every commodity id, the default enabled set
func IDs() []string {
	ids := make([]string, 0, len(catalog))
	for _, c := range catalog {
		ids = append(ids, c.ID)
	}
	return ids
}

// Lookup finds a commodity by id
func Lookup(id string) (Commodity, bool) {
	c, ok := byID[strings.ToUpper(id)]
	return c, ok
}

// BrokerFor infers the symbol naming from a platform name such as MT5_ICMARKETS_DEMO
func BrokerFor(platform string) Broker {
	if strings.Contains(strings.ToUpper(platform), string(ICMarkets)) {
		return ICMarkets
	}
	return Libertex
}

// SymbolFor returns the broker symbol for a commodity, false when the broker does not list it
func SymbolFor(commodityID string, broker Broker) (string, bool) {
	c, ok := Lookup(commodityID)
	if !ok {
		return "", false
	}
	sym, ok := c.Symbols[broker]
	return sym, ok && sym != ""
}

// CommodityForSymbol reverse-maps a broker symbol to a commodity id. Unknown
// symbols map to themselves so positions opened by hand still get a record.
func CommodityForSymbol(symbol string) string {
	for _, c := range catalog {
		if strings.EqualFold(c.YahooSymbol, symbol) {
			return c.ID
		}
		for _, s := range c.Symbols {
			if strings.EqualFold(s, symbol) {
				return c.ID
			}
		}
	}
	return symbol
}
