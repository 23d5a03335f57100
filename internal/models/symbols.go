package models

// SymbolInfo is a catalog entry shown in symbol pickers.
type SymbolInfo struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Class  InstrumentClass `json:"class"`
}

// SymbolCatalog groups the curated symbol lists served by the API.
type SymbolCatalog struct {
	Forex        []SymbolInfo `json:"forex"`
	Indices      []SymbolInfo `json:"indices"`
	IndianStocks []SymbolInfo `json:"indian_stocks"`
	USStocks     []SymbolInfo `json:"us_stocks"`
	Crypto       []SymbolInfo `json:"crypto"`
}

func entries(class InstrumentClass, pairs ...string) []SymbolInfo {
	out := make([]SymbolInfo, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, SymbolInfo{Symbol: pairs[i], Name: pairs[i+1], Class: class})
	}
	return out
}

// DefaultSymbolCatalog returns the built-in symbol lists.
func DefaultSymbolCatalog() SymbolCatalog {
	return SymbolCatalog{
		Forex: entries(InstrumentForex,
			"EUR/USD", "Euro/US Dollar",
			"GBP/USD", "British Pound/US Dollar",
			"USD/JPY", "US Dollar/Japanese Yen",
			"USD/CHF", "US Dollar/Swiss Franc",
			"USD/CAD", "US Dollar/Canadian Dollar",
			"AUD/USD", "Australian Dollar/US Dollar",
			"NZD/USD", "New Zealand Dollar/US Dollar",
			"EUR/GBP", "Euro/British Pound",
			"EUR/JPY", "Euro/Japanese Yen",
			"GBP/JPY", "British Pound/Japanese Yen",
		),
		Indices: entries(InstrumentIndex,
			"^GSPC", "S&P 500",
			"^DJI", "Dow Jones Industrial Average",
			"^IXIC", "NASDAQ Composite",
			"^FTSE", "FTSE 100",
			"^BSESN", "BSE SENSEX",
			"^NSEI", "NIFTY 50",
			"^NSEBANK", "NIFTY BANK",
			"^N225", "Nikkei 225",
			"^HSI", "Hang Seng",
			"^GDAXI", "DAX",
		),
		IndianStocks: entries(InstrumentEquity,
			"RELIANCE.NS", "Reliance Industries",
			"TCS.NS", "Tata Consultancy Services",
			"HDFCBANK.NS", "HDFC Bank",
			"INFY.NS", "Infosys",
			"HINDUNILVR.NS", "Hindustan Unilever",
			"ICICIBANK.NS", "ICICI Bank",
			"SBIN.NS", "State Bank of India",
			"BHARTIARTL.NS", "Bharti Airtel",
			"ITC.NS", "ITC Limited",
			"KOTAKBANK.NS", "Kotak Mahindra Bank",
		),
		USStocks: entries(InstrumentEquity,
			"AAPL", "Apple Inc.",
			"MSFT", "Microsoft Corporation",
			"GOOGL", "Alphabet Inc.",
			"AMZN", "Amazon.com Inc.",
			"META", "Meta Platforms Inc.",
			"TSLA", "Tesla Inc.",
			"NVDA", "NVIDIA Corporation",
			"JPM", "JPMorgan Chase & Co.",
			"V", "Visa Inc.",
			"WMT", "Walmart Inc.",
		),
		Crypto: entries(InstrumentCrypto,
			"BTC-USD", "Bitcoin/US Dollar",
			"ETH-USD", "Ethereum/US Dollar",
			"BNB-USD", "Binance Coin/US Dollar",
			"XRP-USD", "XRP/US Dollar",
			"ADA-USD", "Cardano/US Dollar",
			"DOGE-USD", "Dogecoin/US Dollar",
			"SOL-USD", "Solana/US Dollar",
			"DOT-USD", "Polkadot/US Dollar",
			"MATIC-USD", "Polygon/US Dollar",
			"LINK-USD", "Chainlink/US Dollar",
		),
	}
}

// Lookup finds the catalog entry for symbol. Forex pairs match in either
// slash or Yahoo notation.
func (c SymbolCatalog) Lookup(symbol string) (SymbolInfo, bool) {
	want := YahooSymbol(symbol)
	for _, group := range [][]SymbolInfo{c.Forex, c.Indices, c.IndianStocks, c.USStocks, c.Crypto} {
		for _, info := range group {
			if YahooSymbol(info.Symbol) == want {
				return info, true
			}
		}
	}
	return SymbolInfo{}, false
}
