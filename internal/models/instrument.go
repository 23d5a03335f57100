package models

import (
	"fmt"
	"strings"
)

// InstrumentClass determines how a position is expressed in units.
type InstrumentClass string

const (
	InstrumentEquity InstrumentClass = "equity"
	InstrumentForex  InstrumentClass = "forex"
	InstrumentCrypto InstrumentClass = "crypto"
	InstrumentIndex  InstrumentClass = "index"
)

// Valid reports whether c is one of the known classes.
func (c InstrumentClass) Valid() bool {
	switch c {
	case InstrumentEquity, InstrumentForex, InstrumentCrypto, InstrumentIndex:
		return true
	}
	return false
}

// ParseInstrumentClass converts a user supplied value into an InstrumentClass.
func ParseInstrumentClass(s string) (InstrumentClass, error) {
	c := InstrumentClass(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown instrument class %q", s)
	}
	return c, nil
}

// DetectInstrumentClass guesses the class of a ticker from its Yahoo style notation.
//
//	EUR/USD, EURUSD=X -> forex
//	BTC-USD           -> crypto
//	^GSPC             -> index
//	anything else     -> equity
func DetectInstrumentClass(symbol string) InstrumentClass {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	switch {
	case strings.HasPrefix(s, "^"):
		return InstrumentIndex
	case strings.HasSuffix(s, "=X"), strings.Contains(s, "/"):
		return InstrumentForex
	case strings.HasSuffix(s, "-USD"), strings.HasSuffix(s, "-USDT"), strings.HasSuffix(s, "-EUR"):
		return InstrumentCrypto
	}
	return InstrumentEquity
}

// IsJPYPair reports whether a forex symbol is quoted in yen, which changes the pip size.
func IsJPYPair(symbol string) bool {
	s := strings.ToUpper(symbol)
	s = strings.TrimSuffix(s, "=X")
	s = strings.ReplaceAll(s, "/", "")
	return len(s) == 6 && s[3:] == "JPY"
}

// YahooSymbol rewrites slash notation forex pairs into the ticker form the
// chart API expects. Other symbols are returned upper-cased.
func YahooSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.Contains(s, "/") {
		return strings.ReplaceAll(s, "/", "") + "=X"
	}
	return s
}
