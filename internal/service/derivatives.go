package service

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockfolio/internal/domain"
)

// NSE trading-symbol grammars
var (
	// NIFTY24JANFUT
	monthlyFuturePattern = regexp.MustCompile(`^([A-Z&-]+?)(\d{2})(JAN|FEB|MAR|APR|MAY|JUN|JUL|AUG|SEP|OCT|NOV|DEC)FUT$`)
	// NIFTY24JAN21500CE
	monthlyOptionPattern = regexp.MustCompile(`^([A-Z&-]+?)(\d{2})(JAN|FEB|MAR|APR|MAY|JUN|JUL|AUG|SEP|OCT|NOV|DEC)(\d+(?:\.\d+)?)(CE|PE)$`)
	// NIFTY2411821500CE: year, month digit (O/N/D for Oct-Dec), day, strike
	weeklyOptionPattern = regexp.MustCompile(`^([A-Z&-]+?)(\d{2})([1-9OND])(\d{2})(\d+(?:\.\d+)?)(CE|PE)$`)
)

var monthAbbrev = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March, "APR": time.April,
	"MAY": time.May, "JUN": time.June, "JUL": time.July, "AUG": time.August,
	"SEP": time.September, "OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// defaultLotSizes are exchange lot sizes; NSE revises them periodically
var defaultLotSizes = map[string]int64{
	"NIFTY":      75,
	"BANKNIFTY":  35,
	"FINNIFTY":   65,
	"MIDCPNIFTY": 140,
	"SENSEX":     20,
	"BANKEX":     30,
	"RELIANCE":   500,
	"TCS":        175,
	"INFY":       400,
	"HDFCBANK":   550,
	"ICICIBANK":  700,
	"SBIN":       750,
}

// ContractParser turns F&O trading symbols into contract metadata
type ContractParser struct {
	loc      *time.Location
	lotSizes map[string]int64
}

// NewContractParser creates a parser; overrides replace default lot sizes per underlying
func NewContractParser(loc *time.Location, overrides map[string]int64) *ContractParser {
	sizes := make(map[string]int64, len(defaultLotSizes)+len(overrides))
	for k, v := range defaultLotSizes {
		sizes[k] = v
	}
	for k, v := range overrides {
		sizes[strings.ToUpper(k)] = v
	}
	return &ContractParser{loc: loc, lotSizes: sizes}
}

// Parse returns contract metadata. Unrecognised symbols come back with
// Parsed=false, the whole symbol as underlying and a lot size of one.
func (p *ContractParser) Parse(symbol string) *domain.ContractInfo {
	symbol = domain.NormalizeSymbol(symbol)

	if m := monthlyFuturePattern.FindStringSubmatch(symbol); m != nil {
		expiry := p.monthlyExpiry(m[2], monthAbbrev[m[3]])
		return p.contract(m[1], expiry, decimal.Zero, domain.ContractFuture)
	}

	if m := monthlyOptionPattern.FindStringSubmatch(symbol); m != nil {
		expiry := p.monthlyExpiry(m[2], monthAbbrev[m[3]])
		return p.contract(m[1], expiry, decimal.RequireFromString(m[4]), domain.OptionType(m[5]))
	}

	if m := weeklyOptionPattern.FindStringSubmatch(symbol); m != nil {
		if expiry, ok := p.weeklyExpiry(m[2], m[3], m[4]); ok {
			return p.contract(m[1], expiry, decimal.RequireFromString(m[5]), domain.OptionType(m[6]))
		}
	}

	return &domain.ContractInfo{
		Underlying: symbol,
		Strike:     decimal.Zero,
		LotSize:    1,
		Parsed:     false,
	}
}

// LotSize returns the lot size for an underlying, defaulting to one
func (p *ContractParser) LotSize(underlying string) int64 {
	if size, ok := p.lotSizes[strings.ToUpper(underlying)]; ok && size > 0 {
		return size
	}
	return 1
}

func (p *ContractParser) contract(underlying string, expiry *time.Time, strike decimal.Decimal, kind domain.OptionType) *domain.ContractInfo {
	return &domain.ContractInfo{
		Underlying: underlying,
		Expiry:     expiry,
		Strike:     strike,
		Type:       kind,
		LotSize:    p.LotSize(underlying),
		Parsed:     true,
	}
}

// monthlyExpiry is the last Thursday of the contract month
func (p *ContractParser) monthlyExpiry(yy string, month time.Month) *time.Time {
	year, err := strconv.Atoi(yy)
	if err != nil {
		return nil
	}
	last := time.Date(2000+year, month+1, 0, 15, 30, 0, 0, p.loc)
	for last.Weekday() != time.Thursday {
		last = last.AddDate(0, 0, -1)
	}
	return &last
}

func (p *ContractParser) weeklyExpiry(yy, monthCode, dd string) (*time.Time, bool) {
	year, err := strconv.Atoi(yy)
	if err != nil {
		return nil, false
	}
	day, err := strconv.Atoi(dd)
	if err != nil || day < 1 || day > 31 {
		return nil, false
	}

	var month time.Month
	switch monthCode {
	case "O":
		month = time.October
	case "N":
		month = time.November
	case "D":
		month = time.December
	default:
		n, _ := strconv.Atoi(monthCode)
		month = time.Month(n)
	}

	expiry := time.Date(2000+year, month, day, 15, 30, 0, 0, p.loc)
	if expiry.Day() != day {
		return nil, false
	}
	return &expiry, true
}

// Notional is last price times quantity; quantities are in units, never lots
func Notional(lastPrice, quantity decimal.Decimal) decimal.Decimal {
	return lastPrice.Mul(quantity)
}
