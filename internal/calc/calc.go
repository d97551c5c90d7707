// Package calc computes valuation ratios and the difficulty score.
package calc

import (
	"github.com/shopspring/decimal"
)

const (
	ratioPlaces = 2
	baseScore   = 5
	minScore    = 1
	maxScore    = 10
)

var (
	hundred    = decimal.NewFromInt(100)
	peHigh     = decimal.NewFromInt(100)
	pbHigh     = decimal.NewFromInt(10)
	deHigh     = decimal.NewFromInt(3)
	oneBillion = decimal.NewFromInt(1_000_000_000)
	tenBillion = decimal.NewFromInt(10_000_000_000)
)

// Inputs are the figures the ratios are computed from.
type Inputs struct {
	StockPrice        decimal.Decimal
	MarketCap         decimal.Decimal
	NetIncome         decimal.Decimal
	SharesOutstanding decimal.Decimal
	Assets            decimal.Decimal
	Liabilities       decimal.Decimal
	Equity            decimal.Decimal
	Debt              decimal.Decimal
}

// Metrics holds rounded ratios. An invalid ratio means not computable.
type Metrics struct {
	PE              decimal.NullDecimal
	PB              decimal.NullDecimal
	DebtToEquity    decimal.NullDecimal
	CurrentRatio    decimal.NullDecimal
	ROE             decimal.NullDecimal // percent
	DifficultyScore int
}

func divide(num, den decimal.Decimal) decimal.NullDecimal {
	if den.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(num.Div(den))
}

// PE is price over earnings per share. Unprofitable companies have none.
func PE(price, netIncome, shares decimal.Decimal) decimal.NullDecimal {
	if shares.IsZero() || !netIncome.IsPositive() {
		return decimal.NullDecimal{}
	}
	return divide(price, netIncome.Div(shares))
}

func PB(marketCap, equity decimal.Decimal) decimal.NullDecimal {
	return divide(marketCap, equity)
}

func DebtToEquity(debt, equity decimal.Decimal) decimal.NullDecimal {
	return divide(debt, equity)
}

// CurrentRatio uses total assets and liabilities.
func CurrentRatio(assets, liabilities decimal.Decimal) decimal.NullDecimal {
	return divide(assets, liabilities)
}

// ROE is a fraction; Calculate reports it as a percentage.
func ROE(netIncome, equity decimal.Decimal) decimal.NullDecimal {
	return divide(netIncome, equity)
}

// DifficultyScore rates how hard a company is to value, from 1 to 10.
func DifficultyScore(pe, pb, de decimal.NullDecimal, marketCap decimal.Decimal) int {
	score := baseScore

	switch {
	case !pe.Valid:
		score++
	case pe.Decimal.IsNegative() || pe.Decimal.GreaterThan(peHigh):
		score += 2
	}

	switch {
	case !pb.Valid:
		score++
	case pb.Decimal.GreaterThan(pbHigh):
		score++
	}

	switch {
	case !de.Valid:
		score++
	case de.Decimal.GreaterThan(deHigh):
		score++
	}

	switch {
	case marketCap.LessThan(oneBillion):
		score += 2
	case marketCap.LessThan(tenBillion):
		score++
	}

	return max(minScore, min(maxScore, score))
}

// Calculate computes every ratio. The difficulty score sees unrounded values.
func Calculate(in Inputs) Metrics {
	pe := PE(in.StockPrice, in.NetIncome, in.SharesOutstanding)
	pb := PB(in.MarketCap, in.Equity)
	de := DebtToEquity(in.Debt, in.Equity)
	cr := CurrentRatio(in.Assets, in.Liabilities)
	roe := ROE(in.NetIncome, in.Equity)
	if roe.Valid {
		roe.Decimal = roe.Decimal.Mul(hundred)
	}

	return Metrics{
		PE:              round(pe),
		PB:              round(pb),
		DebtToEquity:    round(de),
		CurrentRatio:    round(cr),
		ROE:             round(roe),
		DifficultyScore: DifficultyScore(pe, pb, de, in.MarketCap),
	}
}

// round keeps two decimals; a value that rounds to zero is dropped.
func round(d decimal.NullDecimal) decimal.NullDecimal {
	if !d.Valid {
		return d
	}
	r := d.Decimal.RoundBank(ratioPlaces)
	if r.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(r)
}
