package fmp

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Extract reads a value from a combined document, reporting whether one
// was present.
type Extract func(doc gjson.Result) (decimal.Decimal, bool)

// Rule is one way of deriving a field. Key documents the source paths.
type Rule struct {
	Key     string
	Extract Extract
}

// Field resolves to the first rule that yields a value, or zero.
type Field struct {
	Name  string
	Rules []Rule
}

func (f Field) Value(doc gjson.Result) decimal.Decimal {
	v, _ := f.Lookup(doc)
	return v
}

// Lookup also returns the key of the rule that matched.
func (f Field) Lookup(doc gjson.Result) (decimal.Decimal, string) {
	for _, r := range f.Rules {
		if v, ok := r.Extract(doc); ok {
			return v, r.Key
		}
	}
	return decimal.Zero, ""
}

func number(r gjson.Result) (decimal.Decimal, bool) {
	switch r.Type {
	case gjson.Number:
		d, err := decimal.NewFromString(r.Raw)
		if err != nil {
			return decimal.NewFromFloat(r.Float()), true
		}
		return d, true
	case gjson.String:
		d, err := decimal.NewFromString(r.Str)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

// Key reads a single numeric path.
func Key(path string) Rule {
	return Rule{Key: path, Extract: func(doc gjson.Result) (decimal.Decimal, bool) {
		return number(doc.Get(path))
	}}
}

// Sum adds paths; every path must be present.
func Sum(paths ...string) Rule {
	key := ""
	for i, p := range paths {
		if i > 0 {
			key += "+"
		}
		key += p
	}
	return Rule{Key: key, Extract: func(doc gjson.Result) (decimal.Decimal, bool) {
		total := decimal.Zero
		for _, p := range paths {
			v, ok := number(doc.Get(p))
			if !ok {
				return decimal.Zero, false
			}
			total = total.Add(v)
		}
		return total, true
	}}
}

// Combined document sections.
const (
	docProfile  = "profile"
	docBalance  = "balance"
	docIncome   = "income"
	docCashFlow = "cashflow"
	docQuote    = "quote"
	docMetrics  = "metrics"
)

var (
	FieldAssets      = Field{Name: "assets", Rules: []Rule{Key("balance.totalAssets")}}
	FieldLiabilities = Field{Name: "liabilities", Rules: []Rule{Key("balance.totalLiabilities")}}

	FieldEquity = Field{Name: "equity", Rules: []Rule{
		Key("balance.totalStockholdersEquity"),
		Key("balance.totalEquity"),
	}}
	FieldCash = Field{Name: "cash", Rules: []Rule{
		Key("balance.cashAndCashEquivalents"),
		Key("balance.cashAndShortTermInvestments"),
	}}
	FieldDebt = Field{Name: "debt", Rules: []Rule{
		Key("balance.totalDebt"),
		Sum("balance.shortTermDebt", "balance.longTermDebt"),
	}}
	FieldRevenue   = Field{Name: "revenue", Rules: []Rule{Key("income.revenue")}}
	FieldNetIncome = Field{Name: "net_income", Rules: []Rule{Key("income.netIncome")}}

	FieldOperatingCashFlow = Field{Name: "operating_cash_flow", Rules: []Rule{
		Key("cashflow.operatingCashFlow"),
		Key("cashflow.netCashProvidedByOperatingActivities"),
	}}
	// capitalExpenditure is reported as a negative number.
	FieldFreeCashFlow = Field{Name: "free_cash_flow", Rules: []Rule{
		Key("cashflow.freeCashFlow"),
		Sum("cashflow.operatingCashFlow", "cashflow.capitalExpenditure"),
	}}
	FieldShares = Field{Name: "shares_outstanding", Rules: []Rule{
		Key("quote.sharesOutstanding"),
		Key("income.weightedAverageShsOut"),
	}}
	FieldMarketCap = Field{Name: "market_cap", Rules: []Rule{
		Key("quote.marketCap"),
		Key("profile.mktCap"),
	}}
	FieldPrice = Field{Name: "price", Rules: []Rule{
		Key("quote.price"),
		Key("profile.price"),
	}}
)
