package fmp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// CompanyCalls is the number of requests FetchCompany makes.
const CompanyCalls = 5

type Profile struct {
	Ticker   string
	Name     string
	Sector   string
	Industry string
	LogoURL  string
}

type Quote struct {
	Price             decimal.Decimal
	MarketCap         decimal.Decimal
	SharesOutstanding decimal.Decimal
}

// Snapshot is one reporting period of statement data.
type Snapshot struct {
	PeriodEnd         string // YYYY-MM-DD
	ReportType        string // 10-K or 10-Q
	Assets            decimal.Decimal
	Liabilities       decimal.Decimal
	Equity            decimal.Decimal
	Cash              decimal.Decimal
	Debt              decimal.Decimal
	Revenue           decimal.Decimal
	NetIncome         decimal.Decimal
	OperatingCashFlow decimal.Decimal
	FreeCashFlow      decimal.Decimal
	SharesOutstanding decimal.Decimal
	Raw               json.RawMessage
}

// CompanyData is the parsed result of FetchCompany.
type CompanyData struct {
	Profile  Profile
	Snapshot Snapshot
	Quote    Quote
	Calls    int
}

type part struct {
	name string
	res  gjson.Result
}

// combine nests each part under its name in one JSON object so field rules
// can address any source by path.
func combine(parts ...part) (gjson.Result, []byte, error) {
	doc := []byte(`{}`)
	for _, p := range parts {
		if !p.res.Exists() {
			continue
		}
		var err error
		doc, err = sjson.SetRawBytes(doc, p.name, []byte(p.res.Raw))
		if err != nil {
			return gjson.Result{}, nil, fmt.Errorf("combine %s: %w", p.name, err)
		}
	}
	return gjson.ParseBytes(doc), doc, nil
}

func parseProfile(doc gjson.Result) Profile {
	return Profile{
		Ticker:   doc.Get("profile.symbol").String(),
		Name:     doc.Get("profile.companyName").String(),
		Sector:   doc.Get("profile.sector").String(),
		Industry: doc.Get("profile.industry").String(),
		LogoURL:  doc.Get("profile.image").String(),
	}
}

func parseQuote(doc gjson.Result) Quote {
	return Quote{
		Price:             FieldPrice.Value(doc),
		MarketCap:         FieldMarketCap.Value(doc),
		SharesOutstanding: FieldShares.Value(doc),
	}
}

func parseSnapshot(doc gjson.Result, raw []byte, reportType string) Snapshot {
	return Snapshot{
		PeriodEnd:         doc.Get("balance.date").String(),
		ReportType:        reportType,
		Assets:            FieldAssets.Value(doc),
		Liabilities:       FieldLiabilities.Value(doc),
		Equity:            FieldEquity.Value(doc),
		Cash:              FieldCash.Value(doc),
		Debt:              FieldDebt.Value(doc),
		Revenue:           FieldRevenue.Value(doc),
		NetIncome:         FieldNetIncome.Value(doc),
		OperatingCashFlow: FieldOperatingCashFlow.Value(doc),
		FreeCashFlow:      FieldFreeCashFlow.Value(doc),
		SharesOutstanding: FieldShares.Value(doc),
		Raw:               raw,
	}
}

func reportType(fmpPeriod string) string {
	if fmpPeriod == "" || fmpPeriod == "FY" {
		return "10-K"
	}
	return "10-Q"
}

func firstOf(list []gjson.Result) gjson.Result {
	if len(list) == 0 {
		return gjson.Result{}
	}
	return list[0]
}

// FetchCompany fetches profile, latest annual balance sheet and income
// statement, quote and key metrics. Calls counts the requests that
// succeeded, also on error.
func (c *Client) FetchCompany(ctx context.Context, ticker string) (CompanyData, error) {
	var data CompanyData

	profile, err := c.Profile(ctx, ticker)
	if err != nil {
		return data, fmt.Errorf("profile: %w", err)
	}
	data.Calls++

	balance, err := c.Statements(ctx, BalanceSheet, ticker, Annual, 1)
	if err != nil {
		return data, fmt.Errorf("balance sheet: %w", err)
	}
	data.Calls++

	income, err := c.Statements(ctx, IncomeStatement, ticker, Annual, 1)
	if err != nil {
		return data, fmt.Errorf("income statement: %w", err)
	}
	data.Calls++

	quote, err := c.Quote(ctx, ticker)
	if err != nil {
		return data, fmt.Errorf("quote: %w", err)
	}
	data.Calls++

	metrics, err := c.Statements(ctx, KeyMetrics, ticker, Annual, 1)
	if err != nil {
		return data, fmt.Errorf("key metrics: %w", err)
	}
	data.Calls++

	if len(balance) == 0 {
		return data, fmt.Errorf("balance sheet: %w", ErrNoData)
	}

	doc, raw, err := combine(
		part{docProfile, profile},
		part{docBalance, firstOf(balance)},
		part{docIncome, firstOf(income)},
		part{docQuote, quote},
		part{docMetrics, firstOf(metrics)},
	)
	if err != nil {
		return data, err
	}

	data.Profile = parseProfile(doc)
	if data.Profile.Ticker == "" {
		data.Profile.Ticker = ticker
	}
	data.Quote = parseQuote(doc)
	data.Snapshot = parseSnapshot(doc, raw, reportType(doc.Get("balance.period").String()))
	return data, nil
}

// FetchQuote returns current market data in one request.
func (c *Client) FetchQuote(ctx context.Context, ticker string) (Quote, error) {
	quote, err := c.Quote(ctx, ticker)
	if err != nil {
		return Quote{}, err
	}
	doc, _, err := combine(part{docQuote, quote})
	if err != nil {
		return Quote{}, err
	}
	return parseQuote(doc), nil
}

// FetchHistory returns up to years annual snapshots, newest first, and, when
// quarters is set, up to 4*years quarterly snapshots after them. Statements
// are paired by position, as the API returns them aligned by period.
func (c *Client) FetchHistory(ctx context.Context, ticker string, years int, quarters bool) ([]Snapshot, int, error) {
	calls := 0
	var out []Snapshot

	balance, err := c.Statements(ctx, BalanceSheet, ticker, Annual, years)
	if err != nil {
		return nil, calls, fmt.Errorf("annual balance sheets: %w", err)
	}
	calls++
	income, err := c.Statements(ctx, IncomeStatement, ticker, Annual, years)
	if err != nil {
		return nil, calls, fmt.Errorf("annual income statements: %w", err)
	}
	calls++
	cash, err := c.Statements(ctx, CashFlow, ticker, Annual, years)
	if err != nil {
		return nil, calls, fmt.Errorf("annual cash flow statements: %w", err)
	}
	calls++

	n := min(len(balance), len(income), len(cash))
	for i := 0; i < n; i++ {
		doc, raw, err := combine(
			part{docBalance, balance[i]},
			part{docIncome, income[i]},
			part{docCashFlow, cash[i]},
		)
		if err != nil {
			return nil, calls, err
		}
		out = append(out, parseSnapshot(doc, raw, "10-K"))
	}

	if !quarters {
		return out, calls, nil
	}

	qBalance, err := c.Statements(ctx, BalanceSheet, ticker, Quarter, years*4)
	if err != nil {
		return nil, calls, fmt.Errorf("quarterly balance sheets: %w", err)
	}
	calls++
	qIncome, err := c.Statements(ctx, IncomeStatement, ticker, Quarter, years*4)
	if err != nil {
		return nil, calls, fmt.Errorf("quarterly income statements: %w", err)
	}
	calls++

	n = min(len(qBalance), len(qIncome))
	for i := 0; i < n; i++ {
		doc, raw, err := combine(
			part{docBalance, qBalance[i]},
			part{docIncome, qIncome[i]},
		)
		if err != nil {
			return nil, calls, err
		}
		out = append(out, parseSnapshot(doc, raw, "10-Q"))
	}
	return out, calls, nil
}
