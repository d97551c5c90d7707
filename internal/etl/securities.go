package etl

import (
	"regexp"
	"strings"
)

// excludedTickers are known non-company securities.
var excludedTickers = map[string]bool{
	"AACBR": true, "AACBU": true, "ABVEW": true, "BC-PA": true, "BFRGW": true, "BTSGU": true,
	"BULLW": true, "CELV": true, "CMRC": true, "COLA": true, "COLAR": true, "CORZZ": true,
	"DAAQU": true, "DAICW": true, "DHAIW": true, "DMAAR": true, "DMAAU": true, "DSYWW": true,
	"EBRGF": true, "ENGNW": true, "ENJ": true, "ENO": true, "FBYDW": true, "FERAR": true,
	"FGMCR": true, "GCLWW": true, "GENVR": true, "GL-PD": true, "GTENU": true, "GTENW": true,
	"IPCXU": true, "IPODU": true, "KIDZW": true, "LCCCR": true, "LOKVU": true, "LOKVW": true,
	"LOTWW": true, "MBAVU": true, "MNYWW": true, "MRNOW": true, "NAMMW": true, "NEE-PN": true,
	"NMPAU": true, "NPACU": true, "NPACW": true, "NVNIW": true, "OAK-PA": true, "PACHU": true,
	"PCG-PC": true, "PCG-PI": true, "PDM": true, "PFBC": true, "QSEAU": true, "RIBBR": true,
	"RZLVW": true, "SCAGW": true, "SHMDW": true, "SOJD": true, "SOJE": true, "STRD": true,
	"STRF": true, "TACHU": true, "TDACW": true, "TVACU": true, "USB-PA": true, "USB-PS": true,
	"UYSCU": true, "VAL-WT": true, "VAPEW": true, "WRB-PE": true, "WRB-PF": true, "WRB-PG": true,
	"WRB-PH": true, "WTGUR": true,
}

// excludedSuffixes mark preferred shares (-PA..-PZ), warrants, units and
// share classes.
var excludedSuffixes = func() []string {
	var out []string
	for c := 'A'; c <= 'Z'; c++ {
		out = append(out, "-P"+string(c))
	}
	return append(out, "-WT", ".WT", "-UN", ".UN", "-A", "-B", "-C", "-D")
}()

var excludedNameKeywords = []string{
	"SERIES", "PREFERRED", "NOTES", "BONDS", "WARRANTS", "RIGHTS", "UNITS",
	"TRUST", "DEBENTURES", "DEPOSITARY", "CUMULATIVE", "CONVERTIBLE",
	"REDEEMABLE", "PERPETUAL", "FLOATING", "FIXED RATE",
}

var (
	interestRateRe = regexp.MustCompile(`\d+\.?\d*%`)
	maturityRe     = regexp.MustCompile(`(?i)due \d{4}`)
)

// Excluded reports whether ticker, and name when known, look like a bond,
// note, preferred share, warrant, right or unit rather than an operating
// company.
func Excluded(ticker, name string) bool {
	t := strings.ToUpper(ticker)
	if excludedTickers[t] {
		return true
	}
	for _, s := range excludedSuffixes {
		if strings.HasSuffix(t, s) {
			return true
		}
	}

	if name == "" {
		return false
	}
	upper := strings.ToUpper(name)
	for _, k := range excludedNameKeywords {
		if strings.Contains(upper, k) {
			return true
		}
	}
	return interestRateRe.MatchString(name) || maturityRe.MatchString(name)
}

// fundKeywords drop listed funds and partnerships from the stock list.
var fundKeywords = []string{"ETF", "Fund", "Trust", "ETN", "Note", "LP", "L.P.", "REIT"}

func isFund(symbol, name string) bool {
	if strings.Contains(strings.ToUpper(symbol), "ETF") {
		return true
	}
	for _, k := range fundKeywords {
		if strings.Contains(name, k) {
			return true
		}
	}
	return false
}
