package product

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// TroyOuncesPerKilogram converts kilogram bars to troy ounces.
var TroyOuncesPerKilogram = decimal.RequireFromString("32.1507")

var (
	spaceRe     = regexp.MustCompile(`\s+`)
	multiOzRe   = regexp.MustCompile(`(?i)(\d+)\s*x\s*1\s*(?:troy ounce|once troy)`)
	troyOunceRe = regexp.MustCompile(`(?i)(\d+)\s*troy ounce`)
	kilogramRe  = regexp.MustCompile(`(?i)(\d+)\s*kilogram`)
)

// NormalizeSpace collapses runs of whitespace, including non-breaking
// spaces, into single spaces.
func NormalizeSpace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// ParseEuro parses European formatted amounts such as "€ 2.725,24" or
// "85,80 €".
func ParseEuro(s string) (decimal.Decimal, error) {
	r := strings.NewReplacer("\u00a0", "", "€", "", " ", "", ".", "", ",", ".")
	clean := strings.TrimSpace(r.Replace(s))
	if clean == "" {
		return decimal.Zero, fmt.Errorf("parse euro %q: empty", s)
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse euro %q: %w", s, err)
	}
	return d, nil
}

// ParseQuantityOz extracts the troy ounce quantity from a listing name.
//
//	"500 x 1 troy ounce", "250 x 1 once troy" -> 500, 250
//	"10 troy ounce"                           -> 10
//	"1 kilogram"                              -> 32.1507
func ParseQuantityOz(name string) (decimal.Decimal, bool) {
	if m := multiOzRe.FindStringSubmatch(name); m != nil {
		return decimal.RequireFromString(m[1]), true
	}
	if m := troyOunceRe.FindStringSubmatch(name); m != nil {
		return decimal.RequireFromString(m[1]), true
	}
	if m := kilogramRe.FindStringSubmatch(name); m != nil {
		return decimal.RequireFromString(m[1]).Mul(TroyOuncesPerKilogram), true
	}
	return decimal.Zero, false
}
