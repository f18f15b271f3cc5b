package domain

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Administrative levels supported by the boundary service.
const (
	MinAdmLevel = 0
	MaxAdmLevel = 2
)

// withdrawnISO3 lists ISO 3166-3 codes that still parse as regions but no
// longer name a country.
var withdrawnISO3 = map[string]bool{
	"AFI": true, "ANT": true, "ATN": true, "BUR": true, "BYS": true,
	"CSK": true, "CTE": true, "DDR": true, "DHY": true, "FXX": true,
	"GEL": true, "HVO": true, "JTN": true, "MID": true, "NHB": true,
	"NTZ": true, "PCI": true, "PCZ": true, "PUS": true, "SCG": true,
	"SKM": true, "SUN": true, "TMP": true, "VDR": true, "WAK": true,
	"YMD": true, "YUG": true, "ZAR": true,
}

// NormalizeCountry upper-cases code and checks it is an ISO 3166-1 alpha-3
// country code. Grouping, private-use and deprecated codes are rejected.
func NormalizeCountry(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if len(c) != 3 {
		return "", fmt.Errorf("%w: %q is not an ISO3 code", ErrInvalidCountry, code)
	}
	r, err := language.ParseRegion(c)
	if err != nil || withdrawnISO3[c] || !r.IsCountry() || r.ISO3() != c || r.Canonicalize() != r {
		return "", fmt.Errorf("%w: country %s ISO3 code not existing", ErrInvalidCountry, c)
	}
	return c, nil
}

// ValidateAdmLevel checks level is within [MinAdmLevel, MaxAdmLevel].
func ValidateAdmLevel(level int) error {
	if level < MinAdmLevel || level > MaxAdmLevel {
		return fmt.Errorf("%w: %d, must be between %d and %d", ErrInvalidAdmLevel, level, MinAdmLevel, MaxAdmLevel)
	}
	return nil
}
