// Package validation provides centralized input validation for quantd.
//
// Session identifiers and tickers both end up in filesystem paths and
// object keys, so the rules here are as much about path safety as about
// format.
package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/quantio/quantd/config"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for identifiers.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
	AllowCarets  bool
	AllowEquals  bool
}

// SessionIDRules returns the rules for session identifiers.
func SessionIDRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    128,
		AllowDots:    false,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// TickerRules returns the rules for ticker symbols. Dots cover class
// shares (BRK.B), carets index symbols (^GSPC), equals signs futures
// and FX symbols (EURUSD=X).
func TickerRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    32,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
		AllowCarets:  true,
		AllowEquals:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	if name == "." || name == ".." {
		return fmt.Errorf("name cannot be '.' or '..'")
	}

	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("name cannot start with '.'")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("name cannot contain path separators at position %d", i)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	case '^':
		return rules.AllowCarets
	case '=':
		return rules.AllowEquals
	}
	return false
}

// ValidateSessionID validates a session identifier.
func ValidateSessionID(id string) error {
	if err := ValidateName(id, SessionIDRules()); err != nil {
		return fmt.Errorf("session id: %w", err)
	}
	return nil
}

// ValidateTicker validates a ticker symbol.
func ValidateTicker(ticker string) error {
	if err := ValidateName(ticker, TickerRules()); err != nil {
		return fmt.Errorf("ticker: %w", err)
	}
	return nil
}

// =============================================================================
// Handle Validation
// =============================================================================

// ValidateHandle validates a series store handle: fixed-length lowercase
// hex.
func ValidateHandle(handle string) error {
	if len(handle) != config.HandleLength {
		return fmt.Errorf("handle must be %d characters, got %d", config.HandleLength, len(handle))
	}
	for i := 0; i < len(handle); i++ {
		c := handle[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("handle contains invalid character '%c' at position %d", c, i)
		}
	}
	return nil
}

// =============================================================================
// Date Validation
// =============================================================================

// ValidateDate accepts canonical YYYY-MM-DD strings and nothing else.
func ValidateDate(date string) error {
	if len(date) != 10 || date[4] != '-' || date[7] != '-' {
		return fmt.Errorf("date %q is not YYYY-MM-DD", date)
	}
	for i := 0; i < len(date); i++ {
		if i == 4 || i == 7 {
			continue
		}
		if date[i] < '0' || date[i] > '9' {
			return fmt.Errorf("date %q is not YYYY-MM-DD", date)
		}
	}
	return nil
}
