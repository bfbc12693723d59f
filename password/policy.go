package password

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

// DefaultSymbols is the punctuation set accepted by the complexity rule.
const DefaultSymbols = "@$!%*?&"

// DefaultMinLength is the minimum password length in characters.
const DefaultMinLength = 8

// PolicyMode selects how strictly the allowed character class is enforced.
type PolicyMode int

const (
	// PolicyModeLegacy matches the anchored lookahead pattern used by
	// existing clients. The allowed character class is checked on the first
	// character only, the class search stops at the first line terminator,
	// and length is counted in UTF-16 code units.
	PolicyModeLegacy PolicyMode = iota
	// PolicyModeStrict rejects any character outside the allowed class.
	PolicyModeStrict
)

// Policy configures ValidateComplexity.
type Policy struct {
	MinLength int
	Symbols   string
	Mode      PolicyMode
}

// PolicyResult is the outcome of a complexity check. Errors are ordered by rule.
type PolicyResult struct {
	Valid  bool
	Errors []string
}

// DefaultPolicy returns the stock policy: 8 characters, DefaultSymbols, legacy mode.
func DefaultPolicy() Policy {
	return Policy{MinLength: DefaultMinLength, Symbols: DefaultSymbols, Mode: PolicyModeLegacy}
}

// ComplexityMessage is the error reported when the character-class rule fails.
const ComplexityMessage = "Password must contain at least one uppercase letter, one lowercase letter, one number, and one special character"

// LengthMessage returns the error reported when the length rule fails.
func LengthMessage(min int) string {
	return "Password must be at least " + strconv.Itoa(min) + " characters long"
}

// ValidateComplexity evaluates every rule independently; it has no side effects.
func (p Policy) ValidateComplexity(pw string) PolicyResult {
	min := p.MinLength
	if min <= 0 {
		min = DefaultMinLength
	}
	symbols := p.Symbols
	if symbols == "" {
		symbols = DefaultSymbols
	}

	var errs []string
	if p.length(pw) < min {
		errs = append(errs, LengthMessage(min))
	}
	if !p.complex(pw, symbols) {
		errs = append(errs, ComplexityMessage)
	}
	return PolicyResult{Valid: len(errs) == 0, Errors: errs}
}

// ValidateComplexity checks pw against DefaultPolicy.
func ValidateComplexity(pw string) PolicyResult {
	return DefaultPolicy().ValidateComplexity(pw)
}

func (p Policy) length(pw string) int {
	if p.Mode == PolicyModeStrict {
		return utf8.RuneCountInString(pw)
	}
	n := 0
	for _, r := range pw {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

func (p Policy) complex(pw, symbols string) bool {
	if pw == "" {
		return false
	}

	scan := pw
	if p.Mode == PolicyModeLegacy {
		if i := strings.IndexFunc(pw, lineTerminator); i >= 0 {
			scan = pw[:i]
		}
	}

	var lower, upper, digit, symbol bool
	for _, r := range scan {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case unicode.IsDigit(r) && r < utf8.RuneSelf:
			digit = true
		case strings.ContainsRune(symbols, r):
			symbol = true
		}
	}
	if !lower || !upper || !digit || !symbol {
		return false
	}

	first, _ := utf8.DecodeRuneInString(pw)
	if !allowed(first, symbols) {
		return false
	}
	if p.Mode == PolicyModeStrict {
		for _, r := range pw {
			if !allowed(r, symbols) {
				return false
			}
		}
	}
	return true
}

func lineTerminator(r rune) bool {
	return r == '\n' || r == '\r' || r == '\u2028' || r == '\u2029'
}

func allowed(r rune, symbols string) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	default:
		return strings.ContainsRune(symbols, r)
	}
}
