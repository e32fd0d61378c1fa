package media

import "strings"

const (
	minPhoneDigits = 10
	maxPhoneDigits = 15
)

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// NormalizePhone strips formatting from a phone number and checks it has
// 10 to 15 digits. When countryCode is set, a leading 0 (local format) is
// replaced by it and a number without the code gets it prepended. A number
// written with a leading + is already international and is left alone.
func NormalizePhone(raw, countryCode string) (string, error) {
	p := phoneSeparators.Replace(strings.TrimSpace(raw))
	international := strings.HasPrefix(p, "+")
	p = strings.TrimPrefix(p, "+")
	if p == "" {
		return "", Invalid(CodeMissingField, "Phone number required")
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return "", ErrInvalidPhone
		}
	}
	if countryCode != "" && !international {
		switch {
		case strings.HasPrefix(p, "0"):
			p = countryCode + p[1:]
		case !strings.HasPrefix(p, countryCode):
			p = countryCode + p
		}
	}
	if len(p) < minPhoneDigits || len(p) > maxPhoneDigits {
		return "", ErrInvalidPhone
	}
	return p, nil
}
