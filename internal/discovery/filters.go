package discovery

import (
	"fmt"
	"strings"

	"kinship/internal/models"
)

// Filters narrows the candidate set. Empty fields do not filter.
type Filters struct {
	Country          string
	Gender           models.Gender
	LanguageSpoken   string
	LanguageLearning string
}

// Normalize canonicalizes codes and rejects malformed values.
func (f Filters) Normalize() (Filters, error) {
	f.Country = strings.ToUpper(strings.TrimSpace(f.Country))
	f.LanguageSpoken = strings.ToLower(strings.TrimSpace(f.LanguageSpoken))
	f.LanguageLearning = strings.ToLower(strings.TrimSpace(f.LanguageLearning))
	f.Gender = models.Gender(strings.ToLower(strings.TrimSpace(string(f.Gender))))

	if f.Country != "" && !isCode(f.Country, 2, 2) {
		return f, models.NewValidationError("Country must be an ISO 3166 alpha-2 code")
	}
	if f.Gender != "" && !f.Gender.Valid() {
		return f, models.NewValidationError(fmt.Sprintf("Unknown gender %q", f.Gender))
	}
	for _, lang := range []string{f.LanguageSpoken, f.LanguageLearning} {
		if lang != "" && !isCode(lang, 2, 8) {
			return f, models.NewValidationError("Language must be a language code")
		}
	}
	return f, nil
}

// key identifies the filter set inside a cursor.
func (f Filters) key() string {
	return "country=" + f.Country + "&gender=" + string(f.Gender) +
		"&speaks=" + f.LanguageSpoken + "&learns=" + f.LanguageLearning
}

// match applies the filters no index covered.
func (f Filters) match(p *models.Profile) bool {
	if f.Country != "" && p.Country != f.Country {
		return false
	}
	if f.Gender != "" && p.Gender != f.Gender {
		return false
	}
	if f.LanguageSpoken != "" && !p.Speaks(f.LanguageSpoken) {
		return false
	}
	if f.LanguageLearning != "" && !p.Learns(f.LanguageLearning) {
		return false
	}
	return true
}

func isCode(s string, minLen, maxLen int) bool {
	if len(s) < minLen || len(s) > maxLen {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '-') {
			return false
		}
	}
	return true
}
