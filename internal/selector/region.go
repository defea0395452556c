package selector

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// RegionChoice is either Global or a country code such as "united_kingdom".
type RegionChoice string

// Global is the worldwide ranking scope.
const Global RegionChoice = "global"

// IsGlobal reports whether the choice is the worldwide scope.
func (r RegionChoice) IsGlobal() bool {
	return r == "" || r == Global
}

// Country returns the normalized country code. It is empty for Global.
func (r RegionChoice) Country() string {
	if r.IsGlobal() {
		return ""
	}
	return NormalizeCountry(string(r))
}

// ParseRegion parses user input into a region choice.
func ParseRegion(raw string) RegionChoice {
	normalized := NormalizeCountry(raw)
	if normalized == "" || normalized == string(Global) {
		return Global
	}
	return RegionChoice(normalized)
}

// RankingScope is the degenerate selector of the ranking widget.
type RankingScope struct {
	Region RegionChoice
	// Limit caps the global ranking size. It is ignored for country scopes.
	Limit int
}

// Key renders a stable cache key.
func (s RankingScope) Key() string {
	if s.Region.IsGlobal() {
		return string(Global) + "|" + strconv.Itoa(s.Limit)
	}
	return s.Region.Country()
}

// NormalizeCountry lower-cases a country code and joins words with underscores.
func NormalizeCountry(raw string) string {
	fields := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(raw)), func(r rune) bool {
		return r == ' ' || r == '_' || r == '-'
	})
	return strings.Join(fields, "_")
}

// DisplayName renders a country code for humans: "united_kingdom" becomes "United Kingdom".
func DisplayName(code string) string {
	if RegionChoice(code) == Global {
		return "Global"
	}
	words := strings.Split(strings.TrimSpace(code), "_")
	out := make([]string, 0, len(words))
	for _, word := range words {
		if word == "" {
			continue
		}
		first, size := utf8.DecodeRuneInString(word)
		out = append(out, string(unicode.ToUpper(first))+word[size:])
	}
	if len(out) == 0 {
		return "Unknown"
	}
	return strings.Join(out, " ")
}
