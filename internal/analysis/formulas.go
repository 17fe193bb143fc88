package analysis

import (
	"regexp"
	"strings"
	"unicode"
)

const MaxFormulas = 20

var formulaPatterns = []*regexp.Regexp{
	// element runs: C6H6, H2SO4, NaCl
	regexp.MustCompile(`\b[A-Z][a-z]?(?:\d+)?(?:[A-Z][a-z]?(?:\d+)?)*\b`),
	// single-element bracket groups
	regexp.MustCompile(`\b[A-Z][a-z]?(?:\d+)?(?:\([A-Z][a-z]?(?:\d+)?\)(?:\d+)?)*(?:[A-Z][a-z]?(?:\d+)?)*\b`),
	// hydrocarbons: C2H5OH
	regexp.MustCompile(`\bC\d+H\d+(?:[A-Z][a-z]?\d*)*\b`),
}

var commonElements = []string{"C", "H", "O", "N", "S", "P", "Cl", "Br", "F", "I", "Na", "K", "Ca", "Mg"}

var notFormulas = map[string]bool{
	"THE": true, "AND": true, "FOR": true, "WITH": true,
	"ARE": true, "CAN": true, "MAY": true, "USE": true,
}

// ExtractFormulas returns formula-like tokens in first-seen order, without
// duplicates, capped at MaxFormulas. Ordinary capitalised words can match.
func ExtractFormulas(text string) []string {
	out := make([]string, 0)
	seen := make(map[string]bool)

	for _, re := range formulaPatterns {
		for _, m := range re.FindAllString(text, -1) {
			if len(m) < 2 || seen[m] || !likelyFormula(m) {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}

	if len(out) > MaxFormulas {
		out = out[:MaxFormulas]
	}
	return out
}

func likelyFormula(s string) bool {
	hasDigit := strings.IndexFunc(s, unicode.IsDigit) >= 0
	return containsElement(s) && (hasDigit || len(s) <= 6) && !notFormulas[strings.ToUpper(s)]
}

func containsElement(s string) bool {
	for _, el := range commonElements {
		if strings.Contains(s, el) {
			return true
		}
	}
	return false
}
