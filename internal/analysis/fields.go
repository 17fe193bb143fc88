package analysis

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	DefaultFieldMaxChars = 500
	minFieldChars        = 5
)

// Field names, in extraction order.
const (
	FieldTitle       = "title"
	FieldAbstract    = "abstract"
	FieldClaims      = "claims"
	FieldInventors   = "inventors"
	FieldApplicant   = "applicant"
	FieldDescription = "description"
)

type fieldRule struct {
	name     string
	patterns []*regexp.Regexp
}

// Each label captures the rest of the first non-blank line after it and an
// optional half- or full-width colon.
func labels(names ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(names))
	for i, n := range names {
		out[i] = regexp.MustCompile(`(?i)` + n + `\s*[:：]?\s*([^\n]*)`)
	}
	return out
}

var fieldRules = []fieldRule{
	{FieldTitle, labels(`Title of Invention`, `發明名稱`, `TITLE`, `標題`)},
	{FieldAbstract, labels(`Abstract`, `摘要`, `ABSTRACT`)},
	{FieldClaims, labels(`Claims?`, `請求項`, `CLAIMS?`)},
	{FieldInventors, labels(`Inventors?`, `發明人`, `INVENTORS?`)},
	{FieldApplicant, labels(`Applicants?`, `申請人`, `APPLICANTS?`)},
	{FieldDescription, labels(`(?:Detailed )?Description`, `詳細說明`, `DESCRIPTION`)},
}

// FieldNames lists the extracted patent elements in order.
func FieldNames() []string {
	out := make([]string, len(fieldRules))
	for i, r := range fieldRules {
		out[i] = r.name
	}
	return out
}

// ExtractFields locates patent elements in text. For every field the patterns
// are tried in order; the first match of a pattern whose trimmed capture is
// longer than five characters wins and is cut to maxChars characters.
func ExtractFields(text string, maxChars int) map[string]string {
	if maxChars <= 0 {
		maxChars = DefaultFieldMaxChars
	}

	out := make(map[string]string)
	for _, rule := range fieldRules {
		for _, re := range rule.patterns {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			content := strings.TrimSpace(m[1])
			if utf8.RuneCountInString(content) > minFieldChars {
				out[rule.name] = truncateRunes(content, maxChars)
				break
			}
		}
	}
	return out
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
