package analysis

import (
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	mediumClaimChars = 100
	highCompounds    = 5
)

var saltMetals = []string{"Na", "K", "Ca", "Mg"}

// Summarize fills in r.Summary from the other fields of r.
func Summarize(r *Result) {
	s := Summary{
		TotalCompounds:    len(r.ChemicalFormulas),
		TotalStructures:   len(r.SMILESStructures),
		PagesAnalyzed:     r.PagesProcessed,
		ImagesFound:       r.ImagesExtracted,
		CompoundTypes:     compoundTypes(r.ChemicalFormulas),
		PatentStrength:    StrengthLow,
		NoveltyAssessment: noveltyPending,
	}

	if utf8.RuneCountInString(r.PatentElements[FieldClaims]) > mediumClaimChars {
		s.PatentStrength = StrengthMedium
	}
	if s.TotalCompounds > highCompounds {
		s.PatentStrength = StrengthHigh
	}
	r.Summary = s
}

// CompoundType buckets a formula by substring presence.
func CompoundType(formula string) string {
	if strings.Contains(formula, "C") && strings.Contains(formula, "H") {
		return CompoundOrganic
	}
	for _, m := range saltMetals {
		if strings.Contains(formula, m) {
			return CompoundInorganicSalt
		}
	}
	return CompoundOther
}

func compoundTypes(formulas []string) []string {
	set := make(map[string]bool)
	for _, f := range formulas {
		set[CompoundType(f)] = true
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
