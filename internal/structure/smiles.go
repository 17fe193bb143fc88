package structure

import "strings"

const smilesAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789()[]=#@+-"

// ValidSMILES is a character-set check only; it does not parse the notation.
func ValidSMILES(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune(smilesAlphabet, r) {
			return false
		}
	}
	return true
}

type Properties struct {
	SMILES              string `json:"smiles" yaml:"smiles"`
	Length              int    `json:"length" yaml:"length"`
	Valid               bool   `json:"valid" yaml:"valid"`
	ContainsRing        bool   `json:"contains_ring" yaml:"contains_ring"`
	EstimatedComplexity string `json:"estimated_complexity" yaml:"estimated_complexity"`
}

// Describe derives coarse properties from the literal string.
func Describe(smiles string) Properties {
	complexity := "simple"
	if len(smiles) >= 10 {
		complexity = "complex"
	}
	return Properties{
		SMILES:              smiles,
		Length:              len(smiles),
		Valid:               ValidSMILES(smiles),
		ContainsRing:        strings.Contains(smiles, "1") || strings.Contains(strings.ToLower(smiles), "c"),
		EstimatedComplexity: complexity,
	}
}
