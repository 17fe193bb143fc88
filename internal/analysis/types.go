package analysis

// Result is the outcome of one analysis run. Field names on the wire follow
// the snake_case layout clients already consume.
type Result struct {
	ChemicalFormulas []string          `json:"chemical_formulas" yaml:"chemical_formulas"`
	SMILESStructures []string          `json:"smiles_structures" yaml:"smiles_structures"`
	PatentElements   map[string]string `json:"patent_elements" yaml:"patent_elements"`
	Summary          Summary           `json:"analysis_summary" yaml:"analysis_summary"`
	ImagesExtracted  int               `json:"images_extracted" yaml:"images_extracted"`
	PagesProcessed   int               `json:"pages_processed" yaml:"pages_processed"`
}

type Summary struct {
	TotalCompounds    int      `json:"total_compounds" yaml:"total_compounds"`
	TotalStructures   int      `json:"total_structures" yaml:"total_structures"`
	PagesAnalyzed     int      `json:"pages_analyzed" yaml:"pages_analyzed"`
	ImagesFound       int      `json:"images_found" yaml:"images_found"`
	CompoundTypes     []string `json:"compound_types" yaml:"compound_types"`
	PatentStrength    Strength `json:"patent_strength" yaml:"patent_strength"`
	NoveltyAssessment string   `json:"novelty_assessment" yaml:"novelty_assessment"`
}

type Strength string

const (
	StrengthLow    Strength = "low"
	StrengthMedium Strength = "medium"
	StrengthHigh   Strength = "high"
)

// Compound categories.
const (
	CompoundOrganic       = "organic"
	CompoundInorganicSalt = "inorganic_salt"
	CompoundOther         = "other"
)

const noveltyPending = "requires further evaluation"
