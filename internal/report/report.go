// Package report turns a completed analysis task into a presentation document.
package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/toricodesthings/patent-analysis-service/internal/analysis"
	"github.com/toricodesthings/patent-analysis-service/internal/structure"
	"github.com/toricodesthings/patent-analysis-service/internal/task"
)

var ErrNotCompleted = errors.New("analysis not completed, report unavailable")

const (
	Title           = "Patent Analysis Report"
	TimeLayout      = "2006-01-02 15:04:05"
	unknownFilename = "unknown file"
)

// Recommendations is the static advice attached to every report.
var Recommendations = []string{
	"Further verify the accuracy of the identified chemical structures",
	"Consider a comparative analysis against existing patents",
	"Evaluate commercial feasibility and market potential",
}

type Report struct {
	TaskID           string   `json:"task_id" yaml:"task_id"`
	ReportTitle      string   `json:"report_title" yaml:"report_title"`
	Filename         string   `json:"filename" yaml:"filename"`
	GeneratedAt      string   `json:"generated_at" yaml:"generated_at"`
	ExecutiveSummary string   `json:"executive_summary" yaml:"executive_summary"`
	DetailedAnalysis Detailed `json:"detailed_analysis" yaml:"detailed_analysis"`
	Recommendations  []string `json:"recommendations" yaml:"recommendations"`
}

type Detailed struct {
	ChemicalCompounds Compounds         `json:"chemical_compounds" yaml:"chemical_compounds"`
	PatentElements    map[string]string `json:"patent_elements" yaml:"patent_elements"`
	TechnicalAnalysis Technical         `json:"technical_analysis" yaml:"technical_analysis"`
}

type Compounds struct {
	Formulas            []string               `json:"formulas" yaml:"formulas"`
	SMILES              []string               `json:"smiles" yaml:"smiles"`
	Count               int                    `json:"count" yaml:"count"`
	Types               []string               `json:"types" yaml:"types"`
	StructureProperties []structure.Properties `json:"structure_properties" yaml:"structure_properties"`
}

type Technical struct {
	PagesAnalyzed   int               `json:"pages_analyzed" yaml:"pages_analyzed"`
	ImagesExtracted int               `json:"images_extracted" yaml:"images_extracted"`
	PatentStrength  analysis.Strength `json:"patent_strength" yaml:"patent_strength"`
}

// Build formats a completed task. Any other status yields ErrNotCompleted.
func Build(t task.Task, now time.Time) (Report, error) {
	if t.Status != task.StatusCompleted || t.Result == nil {
		return Report{}, ErrNotCompleted
	}
	res := *t.Result

	filename := t.Filename
	if filename == "" {
		filename = unknownFilename
	}

	props := make([]structure.Properties, 0, len(res.SMILESStructures))
	for _, s := range res.SMILESStructures {
		props = append(props, structure.Describe(s))
	}

	return Report{
		TaskID:      t.ID,
		ReportTitle: Title,
		Filename:    filename,
		GeneratedAt: now.Format(TimeLayout),
		ExecutiveSummary: fmt.Sprintf("Identified %d chemical formulas and %d chemical structures across %d pages.",
			len(res.ChemicalFormulas), len(res.SMILESStructures), res.PagesProcessed),
		DetailedAnalysis: Detailed{
			ChemicalCompounds: Compounds{
				Formulas:            nonNil(res.ChemicalFormulas),
				SMILES:              nonNil(res.SMILESStructures),
				Count:               res.Summary.TotalCompounds,
				Types:               nonNil(res.Summary.CompoundTypes),
				StructureProperties: props,
			},
			PatentElements: nonNilMap(res.PatentElements),
			TechnicalAnalysis: Technical{
				PagesAnalyzed:   res.PagesProcessed,
				ImagesExtracted: res.ImagesExtracted,
				PatentStrength:  res.Summary.PatentStrength,
			},
		},
		Recommendations: append([]string(nil), Recommendations...),
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
