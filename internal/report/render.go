package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"gopkg.in/yaml.v3"

	"github.com/toricodesthings/patent-analysis-service/internal/analysis"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatXLSX Format = "xlsx"
	FormatHTML Format = "html"
)

var ErrUnknownFormat = errors.New("unknown report format")

// ParseFormat accepts json, yaml, xlsx or html, case-insensitively. Empty
// means json.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatYAML, FormatXLSX, FormatHTML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w %q (want json, yaml, xlsx or html)", ErrUnknownFormat, s)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatYAML:
		return "application/yaml; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "application/json; charset=utf-8"
	}
}

// Extension is the file suffix used for downloads.
func (f Format) Extension() string { return "." + string(f) }

func Render(w io.Writer, rep Report, f Format) error {
	switch f {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case FormatXLSX:
		return renderXLSX(w, rep)
	case FormatHTML:
		return renderHTML(w, rep)
	default:
		return fmt.Errorf("%w %q", ErrUnknownFormat, f)
	}
}

// elementKeys orders patent elements by the extraction order, then any
// unknown keys alphabetically.
func elementKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	known := make(map[string]bool)
	for _, name := range analysis.FieldNames() {
		known[name] = true
		if _, ok := m[name]; ok {
			keys = append(keys, name)
		}
	}
	var extra []string
	for k := range m {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

const (
	sheetSummary    = "Summary"
	sheetCompounds  = "Compounds"
	sheetStructures = "Structures"
	sheetElements   = "Patent Elements"
)

func renderXLSX(w io.Writer, rep Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	for _, name := range []string{sheetCompounds, sheetStructures, sheetElements} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("xlsx: %w", err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("xlsx style: %w", err)
	}

	d := rep.DetailedAnalysis
	summary := [][]any{
		{"Field", "Value"},
		{"Report", rep.ReportTitle},
		{"Task ID", rep.TaskID},
		{"Filename", rep.Filename},
		{"Generated At", rep.GeneratedAt},
		{"Executive Summary", rep.ExecutiveSummary},
		{"Compound Count", d.ChemicalCompounds.Count},
		{"Compound Types", strings.Join(d.ChemicalCompounds.Types, ", ")},
		{"Pages Analyzed", d.TechnicalAnalysis.PagesAnalyzed},
		{"Images Extracted", d.TechnicalAnalysis.ImagesExtracted},
		{"Patent Strength", string(d.TechnicalAnalysis.PatentStrength)},
	}
	for i, r := range rep.Recommendations {
		summary = append(summary, []any{"Recommendation " + strconv.Itoa(i+1), r})
	}

	compounds := [][]any{{"#", "Formula", "Type"}}
	for i, formula := range d.ChemicalCompounds.Formulas {
		compounds = append(compounds, []any{i + 1, formula, analysis.CompoundType(formula)})
	}

	structures := [][]any{{"#", "SMILES", "Length", "Valid", "Contains Ring", "Complexity"}}
	for i, p := range d.ChemicalCompounds.StructureProperties {
		structures = append(structures, []any{i + 1, p.SMILES, p.Length, p.Valid, p.ContainsRing, p.EstimatedComplexity})
	}

	elements := [][]any{{"Element", "Text"}}
	for _, k := range elementKeys(d.PatentElements) {
		elements = append(elements, []any{k, d.PatentElements[k]})
	}

	sheets := []struct {
		name  string
		rows  [][]any
		width float64
	}{
		{sheetSummary, summary, 60},
		{sheetCompounds, compounds, 20},
		{sheetStructures, structures, 20},
		{sheetElements, elements, 80},
	}
	for _, s := range sheets {
		if err := writeRows(f, s.name, s.rows); err != nil {
			return err
		}
		if err := f.SetRowStyle(s.name, 1, 1, bold); err != nil {
			return fmt.Errorf("xlsx style: %w", err)
		}
		if err := f.SetColWidth(s.name, "B", "B", s.width); err != nil {
			return fmt.Errorf("xlsx width: %w", err)
		}
	}
	f.SetActiveSheet(0)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("xlsx: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("xlsx %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func el(a atom.Atom, attrs map[string]string, children ...*html.Node) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n.Attr = append(n.Attr, html.Attribute{Key: k, Val: attrs[k]})
	}
	for _, c := range children {
		n.AppendChild(c)
	}
	return n
}

func text(s string) *html.Node { return &html.Node{Type: html.TextNode, Data: s} }

func textEl(a atom.Atom, s string) *html.Node { return el(a, nil, text(s)) }

func list(items []string) *html.Node {
	if len(items) == 0 {
		return textEl(atom.P, "None")
	}
	ul := el(atom.Ul, nil)
	for _, it := range items {
		ul.AppendChild(textEl(atom.Li, it))
	}
	return ul
}

func table(header []string, rows [][]string) *html.Node {
	tr := el(atom.Tr, nil)
	for _, h := range header {
		tr.AppendChild(textEl(atom.Th, h))
	}
	tbl := el(atom.Table, nil, el(atom.Thead, nil, tr))
	body := el(atom.Tbody, nil)
	for _, r := range rows {
		row := el(atom.Tr, nil)
		for _, c := range r {
			row.AppendChild(textEl(atom.Td, c))
		}
		body.AppendChild(row)
	}
	tbl.AppendChild(body)
	return tbl
}

const reportCSS = `body{font-family:sans-serif;margin:2em;max-width:960px}
table{border-collapse:collapse;margin-bottom:1em}
th,td{border:1px solid #ccc;padding:4px 8px;text-align:left;vertical-align:top}
.summary{font-size:1.1em}`

func renderHTML(w io.Writer, rep Report) error {
	d := rep.DetailedAnalysis

	var structRows [][]string
	for _, p := range d.ChemicalCompounds.StructureProperties {
		structRows = append(structRows, []string{
			p.SMILES, strconv.Itoa(p.Length), strconv.FormatBool(p.Valid),
			strconv.FormatBool(p.ContainsRing), p.EstimatedComplexity,
		})
	}
	var elemRows [][]string
	for _, k := range elementKeys(d.PatentElements) {
		elemRows = append(elemRows, []string{k, d.PatentElements[k]})
	}
	tech := [][]string{
		{"Pages analyzed", strconv.Itoa(d.TechnicalAnalysis.PagesAnalyzed)},
		{"Images extracted", strconv.Itoa(d.TechnicalAnalysis.ImagesExtracted)},
		{"Patent strength", string(d.TechnicalAnalysis.PatentStrength)},
		{"Compound count", strconv.Itoa(d.ChemicalCompounds.Count)},
		{"Compound types", strings.Join(d.ChemicalCompounds.Types, ", ")},
	}

	head := el(atom.Head, nil,
		el(atom.Meta, map[string]string{"charset": "utf-8"}),
		textEl(atom.Title, rep.ReportTitle+" - "+rep.Filename),
		textEl(atom.Style, reportCSS),
	)
	body := el(atom.Body, nil,
		textEl(atom.H1, rep.ReportTitle),
		el(atom.P, nil, text("File: "+rep.Filename+" | Task: "+rep.TaskID+" | Generated: "+rep.GeneratedAt)),
		el(atom.P, map[string]string{"class": "summary"}, text(rep.ExecutiveSummary)),
		textEl(atom.H2, "Chemical Formulas"),
		list(d.ChemicalCompounds.Formulas),
		textEl(atom.H2, "Chemical Structures"),
		table([]string{"SMILES", "Length", "Valid", "Contains ring", "Complexity"}, structRows),
		textEl(atom.H2, "Patent Elements"),
		table([]string{"Element", "Text"}, elemRows),
		textEl(atom.H2, "Technical Analysis"),
		table([]string{"Metric", "Value"}, tech),
		textEl(atom.H2, "Recommendations"),
		list(rep.Recommendations),
	)

	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	doc.AppendChild(el(atom.Html, map[string]string{"lang": "en"}, head, body))

	if err := html.Render(w, doc); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}
