package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"

	"github.com/toricodesthings/patent-analysis-service/internal/analysis"
	"github.com/toricodesthings/patent-analysis-service/internal/task"
)

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func completedTask() task.Task {
	res := analysis.Result{
		ChemicalFormulas: []string{"C6H6", "NaCl"},
		SMILESStructures: []string{"c1ccccc1", "CCO"},
		PatentElements: map[string]string{
			analysis.FieldTitle:  "Aromatic solvent blends",
			analysis.FieldClaims: "A blend of <b>solvents</b> & salts",
		},
		ImagesExtracted: 4,
		PagesProcessed:  12,
	}
	analysis.Summarize(&res)
	return task.Task{
		ID:       "7f0c1a4e-0000-4000-8000-000000000001",
		Status:   task.StatusCompleted,
		Filename: "patent.pdf",
		Result:   &res,
	}
}

func TestBuildCompletedTask(t *testing.T) {
	rep, err := Build(completedTask(), fixedNow)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if rep.ReportTitle != "Patent Analysis Report" || rep.GeneratedAt != "2026-03-04 05:06:07" {
		t.Fatalf("unexpected header %q %q", rep.ReportTitle, rep.GeneratedAt)
	}
	want := "Identified 2 chemical formulas and 2 chemical structures across 12 pages."
	if rep.ExecutiveSummary != want {
		t.Fatalf("unexpected executive summary %q", rep.ExecutiveSummary)
	}

	cc := rep.DetailedAnalysis.ChemicalCompounds
	if cc.Count != 2 || len(cc.StructureProperties) != 2 {
		t.Fatalf("unexpected compounds %#v", cc)
	}
	if cc.StructureProperties[0].SMILES != "c1ccccc1" || !cc.StructureProperties[0].Valid {
		t.Fatalf("unexpected structure properties %#v", cc.StructureProperties[0])
	}
	ta := rep.DetailedAnalysis.TechnicalAnalysis
	if ta.PagesAnalyzed != 12 || ta.ImagesExtracted != 4 || ta.PatentStrength != analysis.StrengthLow {
		t.Fatalf("unexpected technical analysis %#v", ta)
	}
	if len(rep.Recommendations) != 3 {
		t.Fatalf("expected 3 recommendations, got %d", len(rep.Recommendations))
	}
}

func TestBuildRejectsUnfinishedTasks(t *testing.T) {
	for _, st := range []task.Status{task.StatusPending, task.StatusProcessing, task.StatusFailed} {
		tk := completedTask()
		tk.Status = st
		if _, err := Build(tk, fixedNow); !errors.Is(err, ErrNotCompleted) {
			t.Fatalf("status %s: expected ErrNotCompleted, got %v", st, err)
		}
	}
}

func TestBuildDefaultsFilename(t *testing.T) {
	tk := completedTask()
	tk.Filename = ""
	rep, err := Build(tk, fixedNow)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if rep.Filename != "unknown file" {
		t.Fatalf("unexpected filename %q", rep.Filename)
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"": FormatJSON, "JSON": FormatJSON, "yml": FormatYAML, "xlsx": FormatXLSX, " html ": FormatHTML}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("pdf"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}

func build(t *testing.T) Report {
	t.Helper()
	rep, err := Build(completedTask(), fixedNow)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return rep
}

func TestRenderJSON(t *testing.T) {
	rep := build(t)
	var buf bytes.Buffer
	if err := Render(&buf, rep, FormatJSON); err != nil {
		t.Fatalf("render: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"task_id", "report_title", "filename", "generated_at", "executive_summary", "detailed_analysis", "recommendations"} {
		if _, ok := out[key]; !ok {
			t.Fatalf("missing key %q in %s", key, buf.String())
		}
	}
	cc := out["detailed_analysis"].(map[string]any)["chemical_compounds"].(map[string]any)
	if _, ok := cc["structure_properties"]; !ok {
		t.Fatalf("missing structure_properties")
	}
}

func TestRenderYAML(t *testing.T) {
	rep := build(t)
	var buf bytes.Buffer
	if err := Render(&buf, rep, FormatYAML); err != nil {
		t.Fatalf("render: %v", err)
	}

	var out Report
	if err := yaml.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ExecutiveSummary != rep.ExecutiveSummary {
		t.Fatalf("executive summary lost: %q", out.ExecutiveSummary)
	}
	if out.DetailedAnalysis.TechnicalAnalysis.PagesAnalyzed != 12 {
		t.Fatalf("unexpected pages %d", out.DetailedAnalysis.TechnicalAnalysis.PagesAnalyzed)
	}
}

func TestRenderXLSX(t *testing.T) {
	rep := build(t)
	var buf bytes.Buffer
	if err := Render(&buf, rep, FormatXLSX); err != nil {
		t.Fatalf("render: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	got, err := f.GetCellValue(sheetSummary, "B6")
	if err != nil {
		t.Fatalf("read cell: %v", err)
	}
	if got != rep.ExecutiveSummary {
		t.Fatalf("expected executive summary in B6, got %q", got)
	}

	formula, _ := f.GetCellValue(sheetCompounds, "B2")
	kind, _ := f.GetCellValue(sheetCompounds, "C2")
	if formula != "C6H6" || kind != analysis.CompoundOrganic {
		t.Fatalf("unexpected compound row %q %q", formula, kind)
	}

	element, _ := f.GetCellValue(sheetElements, "A2")
	if element != analysis.FieldTitle {
		t.Fatalf("expected elements in extraction order, got %q first", element)
	}
}

func TestRenderHTML(t *testing.T) {
	rep := build(t)
	var buf bytes.Buffer
	if err := Render(&buf, rep, FormatHTML); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()

	if !strings.HasPrefix(out, "<!DOCTYPE html>") {
		t.Fatalf("missing doctype: %.40q", out)
	}
	if strings.Contains(out, "<b>solvents</b>") {
		t.Fatalf("patent text must be escaped")
	}

	doc, err := html.Parse(strings.NewReader(out))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var found bool
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode && n.Data == rep.ExecutiveSummary {
			found = true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if !found {
		t.Fatalf("executive summary not rendered")
	}
}

func TestRenderUnknownFormat(t *testing.T) {
	if err := Render(&bytes.Buffer{}, build(t), Format("pdf")); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}
