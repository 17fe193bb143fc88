package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/toricodesthings/patent-analysis-service/internal/analysis"
	"github.com/toricodesthings/patent-analysis-service/internal/config"
	"github.com/toricodesthings/patent-analysis-service/internal/extract"
	"github.com/toricodesthings/patent-analysis-service/internal/extractors/pdf"
	"github.com/toricodesthings/patent-analysis-service/internal/pdftest"
	"github.com/toricodesthings/patent-analysis-service/internal/task"
	"github.com/toricodesthings/patent-analysis-service/internal/worker"
)

type fakeDispatcher struct {
	mu   sync.Mutex
	jobs []worker.Job
}

func (d *fakeDispatcher) Submit(job worker.Job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
}

func (d *fakeDispatcher) Running() int64 { return 0 }

type testEnv struct {
	srv     *Server
	handler http.Handler
	tasks   *task.Registry
	disp    *fakeDispatcher
	scratch string
}

func newEnv(t *testing.T, mutate ...func(*config.Config)) testEnv {
	t.Helper()
	cfg := config.Config{
		MaxUploadBytes:        1 << 20,
		MaxConcurrentRequests: 4,
		RateLimitEvery:        time.Millisecond,
		RateLimitBurst:        100,
		HealthDegradeRatio:    0.9,
		ScratchDir:            t.TempDir(),
		CORSAllowedOrigins:    []string{"*"},
	}
	for _, m := range mutate {
		m(&cfg)
	}

	extractors := extract.NewRegistry()
	extractors.Register(pdf.New(cfg.MaxUploadBytes, pdf.PopplerConfig{}))

	tasks := task.NewRegistry()
	disp := &fakeDispatcher{}
	srv := New(cfg, tasks, extractors, disp)
	srv.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	return testEnv{srv: srv, handler: srv.Handler(), tasks: tasks, disp: disp, scratch: cfg.ScratchDir}
}

func uploadRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (e testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e testEnv) get(path string) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func assertNoScratch(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read scratch: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty scratch dir, found %d entries", len(entries))
	}
}

func completedResult() analysis.Result {
	res := analysis.Result{
		ChemicalFormulas: []string{"C6H6", "NaCl"},
		SMILESStructures: []string{"CCO"},
		PatentElements:   map[string]string{analysis.FieldTitle: "Aromatic solvent blends"},
		ImagesExtracted:  1,
		PagesProcessed:   3,
	}
	analysis.Summarize(&res)
	return res
}

func TestUploadAcceptsPDF(t *testing.T) {
	env := newEnv(t)
	doc := pdftest.Build([]string{"Title of Invention: Aromatic solvent blends"})

	rec := env.do(uploadRequest(t, "file", "patent.pdf", doc))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	out := decode(t, rec)
	id, _ := out["task_id"].(string)
	if id == "" || out["filename"] != "patent.pdf" || out["message"] == "" {
		t.Fatalf("unexpected body %v", out)
	}

	tk, err := env.tasks.Get(id)
	if err != nil {
		t.Fatalf("task not registered: %v", err)
	}
	if tk.Status != task.StatusPending || tk.Filename != "patent.pdf" {
		t.Fatalf("unexpected task %#v", tk)
	}
	if !extract.IsMIME(tk.MIMEType, "application/pdf") {
		t.Fatalf("expected sniffed pdf type, got %q", tk.MIMEType)
	}

	if len(env.disp.jobs) != 1 || env.disp.jobs[0].TaskID != id {
		t.Fatalf("expected one dispatched job, got %#v", env.disp.jobs)
	}
	stored, err := os.ReadFile(env.disp.jobs[0].Scratch.Path)
	if err != nil || !bytes.Equal(stored, doc) {
		t.Fatalf("scratch copy mismatch: %v", err)
	}
}

func TestUploadRejections(t *testing.T) {
	cases := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		wantCode int
		wantMsg  string
	}{
		{
			name:     "unsupported extension",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "file", "data.exe", []byte("MZ")) },
			wantCode: http.StatusBadRequest,
			wantMsg:  "unsupported file type, please upload a PDF file",
		},
		{
			name:     "missing file part",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "attachment", "patent.pdf", []byte("%PDF-1.4")) },
			wantCode: http.StatusBadRequest,
			wantMsg:  "no file uploaded",
		},
		{
			name:     "empty filename",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "file", "", []byte("%PDF-1.4")) },
			wantCode: http.StatusBadRequest,
			wantMsg:  "no file selected",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("{}"))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			wantCode: http.StatusBadRequest,
			wantMsg:  "no file uploaded",
		},
		{
			name: "oversized",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "file", "big.pdf", bytes.Repeat([]byte{'x'}, 1<<20+10))
			},
			wantCode: http.StatusBadRequest,
			wantMsg:  "file exceeds 1MB limit",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newEnv(t)
			rec := env.do(tc.req(t))
			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d: %s", tc.wantCode, rec.Code, rec.Body.String())
			}
			if got := decode(t, rec)["error"]; got != tc.wantMsg {
				t.Fatalf("expected error %q, got %v", tc.wantMsg, got)
			}
			if env.tasks.Len() != 0 || len(env.disp.jobs) != 0 {
				t.Fatalf("no task may be created on a rejected upload")
			}
			assertNoScratch(t, env.scratch)
		})
	}
}

func TestUploadStrictMIME(t *testing.T) {
	env := newEnv(t, func(c *config.Config) { c.StrictMIME = true })

	rec := env.do(uploadRequest(t, "file", "notes.pdf", []byte("just some plain text, not a document")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env.tasks.Len() != 0 {
		t.Fatalf("no task may be created")
	}
	assertNoScratch(t, env.scratch)

	rec = env.do(uploadRequest(t, "file", "real.pdf", pdftest.Build([]string{"hello"})))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected real pdf accepted, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUploadRateLimited(t *testing.T) {
	env := newEnv(t, func(c *config.Config) {
		c.RateLimitEvery = time.Hour
		c.RateLimitBurst = 1
	})

	doc := pdftest.Build([]string{"hello"})
	if rec := env.do(uploadRequest(t, "file", "a.pdf", doc)); rec.Code != http.StatusOK {
		t.Fatalf("first upload: expected 200, got %d", rec.Code)
	}
	rec := env.do(uploadRequest(t, "file", "b.pdf", doc))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second upload: expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestUploadWrongMethod(t *testing.T) {
	env := newEnv(t)
	if rec := env.get("/upload"); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestQueryEndpointsUnknownTask(t *testing.T) {
	env := newEnv(t)
	for _, path := range []string{"/analyze/nope", "/status/nope", "/report/nope"} {
		rec := env.get(path)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, rec.Code)
		}
		if decode(t, rec)["error"] != "task not found" {
			t.Fatalf("%s: unexpected body %s", path, rec.Body.String())
		}
	}
}

func TestAnalyzeByStatus(t *testing.T) {
	env := newEnv(t)

	pending := env.tasks.Create("a.pdf", "application/pdf")
	rec := env.get("/analyze/" + pending.ID)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("pending: expected 202, got %d", rec.Code)
	}
	out := decode(t, rec)
	if out["status"] != "pending" || out["progress"] != float64(0) || out["message"] == "" {
		t.Fatalf("pending: unexpected body %v", out)
	}

	running := env.tasks.Create("b.pdf", "application/pdf")
	_ = env.tasks.Start(running.ID)
	out = decode(t, env.get("/analyze/"+running.ID))
	if out["status"] != "processing" || out["progress"] != float64(task.ProgressStart) {
		t.Fatalf("processing: unexpected body %v", out)
	}

	done := env.tasks.Create("c.pdf", "application/pdf")
	_ = env.tasks.Start(done.ID)
	_ = env.tasks.Complete(done.ID, completedResult())
	rec = env.get("/analyze/" + done.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("completed: expected 200, got %d", rec.Code)
	}
	out = decode(t, rec)
	result, ok := out["result"].(map[string]any)
	if !ok {
		t.Fatalf("completed: missing result in %v", out)
	}
	if result["pages_processed"] != float64(3) {
		t.Fatalf("completed: unexpected result %v", result)
	}
	summary := result["analysis_summary"].(map[string]any)
	if summary["total_compounds"] != float64(2) || summary["patent_strength"] != "low" {
		t.Fatalf("completed: unexpected summary %v", summary)
	}

	failed := env.tasks.Create("d.pdf", "application/pdf")
	_ = env.tasks.Start(failed.ID)
	_ = env.tasks.Fail(failed.ID, errors.New("open document: no such file"))
	rec = env.get("/analyze/" + failed.ID)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("failed: expected 500, got %d", rec.Code)
	}
	out = decode(t, rec)
	if out["status"] != "failed" || out["error"] != "open document: no such file" {
		t.Fatalf("failed: unexpected body %v", out)
	}
}

func TestStatusEndpoint(t *testing.T) {
	env := newEnv(t)
	tk := env.tasks.Create("patent.pdf", "application/pdf")

	rec := env.get("/status/" + tk.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	out := decode(t, rec)
	for _, key := range []string{"task_id", "status", "progress", "message", "filename", "created_at"} {
		if _, ok := out[key]; !ok {
			t.Fatalf("missing %q in %v", key, out)
		}
	}
	if _, err := time.Parse(time.RFC3339, out["created_at"].(string)); err != nil {
		t.Fatalf("created_at is not RFC3339: %v", err)
	}
	if out["filename"] != "patent.pdf" {
		t.Fatalf("unexpected filename %v", out["filename"])
	}
}

func TestReportEndpoint(t *testing.T) {
	env := newEnv(t)

	running := env.tasks.Create("a.pdf", "application/pdf")
	_ = env.tasks.Start(running.ID)
	if rec := env.get("/report/" + running.ID); rec.Code != http.StatusBadRequest {
		t.Fatalf("processing: expected 400, got %d", rec.Code)
	}

	done := env.tasks.Create("patent.pdf", "application/pdf")
	_ = env.tasks.Start(done.ID)
	_ = env.tasks.Complete(done.ID, completedResult())

	rec := env.get("/report/" + done.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	out := decode(t, rec)
	if out["report_title"] != "Patent Analysis Report" || out["generated_at"] != "2026-01-02 03:04:05" {
		t.Fatalf("unexpected header fields %v", out)
	}
	if out["executive_summary"] != "Identified 2 chemical formulas and 1 chemical structures across 3 pages." {
		t.Fatalf("unexpected summary %v", out["executive_summary"])
	}
	if recs, _ := out["recommendations"].([]any); len(recs) != 3 {
		t.Fatalf("expected 3 recommendations, got %v", out["recommendations"])
	}

	rec = env.get("/report/" + done.ID + "?format=xlsx")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Header().Get("Content-Type"), "spreadsheetml") {
		t.Fatalf("xlsx: unexpected %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), done.ID+".xlsx") {
		t.Fatalf("xlsx: unexpected disposition %q", rec.Header().Get("Content-Disposition"))
	}

	rec = env.get("/report/" + done.ID + "?format=yaml")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "executive_summary:") {
		t.Fatalf("yaml: unexpected %d %s", rec.Code, rec.Body.String())
	}

	rec = env.get("/report/" + done.ID + "?format=html")
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != http.StatusOK || !bytes.Contains(body, []byte("Patent Analysis Report")) {
		t.Fatalf("html: unexpected %d", rec.Code)
	}

	if rec := env.get("/report/" + done.ID + "?format=docx"); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown format: expected 400, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newEnv(t)
	env.tasks.Create("a.pdf", "application/pdf")

	rec := env.get("/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	out := decode(t, rec)
	if out["status"] != "healthy" || out["version"] != Version {
		t.Fatalf("unexpected health %v", out)
	}

	out = decode(t, env.get("/metrics"))
	tasks, ok := out["tasks"].(map[string]any)
	if !ok || tasks["pending"] != float64(1) {
		t.Fatalf("expected one pending task in metrics, got %v", out["tasks"])
	}
}

func TestCORSHeaders(t *testing.T) {
	env := newEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://patents.example.com")

	rec := env.do(req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard CORS origin, got %q", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := withRecovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestSanitizeError(t *testing.T) {
	err := errors.New("open " + os.TempDir() + "/patent-123/upload.pdf: " + strings.Repeat("x", 400))
	got := sanitizeError(err)
	if strings.Contains(got, os.TempDir()) {
		t.Fatalf("temp dir leaked: %q", got)
	}
	if len(got) != 303 || !strings.HasSuffix(got, "...") {
		t.Fatalf("expected truncation to 300 chars plus ellipsis, got %d", len(got))
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Fatalf("expected first forwarded address, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.2:5555"
	if got := clientIP(req); got != "198.51.100.2" {
		t.Fatalf("expected remote host, got %q", got)
	}
}
