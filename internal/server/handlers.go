package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/toricodesthings/patent-analysis-service/internal/extract"
	"github.com/toricodesthings/patent-analysis-service/internal/report"
	"github.com/toricodesthings/patent-analysis-service/internal/task"
	"github.com/toricodesthings/patent-analysis-service/internal/worker"
)

const (
	uploadField = "file"

	msgNoFile      = "no file uploaded"
	msgNoSelection = "no file selected"
	msgUnsupported = "unsupported file type, please upload a PDF file"
	msgAccepted    = "file uploaded, analysis started"
	msgNotFound    = "task not found"

	// room for multipart headers and boundaries on top of the file cap
	multipartOverhead = 1 << 20
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, active := s.metrics.get()
	status := "healthy"
	code := http.StatusOK

	ratio := s.cfg.HealthDegradeRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.9
	}

	if active >= int64(float64(s.cfg.MaxConcurrentRequests)*ratio) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"active":  active,
		"version": Version,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	total, active := s.metrics.get()
	accepted, rejected := s.metrics.uploadCounts()

	counts := s.tasks.Counts()
	tasks := make(map[string]int, len(counts))
	for st, n := range counts {
		tasks[string(st)] = n
	}

	var running int64
	if s.dispatcher != nil {
		running = s.dispatcher.Running()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"activeRequests":  active,
		"totalRequests":   total,
		"uploadsAccepted": accepted,
		"uploadsRejected": rejected,
		"runningAnalyses": running,
		"tasks":           tasks,
		"goroutines":      runtime.NumGoroutine(),
		"memAllocMB":      m.Alloc / (1 << 20),
		"memSysMB":        m.Sys / (1 << 20),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		s.rejectUpload(w, http.StatusBadRequest, "bad_request", msgNoFile)
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			s.rejectUpload(w, http.StatusBadRequest, "bad_request", msgNoFile)
			return
		}
		if err != nil {
			if tooLarge(err) {
				s.rejectUpload(w, http.StatusBadRequest, "too_large", s.sizeLimitMessage())
				return
			}
			s.rejectUpload(w, http.StatusBadRequest, "bad_request", sanitizeError(err))
			return
		}
		if part.FormName() != uploadField {
			_ = part.Close()
			continue
		}
		s.acceptUpload(w, part)
		return
	}
}

func (s *Server) acceptUpload(w http.ResponseWriter, part *multipart.Part) {
	defer part.Close()

	name := strings.TrimSpace(part.FileName())
	if name == "" {
		s.rejectUpload(w, http.StatusBadRequest, "validation_failed", msgNoSelection)
		return
	}

	ex, err := s.extractors.ForExtension(filepath.Ext(name))
	if err != nil {
		s.rejectUpload(w, http.StatusBadRequest, "unsupported_type", msgUnsupported)
		return
	}

	sf, err := extract.SaveToScratch(part, s.cfg.ScratchDir, name, s.cfg.MaxUploadBytes)
	if err != nil {
		if tooLarge(err) {
			s.rejectUpload(w, http.StatusBadRequest, "too_large", s.sizeLimitMessage())
			return
		}
		log.Error().Err(err).Str("filename", sanitizeLogString(name)).Msg("store upload")
		s.rejectUpload(w, http.StatusInternalServerError, "internal_error", sanitizeError(err))
		return
	}

	if s.cfg.StrictMIME && !mimeAllowed(sf.MIMEType, ex.SupportedTypes()) {
		sf.Cleanup()
		log.Warn().Str("mime", sf.MIMEType).Str("filename", sanitizeLogString(name)).Msg("content does not match extension")
		s.rejectUpload(w, http.StatusBadRequest, "unsupported_type", msgUnsupported)
		return
	}

	t := s.tasks.Create(name, sf.MIMEType)
	s.dispatcher.Submit(worker.Job{TaskID: t.ID, Scratch: sf})
	s.metrics.accepted()

	log.Info().
		Str("task_id", t.ID).
		Str("filename", sanitizeLogString(name)).
		Int64("bytes", sf.Size).
		Str("mime", sf.MIMEType).
		Msg("upload accepted")

	writeJSON(w, http.StatusOK, map[string]any{
		"task_id":  t.ID,
		"filename": name,
		"message":  msgAccepted,
	})
}

func (s *Server) rejectUpload(w http.ResponseWriter, status int, code, message string) {
	s.metrics.reject()
	writeErr(w, status, code, message)
}

func (s *Server) sizeLimitMessage() string {
	return (&extract.SizeLimitError{Limit: s.cfg.MaxUploadBytes}).Error()
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.Is(err, extract.ErrTooLarge) || errors.As(err, &mbe)
}

func mimeAllowed(detected string, allowed []string) bool {
	for _, a := range allowed {
		if extract.IsMIME(detected, a) {
			return true
		}
	}
	return false
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (task.Task, bool) {
	t, err := s.tasks.Get(r.PathValue("task_id"))
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "not_found", msgNotFound)
			return task.Task{}, false
		}
		writeErr(w, http.StatusInternalServerError, "internal_error", sanitizeError(err))
		return task.Task{}, false
	}
	return t, true
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookup(w, r)
	if !ok {
		return
	}

	switch t.Status {
	case task.StatusCompleted:
		writeJSON(w, http.StatusOK, map[string]any{
			"task_id": t.ID,
			"status":  t.Status,
			"result":  t.Result,
		})
	case task.StatusFailed:
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"task_id": t.ID,
			"status":  t.Status,
			"error":   sanitizeError(errors.New(t.Error)),
		})
	default:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"task_id":  t.ID,
			"status":   t.Status,
			"progress": t.Progress,
			"message":  t.Message,
		})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookup(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"task_id":    t.ID,
		"status":     t.Status,
		"progress":   t.Progress,
		"message":    t.Message,
		"filename":   t.Filename,
		"created_at": t.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookup(w, r)
	if !ok {
		return
	}

	rep, err := report.Build(t, s.now())
	if err != nil {
		writeErr(w, http.StatusBadRequest, "not_completed", err.Error())
		return
	}

	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var buf bytes.Buffer
	if err := report.Render(&buf, rep, format); err != nil {
		log.Error().Err(err).Str("task_id", t.ID).Str("format", string(format)).Msg("render report")
		writeErr(w, http.StatusInternalServerError, "internal_error", sanitizeError(err))
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	if format != report.FormatJSON {
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", "patent-report-"+t.ID+format.Extension()))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
