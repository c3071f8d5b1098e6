package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/ssargent/visionfs/pkg/codec"
	"github.com/ssargent/visionfs/pkg/engine"
	"github.com/ssargent/visionfs/pkg/layout"
	"github.com/ssargent/visionfs/pkg/record"
	"github.com/ssargent/visionfs/pkg/vision"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// errBadRequest marks errors caused by the query string
var errBadRequest = errors.New("bad request")

// Server holds the API server state
type Server struct {
	files   FileProvider
	config  ServerConfig
	metrics *Metrics
	logger  *slog.Logger
}

// NewServer creates a new API server
func NewServer(files FileProvider, config ServerConfig, metrics *Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		files:   files,
		config:  config,
		metrics: metrics,
		logger:  logger,
	}
}

// statusFor maps an error to the HTTP status reported to the client
func statusFor(err error) int {
	switch {
	case errors.Is(err, vision.ErrDefinitionNotFound), errors.Is(err, vision.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, layout.ErrFieldNotFound),
		errors.Is(err, layout.ErrSubscriptRange),
		errors.Is(err, vision.ErrKeyIndex),
		errors.Is(err, codec.ErrParse),
		errors.Is(err, codec.ErrValueTooLong),
		errors.Is(err, codec.ErrValueOverflow),
		errors.Is(err, codec.ErrNegativeUnsigned):
		return http.StatusBadRequest
	case errors.Is(err, vision.ErrLocked):
		return http.StatusLocked
	case errors.Is(err, engine.ErrGateTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	sendError(w, err.Error(), code)
}

func intParam(q url.Values, name string, def int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.Wrapf(errBadRequest, "%s must be a non-negative integer, got %q", name, v)
	}
	return n, nil
}

// openFile opens a session for reading; the caller disposes it
func (s *Server) openFile(name string) (*vision.File, error) {
	f, err := s.files.GetFile(name)
	if err != nil {
		return nil, err
	}
	if err := f.Open(engine.Input); err != nil {
		return nil, err
	}
	return f, nil
}

// handleHealth godoc
//
//	@Summary		Health check
//	@Description	Get the health status of the API
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	map[string]string
//	@Router			/health [get]
//	@Security		ApiKeyAuth
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordHealthCheck(true)
	sendSuccess(w, map[string]string{"status": "healthy"})
}

// handleListFiles godoc
//
//	@Summary		List files
//	@Description	List every file with a registered layout
//	@Tags			files
//	@Produce		json
//	@Success		200	{array}	FileSummary
//	@Router			/files [get]
//	@Security		ApiKeyAuth
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	defs := s.files.Definitions()
	out := make([]FileSummary, 0, len(defs))
	for _, def := range defs {
		out = append(out, summarize(def))
	}
	sendSuccess(w, out)
}

// handleGetDefinition godoc
//
//	@Summary		Get a file layout
//	@Tags			files
//	@Produce		json
//	@Param			name	path		string	true	"File name"
//	@Success		200		{object}	layout.FileDefinition
//	@Failure		404		{object}	APIResponse
//	@Router			/files/{name}/definition [get]
//	@Security		ApiKeyAuth
func (s *Server) handleGetDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := s.files.Definition(chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sendSuccess(w, def)
}

// handleListRecords godoc
//
//	@Summary		List records
//	@Description	Read records in key order. start=FIELD=VALUE sets key fields of the starting
//	@Description	position; mode is eq, gt, ge (default), lt or le. lt and le read backwards.
//	@Tags			records
//	@Produce		json
//	@Param			name	path		string	true	"File name"
//	@Param			key		query		int		false	"Key index (default 0)"
//	@Param			start	query		string	false	"FIELD=VALUE, repeatable"
//	@Param			mode	query		string	false	"Start mode"
//	@Param			limit	query		int		false	"Maximum records (default 100)"
//	@Success		200		{object}	RecordsResponse
//	@Failure		400		{object}	APIResponse
//	@Failure		404		{object}	APIResponse
//	@Router			/files/{name}/records [get]
//	@Security		ApiKeyAuth
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	keyIndex, err := intParam(q, "key", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := intParam(q, "limit", defaultLimit)
	if err != nil || limit == 0 || limit > maxLimit {
		s.fail(w, r, errors.Wrapf(errBadRequest, "limit must be between 1 and %d", maxLimit))
		return
	}
	mode := engine.GreaterOrEqual
	if m := q.Get("mode"); m != "" {
		var ok bool
		if mode, ok = engine.ParseStartMode(m); !ok {
			s.fail(w, r, errors.Wrapf(errBadRequest, "unknown mode %q", m))
			return
		}
	}
	backward := mode == engine.Less || mode == engine.LessOrEqual

	name := chi.URLParam(r, "name")
	f, err := s.openFile(name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer f.Dispose()

	var seed *record.Record
	switch starts := q["start"]; {
	case len(starts) > 0:
		seed = f.NewRecord()
		for _, st := range starts {
			field, value, ok := strings.Cut(st, "=")
			if !ok {
				s.fail(w, r, errors.Wrapf(errBadRequest, "start must be FIELD=VALUE, got %q", st))
				return
			}
			if err := seed.SetText(field, value); err != nil {
				s.fail(w, r, err)
				return
			}
		}
	case backward:
		seed = f.HighValues()
	default:
		seed = f.LowValues()
	}

	resp := RecordsResponse{File: f.Definition().FileName, KeyIndex: keyIndex, Records: []map[string]any{}}
	found, err := f.Start(keyIndex, seed, mode)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	for found && len(resp.Records) < limit {
		var rec *record.Record
		if backward {
			rec, err = f.ReadPrevious()
		} else {
			rec, err = f.ReadNext()
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if rec == nil {
			break
		}
		m, err := rec.Map()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		resp.Records = append(resp.Records, m)
	}
	resp.Count = len(resp.Records)

	s.metrics.RecordRecordsServed(resp.File, resp.Count)
	sendSuccess(w, resp)
}

// handleGetRecord godoc
//
//	@Summary		Get one record
//	@Description	Read the record whose key equals the given fields. Every query parameter
//	@Description	other than key names a field of the selected key.
//	@Tags			records
//	@Produce		json
//	@Param			name	path		string	true	"File name"
//	@Param			key		query		int		false	"Key index (default 0)"
//	@Success		200		{object}	map[string]any
//	@Failure		400		{object}	APIResponse
//	@Failure		404		{object}	APIResponse
//	@Router			/files/{name}/record [get]
//	@Security		ApiKeyAuth
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	keyIndex, err := intParam(q, "key", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	name := chi.URLParam(r, "name")
	f, err := s.openFile(name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer f.Dispose()

	key := f.NewRecord()
	for field, values := range q {
		if field == "key" || len(values) == 0 {
			continue
		}
		if err := key.SetText(field, values[0]); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	rec, err := f.Read(key, keyIndex)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if rec == nil {
		sendError(w, fmt.Sprintf("Record not found in %s", f.Definition().FileName), http.StatusNotFound)
		return
	}
	m, err := rec.Map()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.metrics.RecordRecordsServed(f.Definition().FileName, 1)
	sendSuccess(w, m)
}
