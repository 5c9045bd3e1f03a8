package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/bgbearoff/bearoff/internal/bearoff"
	"github.com/bgbearoff/bearoff/internal/positionid"
	"github.com/bgbearoff/bearoff/pkg/engine"
)

// Handlers holds the HTTP handlers and engine reference.
type Handlers struct {
	engine  *engine.Engine
	version string
	pool    *WorkerPool
}

// NewHandlers creates a new Handlers instance without a worker pool.
func NewHandlers(e *engine.Engine, version string) *Handlers {
	return &Handlers{
		engine:  e,
		version: version,
	}
}

// NewHandlersWithPool creates a new Handlers instance with a worker pool.
func NewHandlersWithPool(e *engine.Engine, version string, pool *WorkerPool) *Handlers {
	return &Handlers{
		engine:  e,
		version: version,
		pool:    pool,
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("writing response")
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, msg string, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: msg,
		Code:  code,
	})
}

// errorStatus maps engine and database errors to an HTTP status and code.
func errorStatus(err error) (int, string) {
	var (
		unsupported *bearoff.UnsupportedError
		integrity   *bearoff.IntegrityError
	)
	switch {
	case errors.Is(err, errMissingPosition):
		return http.StatusBadRequest, "MISSING_POSITION"
	case errors.Is(err, errInvalidSide):
		return http.StatusBadRequest, "INVALID_SIDE"
	case errors.Is(err, positionid.ErrInvalidPositionID), errors.Is(err, engine.ErrInvalidBoard):
		return http.StatusBadRequest, "INVALID_POSITION"
	case errors.Is(err, bearoff.ErrPositionRange):
		return http.StatusBadRequest, "POSITION_RANGE"
	case errors.Is(err, bearoff.ErrNotBearoff):
		return http.StatusUnprocessableEntity, "NOT_BEAROFF"
	case errors.As(err, &unsupported):
		return http.StatusUnprocessableEntity, "UNSUPPORTED"
	case errors.Is(err, engine.ErrNoDatabase):
		return http.StatusNotFound, "NO_DATABASE"
	case errors.As(err, &integrity):
		return http.StatusInternalServerError, "CORRUPT_DATABASE"
	default:
		return http.StatusInternalServerError, "LOOKUP_ERROR"
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("code", code).Msg("bearoff query failed")
	}
	writeError(w, status, err.Error(), code)
}

// decode reads a JSON request body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "INVALID_JSON")
		return false
	}
	return true
}

// fast runs fn in a lookup slot if a pool is configured.
func (h *Handlers) fast(w http.ResponseWriter, r *http.Request, fn func()) {
	if h.pool != nil {
		if err := h.pool.AcquireFast(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "server busy", "SERVER_BUSY")
			return
		}
		defer h.pool.ReleaseFast()
	}
	fn()
}

// Health handles GET /api/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: h.version,
		Ready:   h.engine != nil && len(h.engine.Databases()) > 0,
	}

	if h.pool != nil {
		stats := h.pool.Stats()
		resp.Pool = &stats
	}

	writeJSON(w, http.StatusOK, resp)
}

// Info handles GET /api/info
func (h *Handlers) Info(w http.ResponseWriter, r *http.Request) {
	resp := InfoResponse{Databases: h.engine.Info()}
	if c := h.engine.Cache(); c != nil {
		lookups, hits, _ := c.Stats()
		resp.Cache = &CacheStats{Size: c.Size(), Lookups: lookups, Hits: hits, HitRate: c.HitRate()}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Evaluate handles POST /api/evaluate
func (h *Handlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !decode(w, r, &req) {
		return
	}
	board, err := req.Board()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	h.fast(w, r, func() {
		eval, err := h.engine.Evaluate(board)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, EvalToResponse(board, eval))
	})
}

// distribution answers a DistributionRequest.
func (h *Handlers) distribution(req DistributionRequest) (*DistributionResponse, error) {
	var (
		d   *engine.SideDistribution
		err error
	)
	if req.ID != nil {
		d, err = h.engine.DistributionByID(*req.ID)
	} else {
		var board engine.Board
		board, err = req.Board()
		if err != nil {
			return nil, err
		}
		side := 1
		if req.Side != nil {
			side = *req.Side
		}
		if side != 0 && side != 1 {
			return nil, errInvalidSide
		}
		d, err = h.engine.Distribution(board, side)
	}
	if err != nil {
		return nil, err
	}
	return DistributionToResponse(d), nil
}

// Distribution handles POST /api/distribution
func (h *Handlers) Distribution(w http.ResponseWriter, r *http.Request) {
	var req DistributionRequest
	if !decode(w, r, &req) {
		return
	}

	h.fast(w, r, func() {
		resp, err := h.distribution(req)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

// cubeful answers a CubefulRequest.
func (h *Handlers) cubeful(req CubefulRequest) (*CubefulResponse, error) {
	board, err := req.Board()
	if err != nil {
		return nil, err
	}
	id, ev, err := h.engine.Cubeful(board)
	if err != nil {
		return nil, err
	}
	return CubefulToResponse(id, ev), nil
}

// Cubeful handles POST /api/cubeful
func (h *Handlers) Cubeful(w http.ResponseWriter, r *http.Request) {
	var req CubefulRequest
	if !decode(w, r, &req) {
		return
	}

	h.fast(w, r, func() {
		resp, err := h.cubeful(req)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

// verify scans the database named by req, holding a slow slot.
func (h *Handlers) verify(ctx context.Context, req VerifyRequest, progress func(done, total int)) (*VerifyResponse, error) {
	t, err := parseType(req.Type)
	if err != nil {
		return nil, err
	}
	db := h.engine.Database(t)
	if db == nil {
		return nil, engine.ErrNoDatabase
	}

	if h.pool != nil {
		if err := h.pool.AcquireSlow(ctx); err != nil {
			return nil, err
		}
		defer h.pool.ReleaseSlow()
	}

	report, err := bearoff.Verify(ctx, db, bearoff.VerifyOptions{
		Workers:   req.Workers,
		Tolerance: req.Tolerance,
		Progress:  progress,
	})
	if err != nil {
		return nil, err
	}
	return &VerifyResponse{Type: t.String(), VerifyReport: report}, nil
}

// Verify handles POST /api/verify
func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !decode(w, r, &req) {
		return
	}
	if _, err := parseType(req.Type); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_TYPE")
		return
	}

	resp, err := h.verify(r.Context(), req, nil)
	if err != nil {
		if r.Context().Err() != nil {
			writeError(w, http.StatusServiceUnavailable, "request cancelled", "CANCELLED")
			return
		}
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
