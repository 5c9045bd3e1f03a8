// Package api provides an HTTP/JSON and WebSocket query service over the
// bearoff engine.
package api

import (
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/bgbearoff/bearoff/internal/bearoff"
	"github.com/bgbearoff/bearoff/internal/positionid"
	"github.com/bgbearoff/bearoff/pkg/engine"
)

// ============================================================================
// Request Types
// ============================================================================

// BoardRequest identifies a board, either by gnubg position ID or by the
// chequer counts per point of each side (index 0 = 1-point, 24 = bar).
type BoardRequest struct {
	Position string  `json:"position,omitempty"` // Position ID (gnubg format)
	OnRoll   []uint8 `json:"on_roll,omitempty"`  // Side to move
	Opponent []uint8 `json:"opponent,omitempty"` // Side not on roll
}

var (
	errMissingPosition = errors.New("position is required")
	errInvalidSide     = errors.New("side must be 0 (opponent) or 1 (on roll)")
)

// Board decodes the requested board.
func (b BoardRequest) Board() (engine.Board, error) {
	if b.Position != "" {
		return positionid.BoardFromPositionID(b.Position)
	}
	if len(b.OnRoll) == 0 && len(b.Opponent) == 0 {
		return engine.Board{}, errMissingPosition
	}
	if len(b.OnRoll) > 25 || len(b.Opponent) > 25 {
		return engine.Board{}, fmt.Errorf("%w: at most 25 points per side", positionid.ErrInvalidPositionID)
	}
	board := engine.MakeBoard(b.OnRoll, b.Opponent)
	if !positionid.CheckPosition(board) {
		return board, fmt.Errorf("%w: illegal board", positionid.ErrInvalidPositionID)
	}
	return board, nil
}

// EvaluateRequest is the request body for position evaluation.
type EvaluateRequest struct {
	BoardRequest
}

// DistributionRequest asks for the one-sided distribution of one side of a
// board, or of a one-sided position id directly.
type DistributionRequest struct {
	BoardRequest
	Side *int `json:"side,omitempty"` // 1 = on roll (default), 0 = opponent
	ID   *int `json:"id,omitempty"`   // One-sided position id
}

// CubefulRequest is the request body for two-sided equities.
type CubefulRequest struct {
	BoardRequest
}

// VerifyRequest is the request body for a database scan.
type VerifyRequest struct {
	Type      string  `json:"type"`                // "one-sided", "two-sided" or "hypergammon"
	Workers   int     `json:"workers,omitempty"`   // Scanner goroutines (default GOMAXPROCS)
	Tolerance float64 `json:"tolerance,omitempty"` // Allowed deviation from a total of 1
}

// ============================================================================
// Response Types
// ============================================================================

// EvaluateResponse is the response for position evaluation.
type EvaluateResponse struct {
	Position string  `json:"position"` // Position ID of the evaluated board
	Equity   float64 `json:"equity"`   // Cubeless equity
	Win      float64 `json:"win"`      // P(win) as percentage
	WinG     float64 `json:"win_g"`    // P(win gammon) as percentage
	WinBG    float64 `json:"win_bg"`   // P(win backgammon) as percentage
	LoseG    float64 `json:"lose_g"`   // P(lose gammon) as percentage
	LoseBG   float64 `json:"lose_bg"`  // P(lose backgammon) as percentage
	Source   string  `json:"source"`   // Table that answered
}

// DistributionResponse holds a one-sided distribution. Trailing zero
// buckets are omitted.
type DistributionResponse struct {
	ID           int       `json:"id"`
	Prob         []float32 `json:"prob"`             // P(off in exactly i rolls)
	Gammon       []float32 `json:"gammon,omitempty"` // P(first chequer off in exactly i rolls)
	MeanRolls    float32   `json:"mean_rolls"`
	StdDevRolls  float32   `json:"std_dev_rolls"`
	MeanGammon   float32   `json:"mean_gammon_rolls,omitempty"`
	StdDevGammon float32   `json:"std_dev_gammon_rolls,omitempty"`
}

// CubefulResponse holds the equities stored in a two-sided table.
type CubefulResponse struct {
	ID       int       `json:"id"`
	Cubeless float32   `json:"cubeless"`
	Equities []float32 `json:"equities"` // Cubeless, then owned, centred and opponent-owned cube when stored
}

// VerifyResponse is the result of a database scan.
type VerifyResponse struct {
	Type string `json:"type"`
	bearoff.VerifyReport
}

// InfoResponse describes the loaded databases.
type InfoResponse struct {
	Databases []bearoff.Info `json:"databases"`
	Cache     *CacheStats    `json:"cache,omitempty"`
}

// CacheStats reports evaluation cache usage.
type CacheStats struct {
	Size    int     `json:"size"`
	Lookups uint64  `json:"lookups"`
	Hits    uint64  `json:"hits"`
	HitRate float64 `json:"hit_rate"`
}

// ErrorResponse is returned when an error occurs.
type ErrorResponse struct {
	Error string `json:"error"`          // Error message
	Code  string `json:"code,omitempty"` // Error code
}

// HealthResponse is the response for health check.
type HealthResponse struct {
	Status  string     `json:"status"`         // "ok"
	Version string     `json:"version"`        // Server version
	Ready   bool       `json:"ready"`          // Whether a database is loaded
	Pool    *PoolStats `json:"pool,omitempty"` // Worker pool statistics
}

// ============================================================================
// Helper Functions
// ============================================================================

// EvalToResponse converts an engine Evaluation to an API response.
func EvalToResponse(board engine.Board, eval *engine.Evaluation) *EvaluateResponse {
	return &EvaluateResponse{
		Position: positionid.PositionID(board),
		Equity:   eval.Equity,
		Win:      eval.WinProb * 100,
		WinG:     eval.WinG * 100,
		WinBG:    eval.WinBG * 100,
		LoseG:    eval.LoseG * 100,
		LoseBG:   eval.LoseBG * 100,
		Source:   string(eval.Source),
	}
}

// DistributionToResponse converts a one-sided distribution to an API response.
func DistributionToResponse(d *engine.SideDistribution) *DistributionResponse {
	isZero := func(v float32) bool { return v == 0 }
	resp := &DistributionResponse{
		ID:           d.ID,
		Prob:         lo.DropRightWhile(d.Prob[:], isZero),
		Gammon:       lo.DropRightWhile(d.Gammon[:], isZero),
		MeanRolls:    d.AverageRolls[0],
		StdDevRolls:  d.AverageRolls[1],
		MeanGammon:   d.AverageRolls[2],
		StdDevGammon: d.AverageRolls[3],
	}
	return resp
}

// CubefulToResponse converts two-sided equities to an API response.
func CubefulToResponse(id int, ev bearoff.EquityVector) *CubefulResponse {
	return &CubefulResponse{ID: id, Cubeless: ev[0], Equities: ev}
}

var databaseTypes = []bearoff.Type{bearoff.TypeOneSided, bearoff.TypeTwoSided, bearoff.TypeHypergammon}

// parseType maps a database type name to its Type.
func parseType(s string) (bearoff.Type, error) {
	t, ok := lo.Find(databaseTypes, func(t bearoff.Type) bool { return t.String() == s })
	if !ok {
		return bearoff.TypeInvalid, fmt.Errorf("unknown database type %q", s)
	}
	return t, nil
}
