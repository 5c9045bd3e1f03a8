package main

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/bgbearoff/bearoff/internal/positionid"
	"github.com/bgbearoff/bearoff/pkg/api"
	"github.com/bgbearoff/bearoff/pkg/engine"
)

const version = "0.1.0"

var errNotInitialized = errors.New("engine not initialized")

// errorJSON is returned to C alongside a non-zero status.
func errorJSON(err error) string {
	b, _ := json.Marshal(api.ErrorResponse{Error: err.Error()})
	return string(b)
}

func marshal(v any, err error) (string, error) {
	if err != nil {
		return errorJSON(err), err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return errorJSON(err), err
	}
	return string(b), nil
}

// parsePosition decodes a gnubg position ID; a trailing ":matchID" is ignored.
func parsePosition(pid string) (engine.Board, error) {
	if idx := strings.Index(pid, ":"); idx >= 0 {
		pid = pid[:idx]
	}
	return positionid.BoardFromPositionID(pid)
}

func infoJSON(eng *engine.Engine) (string, error) {
	if eng == nil {
		return marshal(nil, errNotInitialized)
	}
	return marshal(api.InfoResponse{Databases: eng.Info()}, nil)
}

func evaluateJSON(eng *engine.Engine, pid string) (string, error) {
	if eng == nil {
		return marshal(nil, errNotInitialized)
	}
	board, err := parsePosition(pid)
	if err != nil {
		return marshal(nil, err)
	}
	eval, err := eng.Evaluate(board)
	if err != nil {
		return marshal(nil, err)
	}
	return marshal(api.EvalToResponse(board, eval), nil)
}

func distributionJSON(eng *engine.Engine, pid string, side int) (string, error) {
	if eng == nil {
		return marshal(nil, errNotInitialized)
	}
	board, err := parsePosition(pid)
	if err != nil {
		return marshal(nil, err)
	}
	d, err := eng.Distribution(board, side)
	if err != nil {
		return marshal(nil, err)
	}
	return marshal(api.DistributionToResponse(d), nil)
}

func cubefulJSON(eng *engine.Engine, pid string) (string, error) {
	if eng == nil {
		return marshal(nil, errNotInitialized)
	}
	board, err := parsePosition(pid)
	if err != nil {
		return marshal(nil, err)
	}
	id, ev, err := eng.Cubeful(board)
	if err != nil {
		return marshal(nil, err)
	}
	return marshal(api.CubefulToResponse(id, ev), nil)
}
