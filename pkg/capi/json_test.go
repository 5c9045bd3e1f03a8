package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgbearoff/bearoff/internal/bearoff"
	"github.com/bgbearoff/bearoff/internal/positionid"
	"github.com/bgbearoff/bearoff/pkg/api"
	"github.com/bgbearoff/bearoff/pkg/engine"
)

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.NewEngine(context.Background(), engine.EngineOptions{
		Heuristic: &bearoff.GenerateOptions{Points: 6, Chequers: 3},
	})
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestEvaluateJSON(t *testing.T) {
	eng := testEngine(t)
	pid := positionid.PositionID(engine.MakeBoard([]uint8{0, 0, 0, 0, 0, 3}, []uint8{1, 1}))

	out, err := evaluateJSON(eng, pid+":cIkqAAAAAAAA")
	require.NoError(t, err)
	var resp api.EvaluateResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, pid, resp.Position)
	assert.InDelta(t, 100*1820.0/65535, resp.Win, 1e-3)
	assert.Equal(t, string(engine.SourceOneSided), resp.Source)

	out, err = evaluateJSON(eng, "not a position")
	assert.True(t, errors.Is(err, positionid.ErrInvalidPositionID))
	var errResp api.ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(out), &errResp))
	assert.NotEmpty(t, errResp.Error)
}

func TestDistributionAndCubefulJSON(t *testing.T) {
	eng := testEngine(t)
	pid := positionid.PositionID(engine.MakeBoard([]uint8{0, 0, 0, 0, 0, 3}, []uint8{1, 1}))

	out, err := distributionJSON(eng, pid, 0)
	require.NoError(t, err)
	var d api.DistributionResponse
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	require.Len(t, d.Prob, 2)
	assert.InDelta(t, 1, d.Prob[1], 1e-4)

	_, err = cubefulJSON(eng, pid)
	assert.True(t, errors.Is(err, engine.ErrNoDatabase))
}

func TestNotInitialized(t *testing.T) {
	for name, fn := range map[string]func() (string, error){
		"info":         func() (string, error) { return infoJSON(nil) },
		"evaluate":     func() (string, error) { return evaluateJSON(nil, "") },
		"distribution": func() (string, error) { return distributionJSON(nil, "", 1) },
		"cubeful":      func() (string, error) { return cubefulJSON(nil, "") },
	} {
		out, err := fn()
		assert.ErrorIs(t, err, errNotInitialized, name)
		assert.JSONEq(t, `{"error":"engine not initialized"}`, out, name)
	}

	out, err := infoJSON(testEngine(t))
	require.NoError(t, err)
	var info api.InfoResponse
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Len(t, info.Databases, 1)
}
