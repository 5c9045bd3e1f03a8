package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"lukechampine.com/frand"

	"github.com/bgbearoff/bearoff/internal/bearoff"
)

func writeTable(t *testing.T, name string, h bearoff.Header, records func(buf []byte) []byte) string {
	t.Helper()
	buf, err := h.Bytes()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, records(buf), 0o644))
	return path
}

// writeTwoSided writes a cubeful two-sided table whose every record holds values.
func writeTwoSided(t *testing.T, points, chequers int, values [4]uint16) string {
	h := bearoff.Header{Kind: bearoff.KindNative, Type: bearoff.TypeTwoSided, Points: points, Chequers: chequers, Cubeful: true}
	n := bearoff.NumPositions(points, chequers)
	return writeTable(t, "ts.bd", h, func(buf []byte) []byte {
		for i := 0; i < n*n; i++ {
			for _, v := range values {
				buf = binary.LittleEndian.AppendUint16(buf, v)
			}
		}
		return buf
	})
}

// writeHypergammon writes a 1-chequer hypergammon table with a constant win rate.
func writeHypergammon(t *testing.T, win uint32) string {
	h := bearoff.Header{Kind: bearoff.KindNative, Type: bearoff.TypeHypergammon, Points: 25, Chequers: 1}
	n := bearoff.NumPositions(25, 1)
	return writeTable(t, "hyper.bd", h, func(buf []byte) []byte {
		for i := 0; i < n*n; i++ {
			rec := make([]byte, 28)
			rec[0], rec[1], rec[2] = byte(win), byte(win>>8), byte(win>>16)
			buf = append(buf, rec...)
		}
		return buf
	})
}

func heuristicEngine(t *testing.T, opts EngineOptions) *Engine {
	t.Helper()
	opts.Heuristic = &bearoff.GenerateOptions{Points: 6, Chequers: 3}
	e, err := NewEngine(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestNewEngineEmpty(t *testing.T) {
	e, err := NewEngine(context.Background(), EngineOptions{CacheSize: -1})
	require.NoError(t, err)
	assert.Empty(t, e.Databases())
	assert.Nil(t, e.Cache())

	_, err = e.Evaluate(MakeBoard([]uint8{1}, []uint8{1}))
	assert.True(t, errors.Is(err, bearoff.ErrNotBearoff))
	_, err = e.DistributionByID(0)
	assert.True(t, errors.Is(err, ErrNoDatabase))
	_, _, err = e.Cubeful(MakeBoard([]uint8{1}, []uint8{1}))
	assert.True(t, errors.Is(err, ErrNoDatabase))
}

func TestNewEngineLoadErrors(t *testing.T) {
	_, err := NewEngine(context.Background(), EngineOptions{OneSidedFile: filepath.Join(t.TempDir(), "missing.bd")})
	var ioe *bearoff.IOError
	assert.True(t, errors.As(err, &ioe), "got %v", err)

	ts := writeTwoSided(t, 2, 2, [4]uint16{})
	_, err = NewEngine(context.Background(), EngineOptions{OneSidedFile: ts})
	var fe *bearoff.FormatError
	assert.True(t, errors.As(err, &fe), "two-sided file as one-sided: %v", err)
}

func TestEvaluateHeuristic(t *testing.T) {
	e := heuristicEngine(t, EngineOptions{})
	require.Len(t, e.Databases(), 1)
	assert.True(t, e.Database(bearoff.TypeOneSided).Heuristic())

	// three on the 6-point against a side that is off next roll: only 6-6 wins
	board := MakeBoard([]uint8{0, 0, 0, 0, 0, 3}, []uint8{1, 1})
	ev, err := e.Evaluate(board)
	require.NoError(t, err)
	assert.Equal(t, SourceOneSided, ev.Source)
	assert.InDelta(t, 1820.0/65535, ev.WinProb, 1e-6)
	assert.InDelta(t, 2*ev.WinProb-1, ev.Equity, 1e-6)

	again, err := e.Evaluate(board)
	require.NoError(t, err)
	assert.Equal(t, ev, again)

	lookups, hits, adds := e.Cache().Stats()
	assert.Equal(t, uint64(2), lookups)
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), adds)
	assert.InDelta(t, 50, e.Cache().HitRate(), 1e-9)
}

func TestEvaluatePrefersPreciseTables(t *testing.T) {
	e := heuristicEngine(t, EngineOptions{
		TwoSidedFile:    writeTwoSided(t, 2, 2, [4]uint16{49151, 1, 2, 3}),
		HypergammonFile: writeHypergammon(t, 16777215/4),
	})
	require.Len(t, e.Databases(), 3)

	tests := []struct {
		name   string
		board  Board
		source Source
		win    float64
	}{
		{"hypergammon", MakeBoard([]uint8{1}, []uint8{0, 1}), SourceHypergammon, 0.25},
		{"two-sided", MakeBoard([]uint8{0, 1}, []uint8{2}), SourceTwoSided, 0.75},
		{"one-sided", MakeBoard([]uint8{0, 0, 0, 0, 0, 3}, []uint8{1, 1}), SourceOneSided, 1820.0 / 65535},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := e.Evaluate(tt.board)
			require.NoError(t, err)
			assert.Equal(t, tt.source, ev.Source)
			assert.InDelta(t, tt.win, ev.WinProb, 1e-4)
		})
	}
}

func TestEvaluateGameOver(t *testing.T) {
	e := heuristicEngine(t, EngineOptions{CacheSize: -1})

	tests := []struct {
		name   string
		board  Board
		equity float64
	}{
		{"single win", MakeBoard(nil, []uint8{0, 0, 0, 0, 14}), 1},
		{"gammon win", MakeBoard(nil, []uint8{0, 0, 0, 0, 15}), 2},
		{"backgammon win", MakeBoard(nil, []uint8{0, 0, 0, 0, 14, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}), 3},
		{"single loss", MakeBoard([]uint8{1}, nil), -1},
		{"gammon loss", MakeBoard([]uint8{15}, nil), -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := e.Evaluate(tt.board)
			require.NoError(t, err)
			assert.Equal(t, SourceGameOver, ev.Source)
			assert.InDelta(t, tt.equity, ev.Equity, 1e-9)
		})
	}
}

func TestEvaluateRejects(t *testing.T) {
	e := heuristicEngine(t, EngineOptions{})

	_, err := e.Evaluate(MakeBoard([]uint8{16}, []uint8{1}))
	assert.True(t, errors.Is(err, ErrInvalidBoard))

	contact := MakeBoard(nil, []uint8{1})
	contact[1][20] = 1
	contact[0][10] = 1
	_, err = e.Evaluate(contact)
	assert.True(t, errors.Is(err, bearoff.ErrNotBearoff))
}

func TestDistribution(t *testing.T) {
	e := heuristicEngine(t, EngineOptions{})

	d, err := e.Distribution(MakeBoard([]uint8{0, 0, 0, 0, 0, 3}, []uint8{1, 1}), 1)
	require.NoError(t, err)
	assert.Equal(t, bearoff.PositionBearoff([]uint8{0, 0, 0, 0, 0, 3}, 6, 3), d.ID)
	assert.InDelta(t, 1820.0/65535, d.Prob[1], 1e-6)
	assert.InDelta(t, 1, d.Prob.Sum(), 1e-3)
	assert.Greater(t, d.AverageRolls[0], float32(1.5))
	assert.Less(t, d.AverageRolls[0], float32(4))

	d, err = e.Distribution(MakeBoard([]uint8{0, 0, 0, 0, 0, 3}, []uint8{1, 1}), 0)
	require.NoError(t, err)
	assert.InDelta(t, 1, d.Prob[1], 1e-6)

	_, err = e.Distribution(Board{}, 2)
	assert.Error(t, err)
	_, err = e.DistributionByID(1 << 20)
	assert.True(t, errors.Is(err, bearoff.ErrPositionRange))
}

func TestCubeful(t *testing.T) {
	e := heuristicEngine(t, EngineOptions{TwoSidedFile: writeTwoSided(t, 2, 2, [4]uint16{32767, 65535, 0, 49151})})

	id, ev, err := e.Cubeful(MakeBoard([]uint8{0, 1}, []uint8{2}))
	require.NoError(t, err)
	assert.Equal(t, 2*6+3, id)
	require.Len(t, ev, 4)
	assert.InDelta(t, 0, ev[0], 1e-4)
	assert.InDelta(t, 1, ev[1], 1e-4)
	assert.InDelta(t, -1, ev[2], 1e-4)
	assert.InDelta(t, 0.5, ev[3], 1e-4)

	_, _, err = e.Cubeful(MakeBoard([]uint8{0, 0, 1}, []uint8{1}))
	assert.True(t, errors.Is(err, bearoff.ErrNotBearoff))
}

func TestAttachReplaces(t *testing.T) {
	e := heuristicEngine(t, EngineOptions{})
	old := e.Database(bearoff.TypeOneSided)

	board := MakeBoard([]uint8{0, 0, 0, 0, 0, 3}, []uint8{1, 1})
	_, err := e.Evaluate(board)
	require.NoError(t, err)

	db, err := bearoff.Generate(context.Background(), bearoff.GenerateOptions{Points: 6, Chequers: 4})
	require.NoError(t, err)
	require.NoError(t, e.Attach(db))
	assert.Same(t, db, e.Database(bearoff.TypeOneSided))

	_, err = old.Distribution(0)
	assert.True(t, errors.Is(err, bearoff.ErrClosed), "replaced database is closed")

	_, hits, _ := e.Cache().Stats()
	assert.Zero(t, hits, "cache flushed")
	_, err = e.Evaluate(board)
	require.NoError(t, err)

	require.NoError(t, e.Close())
	_, err = db.Distribution(0)
	assert.True(t, errors.Is(err, bearoff.ErrClosed))
}

func TestEvaluateConcurrent(t *testing.T) {
	plain := heuristicEngine(t, EngineOptions{CacheSize: -1})
	cached := heuristicEngine(t, EngineOptions{CacheSize: 64})

	n := bearoff.NumPositions(6, 3)
	boards := make([]Board, 200)
	want := make([]*Evaluation, len(boards))
	for i := range boards {
		us := bearoff.PositionFromBearoff(1+frand.Intn(n-1), 6, 3)
		them := bearoff.PositionFromBearoff(1+frand.Intn(n-1), 6, 3)
		boards[i] = MakeBoard(us[:6], them[:6])

		var err error
		want[i], err = plain.Evaluate(boards[i])
		require.NoError(t, err)
	}

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := range boards {
				got, err := cached.Evaluate(boards[i])
				if err != nil {
					return err
				}
				if *got != *want[i] {
					return fmt.Errorf("board %d: got %+v, want %+v", i, *got, *want[i])
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	_, hits, _ := cached.Cache().Stats()
	assert.NotZero(t, hits)
}

func TestEngineInfo(t *testing.T) {
	e := heuristicEngine(t, EngineOptions{TwoSidedFile: writeTwoSided(t, 2, 2, [4]uint16{})})
	info := e.Info()
	require.Len(t, info, 2)
	assert.Equal(t, "two-sided", info[0].Type)
	assert.Equal(t, "one-sided", info[1].Type)
	assert.Equal(t, "heuristic", info[1].Generator)
}
