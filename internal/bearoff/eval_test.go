package bearoff

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/frand"

	"github.com/bgbearoff/bearoff/internal/positionid"
)

func boardOf(us, them []uint8) positionid.Board {
	var b positionid.Board
	copy(b[1][:], us)
	copy(b[0][:], them)
	return b
}

// split returns a histogram with its mass divided between buckets 2 and 3.
func split() [32]uint16 {
	var h [32]uint16
	h[2], h[3] = 32768, 32767
	return h
}

func gammonTable(t *testing.T) *Database {
	t.Helper()
	// 1 point, 15 chequers: the id is the number of chequers left
	data := denseOneSided(t, 1, 15, true, func(id int) (prob, gprob [32]uint16) {
		switch id {
		case 0:
			return impulse(0), impulse(0)
		case 15:
			return split(), impulse(3)
		default:
			return split(), impulse(0)
		}
	})
	return openFixture(t, writeFixture(t, "gammon.bd", data), AccessInMemory)
}

func TestEvaluateOneSidedGammons(t *testing.T) {
	db := gammonTable(t)
	a, b := float32(32768.0/65535), float32(32767.0/65535)

	out, err := db.Evaluate(boardOf([]uint8{15}, []uint8{15}))
	require.NoError(t, err)
	assert.InDelta(t, a*(a+b)+b*b, out[OutputWin], 1e-6)
	// opponent saves the gammon on roll 3: we win a gammon finishing by roll 3
	assert.InDelta(t, a+b, out[OutputWinGammon], 1e-6)
	// we save the gammon on roll 3: opponent must finish by roll 2
	assert.InDelta(t, a, out[OutputLoseGammon], 1e-6)
	assert.Zero(t, out[OutputWinBackgammon])
	assert.Zero(t, out[OutputLoseBackgammon])

	out, err = db.Evaluate(boardOf([]uint8{15}, []uint8{14}))
	require.NoError(t, err)
	assert.Zero(t, out[OutputWinGammon], "opponent has already borne off")
	assert.InDelta(t, a, out[OutputLoseGammon], 1e-6)

	out, err = db.Evaluate(boardOf([]uint8{14}, []uint8{14}))
	require.NoError(t, err)
	assert.Zero(t, out[OutputWinGammon])
	assert.Zero(t, out[OutputLoseGammon])
	assert.InDelta(t, a*(a+b)+b*b, out[OutputWin], 1e-6)
}

func TestEvaluateHeuristicTable(t *testing.T) {
	db, err := Generate(context.Background(), GenerateOptions{Points: 6, Chequers: 3})
	require.NoError(t, err)

	// three on the 6-point against a side that is off next roll: only 6-6 wins
	out, err := db.Evaluate(boardOf([]uint8{0, 0, 0, 0, 0, 3}, []uint8{1, 1}))
	require.NoError(t, err)
	assert.InDelta(t, 1820.0/65535, out[OutputWin], 1e-6)
	assert.Zero(t, out[OutputWinGammon], "no gammon data")
	assert.InDelta(t, 2*out[OutputWin]-1, out.Equity(), 1e-6)

	out, err = db.Evaluate(boardOf([]uint8{1, 1}, []uint8{0, 0, 0, 0, 0, 3}))
	require.NoError(t, err)
	assert.InDelta(t, 65534.0/65535, out[OutputWin], 1e-6)
}

func TestEvaluateTwoSidedSymmetry(t *testing.T) {
	const p, c = 2, 2
	n := NumPositions(p, c)
	val := func(us, them int) uint16 { return uint16(1000 + us*100 + them*7) }
	data := twoSided(t, p, c, false, func(iPos, _ int) uint16 {
		us, them := iPos/n, iPos%n
		switch {
		case us < them:
			return val(us, them)
		case us > them:
			return 0xffff - val(them, us)
		default:
			return 32767
		}
	})
	db := openFixture(t, writeFixture(t, "ts.bd", data), AccessOnDisk)

	// native ids 2 and 3
	board := boardOf([]uint8{0, 1}, []uint8{2, 0})
	out, err := db.Evaluate(board)
	require.NoError(t, err)
	assert.InDelta(t, 1221.0/65535, out[OutputWin], 1e-6)
	assert.Zero(t, out[OutputWinGammon])

	for us := 1; us < n; us++ {
		for them := 1; them < n; them++ {
			a, b := PositionFromBearoff(us, p, c), PositionFromBearoff(them, p, c)
			board := boardOf(a[:p], b[:p])
			out, err := db.Evaluate(board)
			require.NoError(t, err)
			swapped, err := db.Evaluate(positionid.SwapSides(board))
			require.NoError(t, err)
			assert.InDelta(t, 1, out[OutputWin]+swapped[OutputWin], 1e-4, "us %d them %d", us, them)
		}
	}
}

func TestEvaluateExactBearoffClamps(t *testing.T) {
	const c = 1
	data := exactBearoff(c, func(us, them, slot int) uint32 {
		if slot != 0 {
			return 0
		}
		if us > them {
			return 4194000 * 3.5 // decodes to 1.5
		}
		return 4194000 * 2
	})
	db := openFixture(t, writeFixture(t, "exact.bd", data), AccessInMemory)

	out, err := db.Evaluate(boardOf([]uint8{0, 0, 1}, []uint8{1}))
	require.NoError(t, err)
	assert.Equal(t, float32(1), out[OutputWin])

	out, err = db.Evaluate(boardOf([]uint8{1}, []uint8{0, 0, 1}))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out[OutputWin], 1e-6)
}

func TestEvaluateHypergammon(t *testing.T) {
	data := hypergammon(t, 1, func(iPos int) (out [5]uint32, eq [4]uint32) {
		out[OutputWin] = uint32(iPos) * 1000
		return out, eq
	})
	db := openFixture(t, writeFixture(t, "hyper.bd", data), AccessOnDisk)

	var board positionid.Board
	board[1][20] = 1
	board[0][positionid.BarPoint] = 1
	require.True(t, db.IsBearoff(board), "hypergammon covers contact positions")

	out, err := db.Evaluate(board)
	require.NoError(t, err)
	iPos := 21*26 + 25
	assert.InDelta(t, float64(iPos*1000)/16777215, out[OutputWin], 1e-7)
}

func TestIsBearoff(t *testing.T) {
	data := denseOneSided(t, 23, 1, false, func(id int) (prob, gprob [32]uint16) { return impulse(id % 32), gprob })
	db := openFixture(t, writeFixture(t, "wide.bd", data), AccessHeap)

	var finished positionid.Board
	finished[0][3] = 1
	assert.False(t, db.IsBearoff(finished), "game over")

	var contact positionid.Board
	contact[1][20] = 1
	contact[0][5] = 1
	assert.False(t, db.IsBearoff(contact), "contact")

	var race positionid.Board
	race[1][20] = 1
	race[0][2] = 1
	assert.True(t, db.IsBearoff(race))

	tooMany := race
	tooMany[1][0] = 1
	assert.False(t, db.IsBearoff(tooMany), "more chequers than the table covers")

	var bar positionid.Board
	bar[1][positionid.BarPoint] = 1
	bar[0][0] = 1
	assert.False(t, db.IsBearoff(bar), "chequer on the bar")

	_, err := db.Evaluate(contact)
	assert.True(t, errors.Is(err, ErrNotBearoff))
}

func TestEvaluateAfterClose(t *testing.T) {
	data := denseOneSided(t, 1, 1, false, func(id int) (prob, gprob [32]uint16) { return impulse(id), gprob })
	db, err := Open(writeFixture(t, "c.bd", data), Options{Access: AccessInMemory})
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err = db.Evaluate(boardOf([]uint8{1}, []uint8{1}))
	assert.True(t, errors.Is(err, ErrClosed))
	_, err = db.Distribution(0)
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestEvaluateConcurrent(t *testing.T) {
	gen, err := Generate(context.Background(), GenerateOptions{Points: 6, Chequers: 6})
	require.NoError(t, err)
	path := writeGenerated(t, gen, WriteOptions{Compressed: true})
	db := openFixture(t, path, AccessInMemory)
	require.Equal(t, StorageMapped, db.Storage())

	const workers, perWorker = 100, 50
	n := db.NumPositions()
	boards := make([]positionid.Board, workers*perWorker)
	want := make([]Output, len(boards))
	for i := range boards {
		us := PositionFromBearoff(1+frand.Intn(n-1), 6, 6)
		them := PositionFromBearoff(1+frand.Intn(n-1), 6, 6)
		boards[i] = boardOf(us[:6], them[:6])
		want[i], err = db.Evaluate(boards[i])
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				got, err := db.Evaluate(boards[i])
				if assert.NoError(t, err) {
					assert.Equal(t, want[i], got)
				}
			}
		}(w*perWorker, (w+1)*perWorker)
	}
	wg.Wait()

	assert.Equal(t, uint64(4*len(boards)), db.Reads())
}

func TestIndex(t *testing.T) {
	const p, c = 2, 2
	ts := openFixture(t, writeFixture(t, "ts.bd", twoSided(t, p, c, true, func(iPos, slot int) uint16 { return uint16(iPos) })), AccessHeap)
	board := boardOf([]uint8{0, 1}, []uint8{2, 0})

	id, err := ts.Index(board)
	require.NoError(t, err)
	assert.Equal(t, 2*NumPositions(p, c)+3, id)

	ev, err := ts.Cubeful(id)
	require.NoError(t, err)
	assert.InDelta(t, float32(id)/32767.5-1, ev[0], 1e-6)

	_, err = ts.Index(boardOf([]uint8{0, 0, 1}, []uint8{1}))
	assert.True(t, errors.Is(err, ErrNotBearoff))
	_, err = ts.SideIndex(board, 1)
	var ue *UnsupportedError
	assert.True(t, errors.As(err, &ue))

	one := openFixture(t, writeFixture(t, "os.bd", denseOneSided(t, p, c, false, func(id int) (prob, gprob [32]uint16) { return impulse(id), gprob })), AccessHeap)
	id, err = one.SideIndex(board, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, id)
	_, err = one.Index(board)
	assert.True(t, errors.As(err, &ue))
	_, err = one.SideIndex(boardOf([]uint8{0, 0, 1}, nil), 1)
	assert.True(t, errors.Is(err, ErrNotBearoff))
}
