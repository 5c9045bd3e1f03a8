package bearoff

import (
	"github.com/bgbearoff/bearoff/internal/positionid"
)

// Output indices, in gnubg order.
const (
	OutputWin = iota
	OutputWinGammon
	OutputWinBackgammon
	OutputLoseGammon
	OutputLoseBackgammon

	NumOutputs
)

// Output holds the probabilities of the side on roll winning, winning a
// gammon or backgammon, and losing a gammon or backgammon.
type Output [NumOutputs]float32

// Equity returns the cubeless money equity for the side on roll.
func (o Output) Equity() float32 {
	return 2*o[OutputWin] - 1 +
		o[OutputWinGammon] - o[OutputLoseGammon] +
		o[OutputWinBackgammon] - o[OutputLoseBackgammon]
}

// IsBearoff reports whether board can be looked up in db. Side 1 is on roll.
// Finished games are never bear-off positions, and neither are contact
// positions outside hypergammon tables.
func (db *Database) IsBearoff(board positionid.Board) bool {
	back := board.BackChequer(1)
	oppBack := board.BackChequer(0)
	if back < 0 || oppBack < 0 {
		return false
	}
	if back+oppBack > 22 && db.header.Type != TypeHypergammon {
		return false
	}

	p, c := db.header.Points, db.header.Chequers
	return board.Chequers(1) <= c && board.Chequers(0) <= c &&
		back < p && oppBack < p
}

// Evaluate returns the outputs of board for the side on roll (side 1).
func (db *Database) Evaluate(board positionid.Board) (Output, error) {
	if db.closed.Load() {
		return Output{}, ErrClosed
	}
	if !db.IsBearoff(board) {
		return Output{}, ErrNotBearoff
	}
	return db.reader.eval(db, board)
}

// Index returns the record id of board in a two-sided or hypergammon
// table, us*NumPositions() + them with side 1 on roll, in native numbering.
func (db *Database) Index(board positionid.Board) (int, error) {
	if db.header.Type == TypeOneSided {
		return 0, &UnsupportedError{Op: "joint index", Type: db.header.Type}
	}
	if !db.IsBearoff(board) {
		return 0, ErrNotBearoff
	}
	return db.jointIndex(board), nil
}

// SideIndex returns the one-sided id of side's chequers.
func (db *Database) SideIndex(board positionid.Board, side int) (int, error) {
	if db.header.Type != TypeOneSided {
		return 0, &UnsupportedError{Op: "side index", Type: db.header.Type}
	}
	if board.Chequers(side) > db.header.Chequers || board.BackChequer(side) >= db.header.Points {
		return 0, ErrNotBearoff
	}
	return PositionBearoff(board[side][:], db.header.Points, db.header.Chequers), nil
}

func (db *Database) jointIndex(board positionid.Board) int {
	p, c := db.header.Points, db.header.Chequers
	us := PositionBearoff(board[1][:], p, c)
	them := PositionBearoff(board[0][:], p, c)
	return us*db.positions + them
}

func evalTwoSided(db *Database, board positionid.Board) (Output, error) {
	ev, err := db.twoSided(db.jointIndex(board))
	if err != nil {
		return Output{}, err
	}
	v := ev[0]
	if db.header.Kind == KindThirdParty {
		v = min(max(v, -1), 1)
	}
	var out Output
	out[OutputWin] = v/2 + 0.5
	return out, nil
}

func evalHypergammon(db *Database, board positionid.Board) (Output, error) {
	out, _, err := db.Hypergammon(db.jointIndex(board))
	return out, err
}

// evalOneSided combines the histograms of both sides. The side on roll wins
// when it needs no more rolls than its opponent. Gammons are only counted
// while a side still has all its chequers on the board and the table
// stores gammon-save distributions.
func evalOneSided(db *Database, board positionid.Board) (Output, error) {
	p, c := db.header.Points, db.header.Chequers

	var d [2]Distribution
	for side := 0; side < 2; side++ {
		r, err := db.oneSided("evaluate", PositionBearoff(board[side][:], p, c))
		if err != nil {
			return Output{}, err
		}
		d[side] = r.distribution()
	}

	var out Output
	out[OutputWin] = convolve(d[1].Prob, d[0].Prob, 0)

	if db.header.Gammon &&
		(board.Chequers(0) == positionid.MaxChequers || board.Chequers(1) == positionid.MaxChequers) {
		// on roll is off in i rolls before the opponent saves the gammon
		out[OutputWinGammon] = convolve(d[1].Prob, d[0].Gammon, 0)
		// opponent is off in i rolls and we have not borne off by roll i+1
		out[OutputLoseGammon] = convolve(d[0].Prob, d[1].Gammon, 1)
	}
	return out, nil
}

// convolve returns sum over i, j >= i+lag of a[i]*b[j].
func convolve(a, b Histogram, lag int) float32 {
	var tail [Buckets + 1]float32
	for j := Buckets - 1; j >= 0; j-- {
		tail[j] = tail[j+1] + b[j]
	}
	var r float32
	for i := 0; i < Buckets; i++ {
		if k := i + lag; k < Buckets {
			r += a[i] * tail[k]
		}
	}
	return r
}
