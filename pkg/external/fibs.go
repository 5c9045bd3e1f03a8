package external

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bgbearoff/bearoff/internal/positionid"
	"github.com/bgbearoff/bearoff/pkg/engine"
)

// FIBSBoard represents a parsed FIBS board string.
// See: http://www.fibs.com/fibs_interface.html#board_state
type FIBSBoard struct {
	Player1      string  // Your name
	Player2      string  // Opponent's name
	MatchLength  int     // Match length (0 = unlimited)
	Score1       int     // Your score
	Score2       int     // Opponent's score
	Board        [26]int // Chequers per position, signed by colour; 0 and 25 are the bars
	Turn         int     // Colour on turn (0 = game over)
	Dice         [2]int  // Your dice (0,0 if not rolled)
	OppDice      [2]int  // Opponent's dice
	Cube         int     // Cube value
	CanDouble    bool    // Can you double?
	OppCanDouble bool    // Can opponent double?
	Doubled      bool    // Has opponent doubled?
	Color        int     // Your color (1 or -1)
	Direction    int     // Your direction (1 or -1)
}

// ParseFIBSBoard parses a FIBS board string.
// Format: board:player1:player2:matchlen:score1:score2:board[26]:turn:dice[4]:cube:...
func ParseFIBSBoard(s string) (*FIBSBoard, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "board:")

	parts := strings.Split(s, ":")
	if len(parts) < 32 {
		return nil, fmt.Errorf("invalid FIBS board: expected at least 32 fields, got %d", len(parts))
	}

	fb := &FIBSBoard{Player1: parts[0], Player2: parts[1]}

	type field struct {
		dst   *int
		index int
	}
	fields := []field{
		{&fb.MatchLength, 2},
		{&fb.Score1, 3},
		{&fb.Score2, 4},
		{&fb.Turn, 31},
	}
	for i := range fb.Board {
		fields = append(fields, field{&fb.Board[i], 5 + i})
	}
	for i, dst := range []*int{&fb.Dice[0], &fb.Dice[1], &fb.OppDice[0], &fb.OppDice[1], &fb.Cube} {
		if 32+i < len(parts) {
			fields = append(fields, field{dst, 32 + i})
		}
	}
	if len(parts) > 41 {
		fields = append(fields, field{&fb.Color, 40}, field{&fb.Direction, 41})
	}

	for _, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(parts[f.index]))
		if err != nil {
			return nil, fmt.Errorf("invalid FIBS board: field %d: %w", f.index, err)
		}
		*f.dst = v
	}

	if len(parts) > 37 {
		fb.CanDouble = parts[37] == "1"
	}
	if len(parts) > 38 {
		fb.OppCanDouble = parts[38] == "1"
	}
	if len(parts) > 39 {
		fb.Doubled = parts[39] == "1"
	}

	return fb, nil
}

func (fb *FIBSBoard) color() int {
	if fb.Color < 0 {
		return -1
	}
	return 1
}

// ToBoard converts a FIBS board to an engine board with the side on turn in
// row 1. Your chequers carry the sign of your colour; points are numbered
// from each side's own home board.
func (fb *FIBSBoard) ToBoard() (engine.Board, error) {
	var mine, theirs [25]uint8
	color := fb.color()

	// with direction -1 you move from 24 towards 0 and enter from 25
	myPoint := func(i int) int { return i }
	if fb.Direction > 0 {
		myPoint = func(i int) int { return 25 - i }
	}

	for i, n := range fb.Board {
		if n == 0 {
			continue
		}
		count := n * color
		if count > 0 {
			p := myPoint(i)
			if p == 0 {
				return engine.Board{}, fmt.Errorf("%w: chequers on your bar field %d", positionid.ErrInvalidPositionID, i)
			}
			mine[p-1] += uint8(count)
		} else {
			p := 25 - myPoint(i)
			if p == 0 {
				return engine.Board{}, fmt.Errorf("%w: opponent chequers on bar field %d", positionid.ErrInvalidPositionID, i)
			}
			theirs[p-1] += uint8(-count)
		}
	}

	var board engine.Board
	if fb.Turn == 0 || fb.Turn == color {
		board[1], board[0] = mine, theirs
	} else {
		board[1], board[0] = theirs, mine
	}
	if !positionid.CheckPosition(board) {
		return board, fmt.Errorf("%w: illegal FIBS board", positionid.ErrInvalidPositionID)
	}
	return board, nil
}
