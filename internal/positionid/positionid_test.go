package positionid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Standard starting position, each side from its own perspective:
// 2 on the 24-point, 5 on the 13-point, 3 on the 8-point, 5 on the 6-point.
func startingBoard() Board {
	var board Board
	for side := 0; side < 2; side++ {
		board[side][5] = 5
		board[side][7] = 3
		board[side][12] = 5
		board[side][23] = 2
	}
	return board
}

// Known position ID for starting position from gnubg
const startingPositionID = "4HPwATDgc/ABMA"

func TestPositionIDStartingPosition(t *testing.T) {
	assert.Equal(t, startingPositionID, PositionID(startingBoard()))
}

func TestBoardFromPositionID(t *testing.T) {
	board, err := BoardFromPositionID(startingPositionID)
	require.NoError(t, err)
	assert.Equal(t, startingBoard(), board)

	// gnubg "position:match" strings carry the match ID after a colon
	board, err = BoardFromPositionID(startingPositionID + ":cIkqAAAAAAAA")
	require.NoError(t, err)
	assert.Equal(t, startingBoard(), board)
}

func TestPositionIDRoundTrip(t *testing.T) {
	boards := []Board{
		startingBoard(),
		{{3, 3, 3, 3, 2, 1}, {0, 2, 2, 2, 2, 2, 5}},
		{{1}, {0, 0, 0, 0, 0, 1}},
	}
	for _, board := range boards {
		got, err := BoardFromPositionID(PositionID(board))
		require.NoError(t, err)
		assert.Equal(t, board, got)
	}
}

func TestBoardFromPositionIDErrors(t *testing.T) {
	for _, id := range []string{"", "4HPw", "4HPwATDgc/AB!A"} {
		_, err := BoardFromPositionID(id)
		assert.True(t, errors.Is(err, ErrInvalidPositionID), "id %q", id)
	}
}

func TestCheckPosition(t *testing.T) {
	assert.True(t, CheckPosition(startingBoard()))

	var invalid Board
	for i := 0; i < 25; i++ {
		invalid[0][i] = 1
	}
	assert.False(t, CheckPosition(invalid), "more than 15 chequers")

	var overlap Board
	overlap[0][5] = 2
	overlap[1][18] = 2
	assert.False(t, CheckPosition(overlap), "both sides on one point")
}

func TestBoardHelpers(t *testing.T) {
	board := startingBoard()
	assert.Equal(t, 15, board.Chequers(0))
	assert.Equal(t, 23, board.BackChequer(1))

	var empty Board
	empty[0][2] = 1
	assert.Equal(t, -1, empty.BackChequer(1))
	assert.Equal(t, 2, empty.BackChequer(0))

	swapped := SwapSides(empty)
	assert.Equal(t, uint8(1), swapped[1][2])
}
