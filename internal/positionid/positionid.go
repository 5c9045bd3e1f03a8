// Package positionid holds the board representation shared by the bearoff
// engine and its callers, and the gnubg position ID text encoding used to
// pass boards in and out of the CLI and the query service.
//
// A position ID is the 80-bit gnubg key (for each side, each point: one set
// bit per chequer followed by a clear bit) written as 14 characters of
// unpadded standard base64.
package positionid

import (
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	// PositionIDLength is the length of a position ID string
	PositionIDLength = 14
	// BarPoint is the board slot holding chequers on the bar
	BarPoint = 24
	// MaxChequers is the number of chequers each side starts with
	MaxChequers = 15

	keyBytes = 10
)

// Board is a backgammon position: [side][point], point 24 is the bar.
// Side 1 is the player on roll, side 0 the opponent; each side counts
// points from its own home board.
type Board [2][25]uint8

// ErrInvalidPositionID is returned when a position ID is invalid
var ErrInvalidPositionID = errors.New("invalid position ID")

var encoding = base64.RawStdEncoding

// Key is the packed 80-bit form of a board.
type Key [keyBytes]byte

// MakeKey packs board. The board must pass CheckPosition.
func MakeKey(board Board) Key {
	var key Key
	bit := 0
	for side := 0; side < 2; side++ {
		for point := 0; point < 25; point++ {
			for n := 0; n < int(board[side][point]); n++ {
				key[bit/8] |= 1 << (bit % 8)
				bit++
			}
			bit++
		}
	}
	return key
}

func boardFromKey(key Key) (Board, error) {
	var board Board
	side, point := 0, 0
	for bit := 0; bit < keyBytes*8; bit++ {
		if key[bit/8]&(1<<(bit%8)) == 0 {
			point++
			if point == 25 {
				side++
				point = 0
			}
			continue
		}
		if side >= 2 {
			return board, ErrInvalidPositionID
		}
		board[side][point]++
	}
	return board, nil
}

// PositionID generates a base64 position ID string from a board
func PositionID(board Board) string {
	key := MakeKey(board)
	return encoding.EncodeToString(key[:])
}

// BoardFromPositionID decodes a base64 position ID string to a board.
// Anything after the 14th character (for example a ":matchID" suffix) is ignored.
func BoardFromPositionID(posID string) (Board, error) {
	if len(posID) < PositionIDLength {
		return Board{}, ErrInvalidPositionID
	}
	raw, err := encoding.DecodeString(posID[:PositionIDLength])
	if err != nil || len(raw) != keyBytes {
		return Board{}, fmt.Errorf("%w: %q", ErrInvalidPositionID, posID)
	}

	var key Key
	copy(key[:], raw)
	board, err := boardFromKey(key)
	if err != nil {
		return board, err
	}
	if !CheckPosition(board) {
		return board, fmt.Errorf("%w: illegal position %q", ErrInvalidPositionID, posID)
	}
	return board, nil
}

// CheckPosition validates that a board position is legal
func CheckPosition(board Board) bool {
	if board.Chequers(0) > MaxChequers || board.Chequers(1) > MaxChequers {
		return false
	}

	// Both players on the same point
	for i := 0; i < 24; i++ {
		if board[0][i] > 0 && board[1][23-i] > 0 {
			return false
		}
	}

	// Both players on the bar against closed boards
	for i := 0; i < 6; i++ {
		if board[0][i] < 2 || board[1][i] < 2 {
			return true
		}
	}
	return board[0][BarPoint] == 0 || board[1][BarPoint] == 0
}

// Chequers returns the number of chequers side still has on the board (bar included).
func (b Board) Chequers(side int) int {
	n := 0
	for _, c := range b[side] {
		n += int(c)
	}
	return n
}

// BackChequer returns the index of side's rearmost occupied point, or -1
// when side has borne off every chequer.
func (b Board) BackChequer(side int) int {
	for i := BarPoint; i >= 0; i-- {
		if b[side][i] > 0 {
			return i
		}
	}
	return -1
}

// SwapSides swaps the two sides of the board
func SwapSides(board Board) Board {
	return Board{board[1], board[0]}
}
