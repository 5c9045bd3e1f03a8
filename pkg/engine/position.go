// Package engine evaluates bear-off positions against whichever bearoff
// databases are loaded, answering from the most precise one that covers
// the board.
package engine

import (
	"github.com/bgbearoff/bearoff/internal/bearoff"
	"github.com/bgbearoff/bearoff/internal/positionid"
)

// Board is [side][point] with point 24 the bar; side 1 is on roll.
type Board = positionid.Board

// Source names what produced an evaluation.
type Source string

const (
	SourceGameOver    Source = "game-over"
	SourceHypergammon Source = "hypergammon"
	SourceTwoSided    Source = "two-sided"
	SourceOneSided    Source = "one-sided"
)

func sourceOf(t bearoff.Type) Source {
	switch t {
	case bearoff.TypeHypergammon:
		return SourceHypergammon
	case bearoff.TypeTwoSided:
		return SourceTwoSided
	default:
		return SourceOneSided
	}
}

// Evaluation contains the outcome probabilities for the side on roll
type Evaluation struct {
	Equity  float64 // Cubeless equity
	WinProb float64 // P(win)
	WinG    float64 // P(win gammon)
	WinBG   float64 // P(win backgammon)
	LoseG   float64 // P(lose gammon)
	LoseBG  float64 // P(lose backgammon)
	Source  Source
}

func newEvaluation(out bearoff.Output, src Source) *Evaluation {
	return &Evaluation{
		Equity:  float64(out.Equity()),
		WinProb: float64(out[bearoff.OutputWin]),
		WinG:    float64(out[bearoff.OutputWinGammon]),
		WinBG:   float64(out[bearoff.OutputWinBackgammon]),
		LoseG:   float64(out[bearoff.OutputLoseGammon]),
		LoseBG:  float64(out[bearoff.OutputLoseBackgammon]),
		Source:  src,
	}
}

// Output returns the probabilities in gnubg output order.
func (ev *Evaluation) Output() bearoff.Output {
	return bearoff.Output{
		float32(ev.WinProb),
		float32(ev.WinG),
		float32(ev.WinBG),
		float32(ev.LoseG),
		float32(ev.LoseBG),
	}
}

// SideDistribution is the one-sided view of one side of a board.
type SideDistribution struct {
	ID int
	bearoff.Distribution
	// AverageRolls holds mean and deviation of rolls to bear off, then to
	// save the gammon.
	AverageRolls [4]float32
}

// MakeBoard builds a board from the per-point chequer counts of the side on
// roll and of its opponent, each counted from its own home board.
func MakeBoard(onRoll, opponent []uint8) Board {
	var b Board
	copy(b[1][:], onRoll)
	copy(b[0][:], opponent)
	return b
}
