package bearoff

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultProgressInterval is how many positions Generate builds between
	// progress callbacks.
	DefaultProgressInterval = 1000

	// MaxGeneratePositions bounds the tables Generate builds in memory.
	MaxGeneratePositions = 1 << 22

	// homePoints is the size of the home board; chequers are borne off only
	// when all of them are inside it.
	homePoints = 6

	heuristicPath = "<heuristic>"
	recordBytes   = 2 * Buckets
)

// GenerateOptions configure Generate.
type GenerateOptions struct {
	Points   int // default 6
	Chequers int // default 15
	// Interval is the number of positions between calls to Progress.
	Interval int
	// Progress, if set, is called with the number of positions built so far
	// and the total. Returning an error stops generation.
	Progress func(done, total int) error
}

func (o *GenerateOptions) setDefaults() {
	if o.Points == 0 {
		o.Points = 6
	}
	if o.Chequers == 0 {
		o.Chequers = MaxChequers
	}
	if o.Interval <= 0 {
		o.Interval = DefaultProgressInterval
	}
}

// Generate builds an approximate one-sided table in memory by playing every
// roll from every position with a fixed bear-off policy. Positions are built
// from the empty board upwards; every move leads to a position with a
// smaller id, whose distribution is therefore already known.
//
// Cancellation through ctx or Progress discards the partial table.
func Generate(ctx context.Context, opts GenerateOptions) (*Database, error) {
	opts.setDefaults()
	p, c := opts.Points, opts.Chequers
	if p < 1 || p >= 24 || c < 1 || c > MaxChequers {
		return nil, fmt.Errorf("bearoff: cannot generate %d points / %d chequers", p, c)
	}

	h := Header{Kind: KindNative, Type: TypeOneSided, Points: p, Chequers: c}
	hdr, err := h.Bytes()
	if err != nil {
		return nil, err
	}

	n := NumPositions(p, c)
	if n > MaxGeneratePositions {
		return nil, formatErrorf(heuristicPath, "%d points / %d chequers needs %d positions, more than the %d Generate builds",
			p, c, n, MaxGeneratePositions)
	}
	buf := make([]byte, HeaderSize+recordBytes*n)
	copy(buf, hdr)
	table := buf[HeaderSize:]

	log.Debug().Int("points", p).Int("chequers", c).Int("positions", n).Msg("generating heuristic bearoff table")

	// the empty board is borne off in zero rolls
	binary.LittleEndian.PutUint16(table, 0xffff)

	for id := 1; id < n; id++ {
		if err := generatePosition(table, id, p, c); err != nil {
			return nil, err
		}
		if id%opts.Interval == 0 {
			if err := checkProgress(ctx, opts.Progress, id, n); err != nil {
				return nil, err
			}
		}
	}
	if err := checkProgress(ctx, opts.Progress, n, n); err != nil {
		return nil, err
	}

	db, err := newDatabase(heuristicPath, ownedBacking(buf, heuristicPath))
	if err != nil {
		return nil, err
	}
	db.heuristic = true
	return db, nil
}

func checkProgress(ctx context.Context, progress func(int, int) error, done, total int) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	if progress == nil {
		return nil
	}
	if err := progress(done, total); err != nil {
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	return nil
}

// generatePosition fills in the record of id from the records of the
// positions reached by each of the 21 distinct rolls.
func generatePosition(table []byte, id, points, chequers int) error {
	var acc [Buckets]int

	for r0 := 1; r0 <= 6; r0++ {
		for r1 := 1; r1 <= r0; r1++ {
			side := PositionFromBearoff(id, points, chequers)
			heuristicMove(&side, points, r0, r1)

			child := PositionBearoff(side[:], points, chequers)
			if child < 0 || child >= id {
				return fmt.Errorf("bearoff: heuristic move %d-%d from position %d reached position %d",
					r0, r1, id, child)
			}

			weight := 2
			if r0 == r1 {
				weight = 1
			}
			rec := table[recordBytes*child:]
			for k := 0; k < Buckets; k++ {
				v := int(binary.LittleEndian.Uint16(rec[2*k:]))
				acc[min(k+1, Buckets-1)] += weight * v
			}
		}
	}

	rec := table[recordBytes*id:]
	for k, v := range acc {
		binary.LittleEndian.PutUint16(rec[2*k:], uint16(min((v+18)/36, 0xffff)))
	}
	return nil
}

// heuristicMove plays r0-r1 on side with the fixed bear-off policy.
// Doubles are played four times.
func heuristicMove(side *[MaxPoints]uint8, points, r0, r1 int) {
	dice := []int{r0, r1}
	if r0 == r1 {
		dice = []int{r0, r0, r0, r0}
	}

	for i, d := range dice {
		top := points - 1
		for top >= 0 && side[top] == 0 {
			top--
		}
		if top < 0 {
			return
		}

		from := pickChequer(side, points, top, dice[i:])
		side[from]--
		if from >= d {
			side[from-d]++
		}
	}
}

// pickChequer chooses the point to play dice[0] from. top is the highest
// occupied point.
func pickChequer(side *[MaxPoints]uint8, points, top int, dice []int) int {
	d := dice[0]

	// bring the rearmost chequer towards home before bearing off
	if top >= homePoints {
		return top
	}

	// bear off exactly
	if d-1 < points && side[d-1] > 0 {
		return d - 1
	}
	// bear off from the highest point
	if d-1 > top {
		return top
	}
	// a chequer the remaining dice can bear off together with this one
	total := d - 1
	for _, e := range dice[1:] {
		total += e
		if total < points && side[total] > 0 {
			return total
		}
	}

	// fill a gap from a point with spares
	n := -1
	for s := d; s <= top; s++ {
		if side[s] >= 2 && side[s-d] == 0 && (n == -1 || side[s] > side[n]) {
			n = s
		}
	}
	if n >= 0 {
		return n
	}

	// the most crowded point, preferring the emptier destination
	for s := d; s <= top; s++ {
		if n == -1 || side[s] > side[n] ||
			(side[s] == side[n] && side[s-d] < side[n-d]) {
			n = s
		}
	}
	return n
}
