package bearoff

import (
	"context"
	"math"
	"runtime"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const (
	verifyChunk      = 4096
	maxReportedBad   = 100
	defaultTolerance = 1e-3
)

// VerifyOptions configure Verify.
type VerifyOptions struct {
	// Workers is the number of concurrent scanners; default GOMAXPROCS.
	Workers int
	// Tolerance is the allowed deviation of a distribution's total from 1.
	Tolerance float64
	// Progress, if set, is called after each scanned chunk with the number
	// of records done so far. Calls are serialized and done increases.
	Progress func(done, total int)
}

// VerifyReport summarizes a full scan of a database.
type VerifyReport struct {
	Records      int     `json:"records"`
	Bad          int     `json:"bad"`
	BadIDs       []int   `json:"bad_ids,omitempty"`
	MaxDeviation float64 `json:"max_deviation"`
}

type chunkResult struct {
	scanned int
	bad     []int
	maxDev  float64
}

// Verify reads every record of db. For one-sided tables it checks that each
// distribution sums to 1; for hypergammon tables that the gammon outputs do
// not exceed the matching win or loss. Read and integrity errors stop the
// scan and are returned. Only the first bad ids are listed in the report.
func Verify(ctx context.Context, db *Database, opts VerifyOptions) (VerifyReport, error) {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = defaultTolerance
	}

	total := db.NumRecords()
	starts := lo.RangeWithSteps(0, total, verifyChunk)
	results := make([]chunkResult, len(starts))

	var (
		mu   sync.Mutex
		done int
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, start := range starts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := min(start+verifyChunk, total)
			res, err := verifyRange(db, start, end, opts.Tolerance)
			results[i] = res
			if err == nil && opts.Progress != nil {
				mu.Lock()
				done += res.scanned
				opts.Progress(done, total)
				mu.Unlock()
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return VerifyReport{}, err
	}

	bad := lo.Flatten(lo.Map(results, func(r chunkResult, _ int) []int { return r.bad }))
	slices.Sort(bad)
	report := VerifyReport{
		Records:      lo.SumBy(results, func(r chunkResult) int { return r.scanned }),
		Bad:          len(bad),
		BadIDs:       bad[:min(len(bad), maxReportedBad)],
		MaxDeviation: lo.Max(lo.Map(results, func(r chunkResult, _ int) float64 { return r.maxDev })),
	}

	log.Info().
		Str("path", db.path).
		Int("records", report.Records).
		Int("bad", report.Bad).
		Float64("max_deviation", report.MaxDeviation).
		Msg("verified bearoff database")
	return report, nil
}

func verifyRange(db *Database, start, end int, tol float64) (chunkResult, error) {
	var res chunkResult
	for id := start; id < end; id++ {
		dev, err := verifyRecord(db, id)
		if err != nil {
			return res, err
		}
		res.scanned++
		res.maxDev = math.Max(res.maxDev, dev)
		if dev > tol {
			res.bad = append(res.bad, id)
		}
	}
	return res, nil
}

// verifyRecord returns how far record id is from being consistent.
func verifyRecord(db *Database, id int) (float64, error) {
	switch db.header.Type {
	case TypeOneSided:
		d, err := db.Distribution(id)
		if err != nil {
			return 0, err
		}
		dev := math.Abs(d.Prob.Sum() - 1)
		if db.header.Gammon {
			dev = math.Max(dev, math.Abs(d.Gammon.Sum()-1))
		}
		return dev, nil

	case TypeHypergammon:
		out, _, err := db.Hypergammon(id)
		if err != nil {
			return 0, err
		}
		win := float64(out[OutputWin])
		return math.Max(0, math.Max(
			float64(out[OutputWinGammon])-win,
			float64(out[OutputLoseGammon])-(1-win))), nil

	default:
		_, err := db.twoSided(id)
		return 0, err
	}
}
