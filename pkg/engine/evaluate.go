package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/bgbearoff/bearoff/internal/bearoff"
	"github.com/bgbearoff/bearoff/internal/positionid"
)

var (
	// ErrInvalidBoard is returned for boards no legal game can reach.
	ErrInvalidBoard = errors.New("engine: invalid board")
	// ErrNoDatabase is returned when no loaded database can answer a query.
	ErrNoDatabase = errors.New("engine: no database loaded for this query")
)

// Engine is the bear-off evaluation engine
type Engine struct {
	oneSided *bearoff.Database
	twoSided *bearoff.Database
	hyper    *bearoff.Database

	cache *EvalCache
}

// EngineOptions configures the engine
type EngineOptions struct {
	OneSidedFile    string         // Path to one-sided bearoff database
	TwoSidedFile    string         // Path to two-sided bearoff database
	HypergammonFile string         // Path to hypergammon database
	Access          bearoff.Access // How database files are read
	Checksum        uint64         // Expected xxhash64 of the one-sided file (0 = unchecked)
	CacheSize       int            // Evaluation cache size (0 = default, negative = disabled)

	// Heuristic, when set and OneSidedFile is empty, generates an
	// approximate one-sided table at startup.
	Heuristic *bearoff.GenerateOptions
}

// NewEngine creates a new evaluation engine with the given options
func NewEngine(ctx context.Context, opts EngineOptions) (*Engine, error) {
	e := &Engine{}

	load := []struct {
		path     string
		mustBe   bearoff.Type
		checksum uint64
	}{
		{opts.OneSidedFile, bearoff.TypeOneSided, opts.Checksum},
		{opts.TwoSidedFile, bearoff.TypeTwoSided, 0},
		{opts.HypergammonFile, bearoff.TypeHypergammon, 0},
	}
	for _, l := range load {
		if l.path == "" {
			continue
		}
		db, err := bearoff.Open(l.path, bearoff.Options{Access: opts.Access, MustBe: l.mustBe, Checksum: l.checksum})
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to load %s bearoff database: %w", l.mustBe, err)
		}
		e.attach(db)
	}

	if e.oneSided == nil && opts.Heuristic != nil {
		gopts := *opts.Heuristic
		if gopts.Progress == nil {
			gopts.Progress = func(done, total int) error {
				log.Debug().Int("done", done).Int("total", total).Msg("generating heuristic bearoff table")
				return nil
			}
		}
		db, err := bearoff.Generate(ctx, gopts)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to generate one-sided bearoff database: %w", err)
		}
		e.attach(db)
	}

	cacheSize := opts.CacheSize
	if cacheSize == 0 {
		cacheSize = DefaultCacheSize
	}
	if cacheSize > 0 {
		e.cache = NewEvalCache(cacheSize)
	}

	for _, db := range e.Databases() {
		log.Info().Str("type", db.Type().String()).
			Int("points", db.Points()).
			Int("chequers", db.Chequers()).
			Str("storage", db.Storage().String()).
			Bool("heuristic", db.Heuristic()).
			Msg("bearoff database ready")
	}
	return e, nil
}

// Attach adds db to the engine, replacing and closing any database of the
// same type. The engine owns db from then on. Attach must not run
// concurrently with queries.
func (e *Engine) Attach(db *bearoff.Database) error {
	switch db.Type() {
	case bearoff.TypeOneSided, bearoff.TypeTwoSided, bearoff.TypeHypergammon:
	default:
		return fmt.Errorf("engine: cannot attach %s database", db.Type())
	}
	if old := e.attach(db); old != nil {
		if err := old.Close(); err != nil {
			return err
		}
	}
	if e.cache != nil {
		e.cache.Flush()
	}
	return nil
}

func (e *Engine) attach(db *bearoff.Database) (old *bearoff.Database) {
	slot := &e.oneSided
	switch db.Type() {
	case bearoff.TypeTwoSided:
		slot = &e.twoSided
	case bearoff.TypeHypergammon:
		slot = &e.hyper
	}
	old, *slot = *slot, db
	return old
}

// Close closes every attached database.
func (e *Engine) Close() error {
	var errs []error
	for _, db := range e.Databases() {
		errs = append(errs, db.Close())
	}
	return errors.Join(errs...)
}

// Databases returns the attached databases, most precise first.
func (e *Engine) Databases() []*bearoff.Database {
	var dbs []*bearoff.Database
	for _, db := range []*bearoff.Database{e.hyper, e.twoSided, e.oneSided} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Database returns the attached database of type t, or nil.
func (e *Engine) Database(t bearoff.Type) *bearoff.Database {
	switch t {
	case bearoff.TypeOneSided:
		return e.oneSided
	case bearoff.TypeTwoSided:
		return e.twoSided
	case bearoff.TypeHypergammon:
		return e.hyper
	}
	return nil
}

// Info describes every attached database.
func (e *Engine) Info() []bearoff.Info {
	dbs := e.Databases()
	info := make([]bearoff.Info, len(dbs))
	for i, db := range dbs {
		info[i] = db.Info()
	}
	return info
}

// Cache returns the evaluation cache (nil if disabled). The cache is fixed
// when the engine is built.
func (e *Engine) Cache() *EvalCache {
	return e.cache
}

// Evaluate returns the outcome probabilities for the side on roll.
// Finished games are scored directly; otherwise the most precise database
// covering the board answers, and a database that fails hands over to the
// next one.
func (e *Engine) Evaluate(board Board) (*Evaluation, error) {
	if !positionid.CheckPosition(board) {
		return nil, ErrInvalidBoard
	}
	if board.Chequers(0) == 0 || board.Chequers(1) == 0 {
		return evaluateGameOver(board), nil
	}

	var key positionid.Key
	slot := CacheHit
	if e.cache != nil {
		key = positionid.MakeKey(board)
		var entry CacheEntry
		if slot = e.cache.Lookup(key, &entry); slot == CacheHit {
			return newEvaluation(entry.Output, entry.Source), nil
		}
	}

	var firstErr error
	for _, db := range e.Databases() {
		if !db.IsBearoff(board) {
			continue
		}
		out, err := db.Evaluate(board)
		if err != nil {
			log.Warn().Err(err).Str("type", db.Type().String()).
				Str("position", positionid.PositionID(board)).
				Msg("bearoff lookup failed, trying next database")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		src := sourceOf(db.Type())
		if e.cache != nil {
			e.cache.Add(key, out, src, slot)
		}
		return newEvaluation(out, src), nil
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return nil, bearoff.ErrNotBearoff
}

// evaluateGameOver scores a board where one side has borne off.
func evaluateGameOver(board Board) *Evaluation {
	var out bearoff.Output
	if board.Chequers(1) == 0 {
		out[bearoff.OutputWin] = 1
		out[bearoff.OutputWinGammon], out[bearoff.OutputWinBackgammon] = gammonLoss(board[0])
	} else {
		out[bearoff.OutputLoseGammon], out[bearoff.OutputLoseBackgammon] = gammonLoss(board[1])
	}
	return newEvaluation(out, SourceGameOver)
}

// gammonLoss reports whether the losing side, with chequers loser, lost a
// gammon or a backgammon.
func gammonLoss(loser [25]uint8) (gammon, backgammon float32) {
	n := 0
	for _, c := range loser {
		n += int(c)
	}
	if n < positionid.MaxChequers {
		return 0, 0
	}
	// still in the winner's home board or on the bar
	for i := 18; i <= positionid.BarPoint; i++ {
		if loser[i] > 0 {
			return 1, 1
		}
	}
	return 1, 0
}

// Distribution returns the one-sided histograms of side's chequers.
func (e *Engine) Distribution(board Board, side int) (*SideDistribution, error) {
	if side != 0 && side != 1 {
		return nil, fmt.Errorf("engine: side %d must be 0 or 1", side)
	}
	if e.oneSided == nil {
		return nil, ErrNoDatabase
	}
	id, err := e.oneSided.SideIndex(board, side)
	if err != nil {
		return nil, err
	}
	return e.DistributionByID(id)
}

// DistributionByID returns the one-sided histograms of position id.
func (e *Engine) DistributionByID(id int) (*SideDistribution, error) {
	if e.oneSided == nil {
		return nil, ErrNoDatabase
	}
	d, err := e.oneSided.Distribution(id)
	if err != nil {
		return nil, err
	}
	ar, err := e.oneSided.AverageRolls(id)
	if err != nil {
		return nil, err
	}
	return &SideDistribution{ID: id, Distribution: d, AverageRolls: ar}, nil
}

// Cubeful returns the two-sided equities of board and its record id.
func (e *Engine) Cubeful(board Board) (int, bearoff.EquityVector, error) {
	if e.twoSided == nil {
		return 0, nil, ErrNoDatabase
	}
	id, err := e.twoSided.Index(board)
	if err != nil {
		return 0, nil, err
	}
	ev, err := e.twoSided.Cubeful(id)
	return id, ev, err
}
