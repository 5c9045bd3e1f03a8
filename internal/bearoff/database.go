// Package bearoff reads gnubg bearoff databases and evaluates bear-off
// positions with them.
//
// A database is opened once with Open (or built in memory with Generate)
// and is immutable afterwards: every read is a pure lookup, so a single
// *Database may be shared by any number of goroutines in every storage mode.
//
// Supported layouts:
//
//   - gnubg one-sided tables, dense or sparse-compressed, with or without
//     gammon-save distributions, and normal-approximated tables
//   - gnubg two-sided tables, cubeless or cubeful
//   - gnubg hypergammon tables
//   - two-sided tables written by ExactBearoff
package bearoff

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/cespare/xxhash"
	"github.com/rs/zerolog/log"
)

// Options control how a database is opened.
type Options struct {
	Access Access
	// MustBe rejects databases of any other type. TypeInvalid accepts all.
	MustBe Type
	// Checksum is the expected value of Database.Checksum. Zero skips the check.
	Checksum uint64
}

// Database is an opened bearoff database.
type Database struct {
	path      string
	header    Header
	positions int
	records   int
	heuristic bool

	store  backing
	layout layout
	reader *strategy

	reads  atomic.Uint64
	closed atomic.Bool
}

// Info describes an opened database.
type Info struct {
	Path       string `json:"path,omitempty"`
	Generator  string `json:"generator"`
	Type       string `json:"type"`
	Points     int    `json:"points"`
	Chequers   int    `json:"chequers"`
	Positions  int    `json:"positions"`
	Records    int    `json:"records"`
	Cubeful    bool   `json:"cubeful"`
	Gammon     bool   `json:"gammon"`
	Compressed bool   `json:"compressed"`
	ND         bool   `json:"normal_distribution"`
	Heuristic  bool   `json:"heuristic"`
	Storage    string `json:"storage"`
	Reads      uint64 `json:"reads"`
}

// Open opens the database at path.
func Open(path string, opts Options) (*Database, error) {
	store, err := openBacking(path, opts.Access)
	if err != nil {
		return nil, err
	}

	db, err := newDatabase(path, store)
	if err != nil {
		store.close()
		return nil, err
	}

	if opts.MustBe != TypeInvalid && db.header.Type != opts.MustBe {
		store.close()
		return nil, formatErrorf(path, "database is %s, want %s", db.header.Type, opts.MustBe)
	}

	if opts.Checksum != 0 {
		sum, err := db.Checksum()
		if err != nil {
			store.close()
			return nil, err
		}
		if sum != opts.Checksum {
			store.close()
			return nil, &IntegrityError{Path: path, Position: -1,
				Reason: fmt.Sprintf("checksum %016x does not match expected %016x", sum, opts.Checksum)}
		}
	}

	log.Debug().
		Str("path", path).
		Stringer("kind", db.header.Kind).
		Stringer("type", db.header.Type).
		Int("points", db.header.Points).
		Int("chequers", db.header.Chequers).
		Stringer("storage", store.mode()).
		Msg("opened bearoff database")

	return db, nil
}

func newDatabase(path string, store backing) (*Database, error) {
	if store.size() < HeaderSize {
		return nil, formatErrorf(path, "truncated header (%d bytes)", store.size())
	}
	buf, err := store.slice(0, HeaderSize)
	if err != nil {
		return nil, err
	}
	h, err := ParseHeader(path, buf)
	if err != nil {
		return nil, err
	}

	db := &Database{
		path:      path,
		header:    h,
		positions: h.Positions(),
		store:     store,
		layout:    h.layout(),
	}
	db.reader = strategies[db.layout]

	records, need, ok := h.sizes(db.positions)
	if !ok {
		return nil, formatErrorf(path, "%s table of %d points and %d chequers is too large to address",
			db.layout, h.Points, h.Chequers)
	}
	db.records = records
	if store.size() < need {
		return nil, &IntegrityError{Path: path, Position: -1,
			Reason: fmt.Sprintf("file is %d bytes, %s layout needs at least %d", store.size(), db.layout, need)}
	}
	return db, nil
}

// Close releases the file handle or the in-memory view. It is idempotent.
// No reads may be in flight when Close is called.
func (db *Database) Close() error {
	if db.closed.Swap(true) {
		return nil
	}
	if err := db.store.close(); err != nil {
		return &IOError{Op: "close", Path: db.path, Err: err}
	}
	return nil
}

// Header returns the decoded header.
func (db *Database) Header() Header { return db.header }

// Type returns the database type.
func (db *Database) Type() Type { return db.header.Type }

// Points returns the number of points covered per side.
func (db *Database) Points() int { return db.header.Points }

// Chequers returns the number of chequers covered per side.
func (db *Database) Chequers() int { return db.header.Chequers }

// NumPositions returns the number of one-sided positions, C(points+chequers, points).
func (db *Database) NumPositions() int { return db.positions }

// NumRecords returns the number of addressable records: one per position for
// one-sided tables and one per pair of positions for two-sided tables.
func (db *Database) NumRecords() int { return db.records }

// Storage reports the backing store in use.
func (db *Database) Storage() StorageMode { return db.store.mode() }

// Reads returns the number of records read so far.
func (db *Database) Reads() uint64 { return db.reads.Load() }

// Heuristic reports whether the table was built by Generate.
func (db *Database) Heuristic() bool { return db.heuristic }

// Info summarizes the database.
func (db *Database) Info() Info {
	generator := db.header.Kind.String()
	if db.heuristic {
		generator = "heuristic"
	}
	return Info{
		Path:       db.path,
		Generator:  generator,
		Type:       db.header.Type.String(),
		Points:     db.header.Points,
		Chequers:   db.header.Chequers,
		Positions:  db.positions,
		Records:    db.NumRecords(),
		Cubeful:    db.header.Cubeful,
		Gammon:     db.header.Gammon,
		Compressed: db.header.Compressed,
		ND:         db.header.ND,
		Heuristic:  db.heuristic,
		Storage:    db.store.mode().String(),
		Reads:      db.reads.Load(),
	}
}

// Checksum returns the xxhash64 digest of the whole backing store. For
// zstd-framed files it covers the decompressed contents.
func (db *Database) Checksum() (uint64, error) {
	if db.closed.Load() {
		return 0, ErrClosed
	}
	switch s := db.store.(type) {
	case *memStore:
		if s.mapping != nil {
			return db.checksumOf(s.mapping, int64(s.mapping.Len()))
		}
		return xxhash.Sum64(s.data), nil
	case *handleStore:
		return db.checksumOf(s.f, s.n)
	}
	return 0, fmt.Errorf("bearoff: checksum not supported for %s storage", db.store.mode())
}

func (db *Database) checksumOf(r io.ReaderAt, n int64) (uint64, error) {
	h := xxhash.New()
	if _, err := io.Copy(h, io.NewSectionReader(r, 0, n)); err != nil {
		return 0, &IOError{Op: "checksum", Path: db.path, Err: err}
	}
	return h.Sum64(), nil
}

// read returns n bytes at off from the backing store.
func (db *Database) read(off int64, n int) ([]byte, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	return db.store.slice(off, n)
}
