package bearoff

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// WriteOptions select the layout written by WriteOneSided.
type WriteOptions struct {
	Compressed bool
	Gammon     bool
}

// WriteHeader writes the 40-byte native header for h.
func WriteHeader(w io.Writer, h Header) error {
	buf, err := h.Bytes()
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// WriteOneSided writes the one-sided table db as a native database. Normal
// approximated tables are written with their sampled distributions.
func WriteOneSided(w io.Writer, db *Database, opts WriteOptions) error {
	if db.header.Type != TypeOneSided {
		return &UnsupportedError{Op: "one-sided export", Type: db.header.Type}
	}
	if opts.Gammon && !db.header.Gammon {
		return fmt.Errorf("bearoff: %s has no gammon distributions to write", db.path)
	}

	h := Header{
		Kind:       KindNative,
		Type:       TypeOneSided,
		Points:     db.header.Points,
		Chequers:   db.header.Chequers,
		Gammon:     opts.Gammon,
		Compressed: opts.Compressed,
	}

	bw := bufio.NewWriter(w)
	if err := WriteHeader(bw, h); err != nil {
		return err
	}

	var err error
	if opts.Compressed {
		err = writeSparse(bw, db, opts.Gammon)
	} else {
		err = writeDense(bw, db, opts.Gammon)
	}
	if err != nil {
		return err
	}
	return bw.Flush()
}

func writeDense(w io.Writer, db *Database, gammon bool) error {
	var buf [2 * 2 * Buckets]byte
	for id := 0; id < db.positions; id++ {
		prob, gprob, err := db.RawDistribution(id)
		if err != nil {
			return err
		}
		n := putValues(buf[:], prob[:])
		if gammon {
			n += putValues(buf[n:], gprob[:])
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return err
		}
	}
	return nil
}

// writeSparse writes the index of every position followed by the pool
// holding the nonzero window of each distribution.
func writeSparse(w io.Writer, db *Database, gammon bool) error {
	index := make([]byte, 8*db.positions)
	var pool []byte
	var offset uint32

	for id := 0; id < db.positions; id++ {
		prob, gprob, err := db.RawDistribution(id)
		if err != nil {
			return err
		}

		ioff, nz := window(prob[:])
		var ioffg, nzg int
		if gammon {
			ioffg, nzg = window(gprob[:])
		}

		entry := index[8*id:]
		binary.LittleEndian.PutUint32(entry, offset)
		entry[4], entry[5] = byte(nz), byte(ioff)
		entry[6], entry[7] = byte(nzg), byte(ioffg)

		for _, v := range prob[ioff : ioff+nz] {
			pool = binary.LittleEndian.AppendUint16(pool, v)
		}
		for _, v := range gprob[ioffg : ioffg+nzg] {
			pool = binary.LittleEndian.AppendUint16(pool, v)
		}
		offset += uint32(nz + nzg)
	}

	if _, err := w.Write(index); err != nil {
		return err
	}
	_, err := w.Write(pool)
	return err
}

// window returns the first bucket and length of the nonzero part of v.
func window(v []uint16) (start, n int) {
	first, last := -1, -1
	for i, x := range v {
		if x == 0 {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	if first < 0 {
		return 0, 0
	}
	return first, last - first + 1
}

func putValues(buf []byte, v []uint16) int {
	for i, x := range v {
		binary.LittleEndian.PutUint16(buf[2*i:], x)
	}
	return 2 * len(v)
}
