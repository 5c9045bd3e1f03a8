package bearoff

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func headerBytes(t *testing.T, h Header) []byte {
	t.Helper()
	buf, err := h.Bytes()
	require.NoError(t, err)
	return buf
}

func openFixture(t *testing.T, path string, access Access) *Database {
	t.Helper()
	db, err := Open(path, Options{Access: access})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// denseOneSided builds an uncompressed one-sided table whose records come from rec.
func denseOneSided(t *testing.T, p, c int, gammon bool, rec func(id int) (prob, gprob [32]uint16)) []byte {
	t.Helper()
	buf := headerBytes(t, Header{Kind: KindNative, Type: TypeOneSided, Points: p, Chequers: c, Gammon: gammon})
	for id := 0; id < NumPositions(p, c); id++ {
		prob, gprob := rec(id)
		for _, v := range prob {
			buf = binary.LittleEndian.AppendUint16(buf, v)
		}
		if gammon {
			for _, v := range gprob {
				buf = binary.LittleEndian.AppendUint16(buf, v)
			}
		}
	}
	return buf
}

func ndOneSided(t *testing.T, p, c int, params func(id int) [4]float32) []byte {
	t.Helper()
	buf := headerBytes(t, Header{Kind: KindNative, Type: TypeOneSided, Points: p, Chequers: c, Gammon: true, ND: true})
	for id := 0; id < NumPositions(p, c); id++ {
		for _, v := range params(id) {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	return buf
}

func twoSided(t *testing.T, p, c int, cubeful bool, val func(iPos, slot int) uint16) []byte {
	t.Helper()
	buf := headerBytes(t, Header{Kind: KindNative, Type: TypeTwoSided, Points: p, Chequers: c, Cubeful: cubeful})
	k := 1
	if cubeful {
		k = 4
	}
	n := NumPositions(p, c)
	for iPos := 0; iPos < n*n; iPos++ {
		for slot := 0; slot < k; slot++ {
			buf = binary.LittleEndian.AppendUint16(buf, val(iPos, slot))
		}
	}
	return buf
}

func appendUint24(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16))
}

// exactBearoff builds an ExactBearoff table over 6 points. val is addressed
// with ExactBearoff ids.
func exactBearoff(c int, val func(us, them, slot int) uint32) []byte {
	buf := binary.LittleEndian.AppendUint32(nil, exactMagic)
	buf = binary.LittleEndian.AppendUint32(buf, exactVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(c))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(c))
	n := NumPositions(exactPoints, c)
	for us := 0; us < n; us++ {
		for them := 0; them < n; them++ {
			for slot := 0; slot < 4; slot++ {
				buf = appendUint24(buf, val(us, them, slot))
			}
		}
	}
	return buf
}

func hypergammon(t *testing.T, c int, rec func(iPos int) (out [5]uint32, eq [4]uint32)) []byte {
	t.Helper()
	buf := headerBytes(t, Header{Kind: KindNative, Type: TypeHypergammon, Points: MaxPoints, Chequers: c})
	n := NumPositions(MaxPoints, c)
	for iPos := 0; iPos < n*n; iPos++ {
		out, eq := rec(iPos)
		for _, v := range out {
			buf = appendUint24(buf, v)
		}
		for _, v := range eq {
			buf = appendUint24(buf, v)
		}
		buf = append(buf, 0)
	}
	return buf
}

// sparseEntry is one index entry of a compressed table.
type sparseEntry struct {
	offset     uint32
	nz, ioff   uint8
	nzg, ioffg uint8
}

// sparseOneSided builds a compressed table from a hand-written index and pool.
func sparseOneSided(t *testing.T, p, c int, entries []sparseEntry, pool []uint16) []byte {
	t.Helper()
	require.Len(t, entries, NumPositions(p, c))
	buf := headerBytes(t, Header{Kind: KindNative, Type: TypeOneSided, Points: p, Chequers: c, Gammon: true, Compressed: true})
	for _, e := range entries {
		buf = binary.LittleEndian.AppendUint32(buf, e.offset)
		buf = append(buf, e.nz, e.ioff, e.nzg, e.ioffg)
	}
	for _, v := range pool {
		buf = binary.LittleEndian.AppendUint16(buf, v)
	}
	return buf
}

// impulse returns a histogram with all its mass in bucket k.
func impulse(k int) [32]uint16 {
	var h [32]uint16
	h[k] = 0xffff
	return h
}
