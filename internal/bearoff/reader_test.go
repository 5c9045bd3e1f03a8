package bearoff

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accessModes = []Access{AccessOnDisk, AccessInMemory, AccessHeap}

func TestDenseDistribution(t *testing.T) {
	const p, c = 2, 2
	data := denseOneSided(t, p, c, true, func(id int) (prob, gprob [32]uint16) {
		prob[id] = 40000
		prob[id+1] = 25535
		return prob, impulse(id)
	})
	path := writeFixture(t, "dense.bd", data)

	for _, access := range accessModes {
		t.Run(access.String(), func(t *testing.T) {
			db := openFixture(t, path, access)
			require.Equal(t, NumPositions(p, c), db.NumPositions())

			for id := 0; id < db.NumPositions(); id++ {
				d, err := db.Distribution(id)
				require.NoError(t, err)
				assert.InDelta(t, 40000.0/65535, d.Prob[id], 1e-6)
				assert.InDelta(t, 25535.0/65535, d.Prob[id+1], 1e-6)
				assert.InDelta(t, 1.0, d.Prob.Sum(), 1e-3)
				assert.Equal(t, float32(1), d.Gammon[id])

				prob, gprob, err := db.RawDistribution(id)
				require.NoError(t, err)
				assert.Equal(t, uint16(40000), prob[id])
				assert.Equal(t, impulse(id), gprob)
			}
			assert.Equal(t, uint64(2*db.NumPositions()), db.Reads())
		})
	}
}

func TestDenseWithoutGammon(t *testing.T) {
	data := denseOneSided(t, 1, 3, false, func(id int) (prob, gprob [32]uint16) {
		return impulse(id), gprob
	})
	db := openFixture(t, writeFixture(t, "nogammon.bd", data), AccessInMemory)

	d, err := db.Distribution(3)
	require.NoError(t, err)
	assert.Equal(t, float32(1), d.Prob[3])
	assert.Equal(t, Histogram{}, d.Gammon)
}

func TestSparseDistribution(t *testing.T) {
	// 1 point, 1 chequer: two positions. Position 1 keeps three values
	// starting at bucket 5, followed by two gammon values from bucket 1.
	entries := []sparseEntry{
		{offset: 0, nz: 1, ioff: 0, nzg: 1, ioffg: 0},
		{offset: 2, nz: 3, ioff: 5, nzg: 2, ioffg: 1},
	}
	pool := []uint16{0xffff, 0xffff, 10000, 20000, 35535, 30000, 35535}
	path := writeFixture(t, "sparse.bd", sparseOneSided(t, 1, 1, entries, pool))

	for _, access := range accessModes {
		t.Run(access.String(), func(t *testing.T) {
			db := openFixture(t, path, access)

			prob, gprob, err := db.RawDistribution(1)
			require.NoError(t, err)
			var want [32]uint16
			want[5], want[6], want[7] = 10000, 20000, 35535
			assert.Equal(t, want, prob)

			var wantGammon [32]uint16
			wantGammon[1], wantGammon[2] = 30000, 35535
			assert.Equal(t, wantGammon, gprob)

			d, err := db.Distribution(0)
			require.NoError(t, err)
			assert.Equal(t, float32(1), d.Prob[0])
			assert.Equal(t, float32(1), d.Gammon[0])
		})
	}
}

func TestSparseIntegrity(t *testing.T) {
	tests := []struct {
		name  string
		entry sparseEntry
	}{
		{"window past last bucket", sparseEntry{offset: 0, nz: 3, ioff: 30}},
		{"gammon window past last bucket", sparseEntry{offset: 0, nz: 1, nzg: 33}},
		{"offset past pool", sparseEntry{offset: 129, nz: 1}},
		{"values past end of file", sparseEntry{offset: 1, nz: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := []sparseEntry{{nz: 1}, tt.entry}
			path := writeFixture(t, "corrupt.bd", sparseOneSided(t, 1, 1, entries, []uint16{0xffff, 0xffff}))

			for _, access := range accessModes {
				db := openFixture(t, path, access)
				_, err := db.Distribution(1)
				var ie *IntegrityError
				require.True(t, errors.As(err, &ie), "%s: got %v", access, err)
				assert.Equal(t, 1, ie.Position)
				assert.Zero(t, db.Reads(), "a failed read must not count")

				_, err = db.Distribution(0)
				assert.NoError(t, err, "other records stay readable")
			}
		})
	}
}

func TestNormalDistribution(t *testing.T) {
	data := ndOneSided(t, 2, 2, func(id int) [4]float32 {
		if id == 0 {
			return [4]float32{0, 0, 0, 0}
		}
		return [4]float32{4, 1.2, 2.4, 0}
	})
	db := openFixture(t, writeFixture(t, "nd.bd", data), AccessOnDisk)

	d, err := db.Distribution(0)
	require.NoError(t, err)
	assert.Equal(t, float32(1), d.Prob[0])
	assert.Equal(t, float32(1), d.Gammon[0])

	d, err = db.Distribution(3)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d.Prob.Sum(), 1e-3)
	assert.Greater(t, d.Prob[4], d.Prob[3])
	assert.Greater(t, d.Prob[4], d.Prob[5])
	assert.InDelta(t, d.Prob[3], d.Prob[5], 1e-6)
	assert.Equal(t, float32(1), d.Gammon[2], "degenerate gammon distribution rounds 2.4 to 2")

	ar, err := db.AverageRolls(3)
	require.NoError(t, err)
	assert.Equal(t, [4]float32{4, 1.2, 2.4, 0}, ar)

	prob, _, err := db.RawDistribution(3)
	require.NoError(t, err)
	assert.Equal(t, uint16(d.Prob[4]*65535), prob[4])
}

func TestNormalDistributionNarrowSaturates(t *testing.T) {
	data := ndOneSided(t, 2, 2, func(id int) [4]float32 {
		return [4]float32{4, 0.2, 4, 0.2}
	})
	db := openFixture(t, writeFixture(t, "nd.bd", data), AccessHeap)

	d, err := db.Distribution(3)
	require.NoError(t, err)
	require.Greater(t, d.Prob[4], float32(1), "density of a narrow Gaussian")

	prob, gprob, err := db.RawDistribution(3)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xffff), prob[4])
	assert.Equal(t, uint16(0xffff), gprob[4])
	assert.Less(t, prob[3], uint16(0x100))
}

func TestTwoSidedRead(t *testing.T) {
	const p, c = 2, 2
	data := twoSided(t, p, c, true, func(iPos, slot int) uint16 {
		return uint16(iPos*1000 + slot)
	})
	path := writeFixture(t, "ts.bd", data)

	for _, access := range accessModes {
		db := openFixture(t, path, access)
		assert.Equal(t, 36, db.NumRecords())

		ev, err := db.Cubeful(17)
		require.NoError(t, err)
		require.Len(t, ev, 4)
		for slot, v := range ev {
			assert.InDelta(t, float64(17000+slot)/32767.5-1, v, 1e-6)
		}

		_, err = db.Cubeful(36)
		assert.True(t, errors.Is(err, ErrPositionRange))

		_, err = db.Distribution(0)
		var ue *UnsupportedError
		assert.True(t, errors.As(err, &ue))
	}
}

func TestTwoSidedCubelessRejectsCubeful(t *testing.T) {
	data := twoSided(t, 1, 1, false, func(iPos, slot int) uint16 { return 0 })
	db := openFixture(t, writeFixture(t, "ts1.bd", data), AccessHeap)

	_, err := db.Cubeful(0)
	var ue *UnsupportedError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, TypeTwoSided, ue.Type)
}

func TestExactBearoffRead(t *testing.T) {
	const c = 2
	n := NumPositions(exactPoints, c)
	data := exactBearoff(c, func(us, them, slot int) uint32 {
		return uint32((us*n+them)*100 + slot)
	})
	path := writeFixture(t, "exact.bd", data)

	for _, access := range accessModes {
		db := openFixture(t, path, access)
		assert.Equal(t, KindThirdParty, db.Header().Kind)

		// native 2 is a chequer on the 2-point, ExactBearoff numbers it 3
		native := 2*n + 7
		ev, err := db.Cubeful(native)
		require.NoError(t, err)

		exact := NativeToExact(2, exactPoints, c)*n + NativeToExact(7, exactPoints, c)
		require.Equal(t, 3*n+2, exact)
		for slot, v := range ev {
			assert.InDelta(t, float64(exact*100+slot)/4194000-2, v, 1e-5)
		}
	}
}

func TestHypergammonRead(t *testing.T) {
	data := hypergammon(t, 1, func(iPos int) (out [5]uint32, eq [4]uint32) {
		out[OutputWin] = 16777215
		out[OutputWinGammon] = uint32(iPos)
		eq = [4]uint32{0, 16777215, 16777215 / 2, uint32(iPos)}
		return out, eq
	})
	db := openFixture(t, writeFixture(t, "hyper.bd", data), AccessInMemory)
	assert.Equal(t, 26, db.NumPositions())

	out, eq, err := db.Hypergammon(100)
	require.NoError(t, err)
	assert.Equal(t, float32(1), out[OutputWin])
	assert.InDelta(t, 100.0/16777215, out[OutputWinGammon], 1e-9)
	assert.InDelta(t, -3, eq[0], 1e-6)
	assert.InDelta(t, 3, eq[1], 1e-6)
	assert.InDelta(t, 0, eq[2], 1e-5)

	_, _, err = db.Hypergammon(26 * 26)
	assert.True(t, errors.Is(err, ErrPositionRange))

	_, err = db.Cubeful(0)
	var ue *UnsupportedError
	assert.True(t, errors.As(err, &ue))
}

func TestDistributionRange(t *testing.T) {
	data := denseOneSided(t, 1, 1, false, func(id int) (prob, gprob [32]uint16) { return impulse(id), gprob })
	db := openFixture(t, writeFixture(t, "r.bd", data), AccessOnDisk)

	for _, id := range []int{-1, 2, 1 << 20} {
		_, err := db.Distribution(id)
		assert.True(t, errors.Is(err, ErrPositionRange), "id %d", id)
	}
}
