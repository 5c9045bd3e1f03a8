package bearoff

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"

	"github.com/bgbearoff/bearoff/internal/positionid"
)

const (
	// ndEpsilon is the smallest standard deviation sampled as a Gaussian.
	ndEpsilon = 1e-7

	twoSidedScale = 32767.5
	exactScale    = 4194000.0
	hyperScale    = 16777215.0
	hyperRecord   = 28
	exactRecord   = 12
)

// layout is the on-disk record format, fixed at open.
type layout int

const (
	layoutOneSidedDense layout = iota
	layoutOneSidedSparse
	layoutOneSidedND
	layoutTwoSided
	layoutExact
	layoutHypergammon
)

func (l layout) String() string {
	return [...]string{"one-sided", "one-sided compressed", "one-sided normal",
		"two-sided", "ExactBearoff", "hypergammon"}[l]
}

func (h Header) layout() layout {
	switch {
	case h.Kind == KindThirdParty:
		return layoutExact
	case h.Type == TypeTwoSided:
		return layoutTwoSided
	case h.Type == TypeHypergammon:
		return layoutHypergammon
	case h.ND:
		return layoutOneSidedND
	case h.Compressed:
		return layoutOneSidedSparse
	default:
		return layoutOneSidedDense
	}
}

// joint reports whether records are addressed by a pair of positions.
func (l layout) joint() bool {
	return l == layoutTwoSided || l == layoutExact || l == layoutHypergammon
}

// recordSize is the number of bytes stored per record. Sparse tables are
// sized by their 8-byte index entries.
func (h Header) recordSize() uint64 {
	switch h.layout() {
	case layoutOneSidedSparse:
		return 8
	case layoutOneSidedND:
		return 16
	case layoutTwoSided:
		if h.Cubeful {
			return 8
		}
		return 2
	case layoutExact:
		return exactRecord
	case layoutHypergammon:
		return hyperRecord
	default:
		if h.Gammon {
			return 128
		}
		return 64
	}
}

// sizes returns the number of records of a table with n positions per side
// and the smallest file holding all of them. ok is false when either does
// not fit in an int.
func (h Header) sizes(n int) (records int, minSize int64, ok bool) {
	count := uint64(n)
	if h.layout().joint() {
		hi, lo := bits.Mul64(count, count)
		if hi != 0 {
			return 0, 0, false
		}
		count = lo
	}
	hdr := uint64(HeaderSize)
	if h.Kind == KindThirdParty {
		hdr = exactHeaderSize
	}
	hi, lo := bits.Mul64(count, h.recordSize())
	total, carry := bits.Add64(lo, hdr, 0)
	if hi != 0 || carry != 0 || total > math.MaxInt64 || count > math.MaxInt {
		return 0, 0, false
	}
	return int(count), int64(total), true
}

// strategy holds the decoders for one layout. Nil entries mark operations
// the layout cannot answer.
type strategy struct {
	oneSided func(db *Database, id int) (record, error)
	twoSided func(db *Database, iPos int) (EquityVector, error)
	hyper    func(db *Database, iPos int) (Output, EquityVector, error)
	eval     func(db *Database, board positionid.Board) (Output, error)
}

var strategies = map[layout]*strategy{
	layoutOneSidedDense:  {oneSided: readDense, eval: evalOneSided},
	layoutOneSidedSparse: {oneSided: readSparse, eval: evalOneSided},
	layoutOneSidedND:     {oneSided: readND, eval: evalOneSided},
	layoutTwoSided:       {twoSided: readTwoSided, eval: evalTwoSided},
	layoutExact:          {twoSided: readExact, eval: evalTwoSided},
	layoutHypergammon:    {hyper: readHypergammon, eval: evalHypergammon},
}

// EquityVector holds the equities stored for a two-sided position: the
// cubeless equity alone, or four values for cubeful tables.
type EquityVector []float32

// record is one decoded one-sided entry: 16-bit finish and gammon-save
// values for exact tables, Gaussian parameters for normal-approximated ones.
type record struct {
	raw [64]uint16
	nd  *[4]float32
}

// Distribution holds the one-sided histograms of a position.
type Distribution struct {
	// Prob[k] is the probability of bearing off every chequer in exactly k rolls.
	Prob Histogram `json:"prob"`
	// Gammon[k] is the probability of bearing off the first chequer in exactly k rolls.
	Gammon Histogram `json:"gammon"`
}

func (r record) distribution() Distribution {
	var d Distribution
	if r.nd != nil {
		d.Prob = normalHistogram(r.nd[0], r.nd[1])
		d.Gammon = normalHistogram(r.nd[2], r.nd[3])
		return d
	}
	for i := 0; i < 32; i++ {
		d.Prob[i] = float32(r.raw[i]) / 65535
		d.Gammon[i] = float32(r.raw[32+i]) / 65535
	}
	return d
}

func (r record) quantized() (prob, gammon [32]uint16) {
	if r.nd != nil {
		d := r.distribution()
		for i := 0; i < 32; i++ {
			prob[i] = quantize(d.Prob[i])
			gammon[i] = quantize(d.Gammon[i])
		}
		return prob, gammon
	}
	copy(prob[:], r.raw[:32])
	copy(gammon[:], r.raw[32:])
	return prob, gammon
}

// quantize scales p to the 16-bit stored range. Densities of narrow
// Gaussians exceed 1 and saturate.
func quantize(p float32) uint16 {
	return uint16(min(max(p, 0), 1) * 65535)
}

func readDense(db *Database, id int) (record, error) {
	stride := 64
	if db.header.Gammon {
		stride = 128
	}
	buf, err := db.read(HeaderSize+int64(stride)*int64(id), stride)
	if err != nil {
		return record{}, err
	}
	var r record
	for i := 0; i < stride/2; i++ {
		r.raw[i] = binary.LittleEndian.Uint16(buf[2*i:])
	}
	return r, nil
}

// readSparse decodes a compressed record. Each position has an 8-byte index
// entry: a 32-bit pool offset counted in 16-bit values, then the nonzero
// count and first bucket of the finish and gammon-save windows.
func readSparse(db *Database, id int) (record, error) {
	n := int64(db.positions)
	idx, err := db.read(HeaderSize+8*int64(id), 8)
	if err != nil {
		return record{}, err
	}

	offset := int64(binary.LittleEndian.Uint32(idx))
	nz, ioff := int(idx[4]), int(idx[5])
	nzg, ioffg := int(idx[6]), int(idx[7])

	if offset > 64*n || nz+ioff > 32 || nzg+ioffg > 32 {
		return record{}, &IntegrityError{Path: db.path, Position: id,
			Reason: fmt.Sprintf("offset %d, dist size %d (offset %d), gammon dist size %d (offset %d)",
				offset, nz, ioff, nzg, ioffg)}
	}

	pool := HeaderSize + 8*n + 2*offset
	nBytes := 2 * (nz + nzg)
	if pool+int64(nBytes) > db.store.size() {
		return record{}, &IntegrityError{Path: db.path, Position: id,
			Reason: fmt.Sprintf("values at byte %d+%d past end of file (%d bytes)", pool, nBytes, db.store.size())}
	}

	var r record
	if nBytes == 0 {
		return r, nil
	}
	buf, err := db.read(pool, nBytes)
	if err != nil {
		return record{}, err
	}
	for j := 0; j < nz; j++ {
		r.raw[ioff+j] = binary.LittleEndian.Uint16(buf[2*j:])
	}
	for j := 0; j < nzg; j++ {
		r.raw[32+ioffg+j] = binary.LittleEndian.Uint16(buf[2*(nz+j):])
	}
	return r, nil
}

func readND(db *Database, id int) (record, error) {
	buf, err := db.read(HeaderSize+16*int64(id), 16)
	if err != nil {
		return record{}, err
	}
	var nd [4]float32
	for i := range nd {
		nd[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return record{nd: &nd}, nil
}

func readTwoSided(db *Database, iPos int) (EquityVector, error) {
	k := 1
	if db.header.Cubeful {
		k = 4
	}
	buf, err := db.read(HeaderSize+2*int64(k)*int64(iPos), 2*k)
	if err != nil {
		return nil, err
	}
	ev := make(EquityVector, k)
	for i := range ev {
		ev[i] = float32(binary.LittleEndian.Uint16(buf[2*i:]))/twoSidedScale - 1
	}
	return ev, nil
}

// readExact reads an ExactBearoff record. Those tables number positions
// their own way, so both sides are converted before addressing.
func readExact(db *Database, iPos int) (EquityVector, error) {
	n := db.positions
	p, c := db.header.Points, db.header.Chequers
	us := NativeToExact(iPos/n, p, c)
	them := NativeToExact(iPos%n, p, c)

	off := exactHeaderSize + exactRecord*(int64(us)*int64(n)+int64(them))
	buf, err := db.read(off, exactRecord)
	if err != nil {
		return nil, err
	}
	ev := make(EquityVector, 4)
	for i := range ev {
		ev[i] = float32(uint24(buf[3*i:]))/exactScale - 2
	}
	return ev, nil
}

func readHypergammon(db *Database, iPos int) (Output, EquityVector, error) {
	buf, err := db.read(HeaderSize+hyperRecord*int64(iPos), hyperRecord)
	if err != nil {
		return Output{}, nil, err
	}
	var out Output
	for i := range out {
		out[i] = float32(uint24(buf[3*i:])) / hyperScale
	}
	ev := make(EquityVector, 4)
	for i := range ev {
		ev[i] = (float32(uint24(buf[15+3*i:]))/hyperScale - 0.5) * 6
	}
	return out, ev, nil
}

func uint24(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

func (db *Database) oneSided(op string, id int) (record, error) {
	if db.closed.Load() {
		return record{}, ErrClosed
	}
	if db.reader.oneSided == nil {
		return record{}, &UnsupportedError{Op: op, Type: db.header.Type}
	}
	if id < 0 || id >= db.positions {
		return record{}, fmt.Errorf("%w: %d not in [0, %d)", ErrPositionRange, id, db.positions)
	}
	r, err := db.reader.oneSided(db, id)
	if err != nil {
		return record{}, err
	}
	db.reads.Add(1)
	return r, nil
}

func (db *Database) checkJoint(id int) error {
	if db.closed.Load() {
		return ErrClosed
	}
	if id < 0 || id >= db.records {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrPositionRange, id, db.records)
	}
	return nil
}

// Distribution returns the finish and gammon-save histograms of one-sided
// position id. Tables without gammon data return an all-zero Gammon.
func (db *Database) Distribution(id int) (Distribution, error) {
	r, err := db.oneSided("distribution", id)
	if err != nil {
		return Distribution{}, err
	}
	return r.distribution(), nil
}

// RawDistribution returns the stored 16-bit values of one-sided position id,
// scaled so that 65535 is certainty. Normal-approximated tables return their
// sampled densities quantized the same way.
func (db *Database) RawDistribution(id int) (prob, gammon [32]uint16, err error) {
	r, err := db.oneSided("raw distribution", id)
	if err != nil {
		return prob, gammon, err
	}
	prob, gammon = r.quantized()
	return prob, gammon, nil
}

// AverageRolls returns the mean and standard deviation of the number of
// rolls to bear off (first pair) and to save the gammon (second pair).
// Normal-approximated tables return their stored parameters.
func (db *Database) AverageRolls(id int) ([4]float32, error) {
	r, err := db.oneSided("average rolls", id)
	if err != nil {
		return [4]float32{}, err
	}
	if r.nd != nil {
		return *r.nd, nil
	}
	d := r.distribution()
	var ar [4]float32
	ar[0], ar[1] = d.Prob.AverageRolls()
	ar[2], ar[3] = d.Gammon.AverageRolls()
	return ar, nil
}

// Cubeful returns the equities stored for two-sided position id, where
// id = us*NumPositions() + them. The first value is the cubeless equity;
// cubeful tables follow it with the cube-owned, centred and
// opponent-owned equities.
func (db *Database) Cubeful(id int) (EquityVector, error) {
	if db.reader.twoSided == nil || (db.header.Kind == KindNative && !db.header.Cubeful) {
		return nil, &UnsupportedError{Op: "cubeful equities", Type: db.header.Type}
	}
	return db.twoSided(id)
}

func (db *Database) twoSided(id int) (EquityVector, error) {
	if err := db.checkJoint(id); err != nil {
		return nil, err
	}
	ev, err := db.reader.twoSided(db, id)
	if err != nil {
		return nil, err
	}
	db.reads.Add(1)
	return ev, nil
}

// Hypergammon returns the outputs and equities of hypergammon position id,
// where id = us*NumPositions() + them.
func (db *Database) Hypergammon(id int) (Output, EquityVector, error) {
	if db.reader.hyper == nil {
		return Output{}, nil, &UnsupportedError{Op: "hypergammon lookup", Type: db.header.Type}
	}
	if err := db.checkJoint(id); err != nil {
		return Output{}, nil, err
	}
	out, ev, err := db.reader.hyper(db, id)
	if err != nil {
		return Output{}, nil, err
	}
	db.reads.Add(1)
	return out, ev, nil
}
