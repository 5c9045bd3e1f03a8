package bearoff

const (
	// MaxPoints is the widest one-sided board a table can cover. Ordinary
	// tables stop below 24; hypergammon tables span every point plus the bar.
	MaxPoints = 25
	// MaxChequers is the most chequers a side can have.
	MaxChequers = 15

	maxBits = MaxPoints + MaxChequers
)

// combination[n][r] = C(n, r)
var combination [maxBits + 1][MaxPoints + 1]int

func init() {
	for n := 0; n <= maxBits; n++ {
		combination[n][0] = 1
		for r := 1; r <= MaxPoints && r <= n; r++ {
			combination[n][r] = combination[n-1][r-1] + combination[n-1][r]
		}
	}
}

// Combination returns C(n, r), the number of ways to choose r items from n.
// It returns 0 outside the range used by bearoff tables.
func Combination(n, r int) int {
	if n < 0 || r < 0 || n > maxBits || r > MaxPoints {
		return 0
	}
	return combination[n][r]
}

// NumPositions is the number of one-sided boards with at most chequers
// chequers spread over points points. It fixes every record offset of a
// table with that geometry.
func NumPositions(points, chequers int) int {
	return Combination(points+chequers, points)
}

// positionF ranks the bit pattern of a board among all patterns with r set
// bits in n.
func positionF(bits uint64, n, r int) int {
	id := 0
	for n != r {
		if bits&(1<<(n-1)) != 0 {
			id += Combination(n-1, r)
			r--
		}
		n--
	}
	return id
}

func positionInv(id, n, r int) uint64 {
	var bits uint64
	for r > 0 {
		if n == r {
			return bits | (1<<n - 1)
		}
		if c := Combination(n-1, r); id >= c {
			bits |= 1 << (n - 1)
			id -= c
			r--
		}
		n--
	}
	return bits
}

// PositionBearoff converts one side of a board to its position id. side
// holds the chequers on each point counted from the home board; only the
// first points entries are read.
func PositionBearoff(side []uint8, points, chequers int) int {
	if points == 0 {
		return 0
	}

	j := points - 1
	for i := 0; i < points; i++ {
		j += int(side[i])
	}

	bits := uint64(1) << j
	for i := 0; i < points-1; i++ {
		j -= int(side[i]) + 1
		bits |= uint64(1) << j
	}

	return positionF(bits, chequers+points, points)
}

// PositionFromBearoff converts a position id back to one side of a board.
func PositionFromBearoff(id, points, chequers int) [MaxPoints]uint8 {
	var side [MaxPoints]uint8

	bits := positionInv(id, chequers+points, points)

	j := points - 1
	for i := 0; i < chequers+points; i++ {
		if bits&(1<<i) != 0 {
			if j == 0 {
				break
			}
			j--
		} else {
			side[j]++
		}
	}
	return side
}

// countBoards is the number of ways to leave at most c chequers on d-1
// points, the last slot absorbing whatever has been borne off.
func countBoards(d, c int) int {
	return Combination(c+d-1, d-1)
}

// ExactBearoffIndex numbers a side the way ExactBearoff databases do: points
// are scanned from the farthest inward, and a side ranks after every side
// with fewer chequers on the first point where they differ.
func ExactBearoffIndex(side []uint8, points, chequers int) int {
	id, c := 0, chequers
	for d := points + 1; d > 1 && c > 0; d-- {
		k := int(side[d-2])
		for i := 0; i < k; i++ {
			id += countBoards(d-1, c-i)
		}
		c -= k
	}
	return id
}

// BoardFromExactBearoff inverts ExactBearoffIndex.
func BoardFromExactBearoff(id, points, chequers int) [MaxPoints]uint8 {
	var side [MaxPoints]uint8
	c := chequers
	for d := points + 1; d > 1 && c > 0; d-- {
		k := 0
		for k < c {
			n := countBoards(d-1, c-k)
			if id < n {
				break
			}
			id -= n
			k++
		}
		side[d-2] = uint8(k)
		c -= k
	}
	return side
}

// NativeToExact converts a native position id to the ExactBearoff numbering.
// The two schemes disagree for almost every id, so the side is rebuilt.
func NativeToExact(id, points, chequers int) int {
	side := PositionFromBearoff(id, points, chequers)
	return ExactBearoffIndex(side[:], points, chequers)
}

// ExactToNative converts an ExactBearoff id to the native numbering.
func ExactToNative(id, points, chequers int) int {
	side := BoardFromExactBearoff(id, points, chequers)
	return PositionBearoff(side[:], points, chequers)
}

// validSide reports whether side fits a table of the given geometry.
func validSide(side []uint8, points, chequers int) bool {
	n := 0
	for i, c := range side {
		if c == 0 {
			continue
		}
		if i >= points {
			return false
		}
		n += int(c)
	}
	return n <= chequers
}
