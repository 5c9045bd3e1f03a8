package bearoff

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the size of the fixed header that starts every native database.
const HeaderSize = 40

const (
	exactMagic      = 73457356
	exactVersion    = 100
	exactHeaderSize = 16
	exactPoints     = 6
)

// Kind identifies the program that wrote a database.
type Kind int

const (
	KindUnknown Kind = iota
	KindNative
	KindThirdParty
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "gnubg"
	case KindThirdParty:
		return "ExactBearoff"
	default:
		return "unknown"
	}
}

// Type identifies the layout of a database.
type Type int

const (
	TypeInvalid Type = iota
	TypeOneSided
	TypeTwoSided
	TypeHypergammon
)

func (t Type) String() string {
	switch t {
	case TypeOneSided:
		return "one-sided"
	case TypeTwoSided:
		return "two-sided"
	case TypeHypergammon:
		return "hypergammon"
	default:
		return "invalid"
	}
}

// Header is the decoded fixed header of a database.
type Header struct {
	Kind     Kind
	Type     Type
	Points   int
	Chequers int

	Cubeful    bool // two-sided: cubeful equities stored after the cubeless one
	Gammon     bool // one-sided: gammon-save distributions stored
	Compressed bool // one-sided: sparse index plus value pool
	ND         bool // one-sided: normal distribution parameters only
}

// DetectKind classifies the leading bytes of a database.
func DetectKind(buf []byte) Kind {
	if len(buf) >= 5 && string(buf[:5]) == "gnubg" {
		return KindNative
	}
	if len(buf) >= 8 &&
		binary.LittleEndian.Uint32(buf[0:]) == exactMagic &&
		binary.LittleEndian.Uint32(buf[4:]) == exactVersion {
		return KindThirdParty
	}
	return KindUnknown
}

// ParseHeader decodes the fixed header at the start of buf. path is only
// used for error messages.
func ParseHeader(path string, buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, formatErrorf(path, "truncated header (%d bytes)", len(buf))
	}

	switch DetectKind(buf) {
	case KindNative:
		return parseNative(path, buf)
	case KindThirdParty:
		return parseExact(path, buf)
	default:
		return Header{}, formatErrorf(path, "unknown bearoff database")
	}
}

func parseNative(path string, buf []byte) (Header, error) {
	h := Header{Kind: KindNative}

	switch {
	case string(buf[6:8]) == "TS":
		h.Type = TypeTwoSided
	case string(buf[6:8]) == "OS":
		h.Type = TypeOneSided
	case buf[6] == 'H':
		h.Type = TypeHypergammon
	default:
		return h, formatErrorf(path, "type is illegal: %q", buf[6:8])
	}

	if h.Type == TypeHypergammon {
		h.Points = MaxPoints
		h.Chequers = atoi(buf[7:])
		if h.Chequers < 1 || h.Chequers > MaxChequers {
			return h, formatErrorf(path, "illegal number of chequers is %d", h.Chequers)
		}
		return h, nil
	}

	h.Points = atoi(buf[9:])
	if h.Points < 1 || h.Points >= 24 {
		return h, formatErrorf(path, "illegal number of points is %d", h.Points)
	}
	h.Chequers = atoi(buf[12:])
	if h.Chequers < 1 || h.Chequers > MaxChequers {
		return h, formatErrorf(path, "illegal number of chequers is %d", h.Chequers)
	}

	switch h.Type {
	case TypeTwoSided:
		h.Cubeful = atoi(buf[15:]) != 0
	case TypeOneSided:
		h.Gammon = atoi(buf[15:]) != 0
		h.Compressed = atoi(buf[17:]) != 0
		h.ND = atoi(buf[19:]) != 0
	}
	return h, nil
}

// parseExact reads the ExactBearoff header: magic, version, then the
// chequer counts of the bottom and top player. Only tables with the same
// count on both sides can be addressed.
func parseExact(path string, buf []byte) (Header, error) {
	bottom := int32(binary.LittleEndian.Uint32(buf[8:]))
	top := int32(binary.LittleEndian.Uint32(buf[12:]))
	if bottom != top {
		return Header{}, formatErrorf(path,
			"only tables with an equal number of chequers on both sides can be read (bottom %d, top %d)",
			bottom, top)
	}
	if bottom < 1 || bottom > MaxChequers {
		return Header{}, formatErrorf(path, "illegal number of chequers is %d", bottom)
	}
	return Header{
		Kind:     KindThirdParty,
		Type:     TypeTwoSided,
		Points:   exactPoints,
		Chequers: int(bottom),
		Cubeful:  true,
	}, nil
}

// Positions returns the number of one-sided positions for the header's geometry.
func (h Header) Positions() int {
	return NumPositions(h.Points, h.Chequers)
}

// Bytes formats a native header. Third-party headers cannot be written.
func (h Header) Bytes() ([]byte, error) {
	var s string
	switch h.Type {
	case TypeOneSided:
		s = fmt.Sprintf("gnubg-OS-%02d-%02d-%d-%d-%d",
			h.Points, h.Chequers, flag(h.Gammon), flag(h.Compressed), flag(h.ND))
	case TypeTwoSided:
		s = fmt.Sprintf("gnubg-TS-%02d-%02d-%d", h.Points, h.Chequers, flag(h.Cubeful))
	case TypeHypergammon:
		s = fmt.Sprintf("gnubg-H%d", h.Chequers)
	default:
		return nil, fmt.Errorf("bearoff: cannot write header for %s database", h.Type)
	}

	buf := make([]byte, HeaderSize)
	for i := range buf {
		buf[i] = ' '
	}
	copy(buf, s)
	buf[HeaderSize-1] = '\n'
	return buf, nil
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// atoi parses an optionally signed decimal prefix of b after leading
// blanks, stopping at the first non-digit, and returns 0 if there is none.
func atoi(b []byte) int {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t') {
		i++
	}
	neg := false
	if i < len(b) && (b[i] == '-' || b[i] == '+') {
		neg = b[i] == '-'
		i++
	}
	n := 0
	for ; i < len(b) && b[i] >= '0' && b[i] <= '9'; i++ {
		n = n*10 + int(b[i]-'0')
		if n > 1<<20 {
			break
		}
	}
	if neg {
		return -n
	}
	return n
}
