package nalu

// AnnexB selects start-code delimited segmentation in NewSegmenter.
const AnnexB = 0

// MaxPrefixLen is the widest supported length prefix.
const MaxPrefixLen = 4

// Unit is one NAL unit located inside a segmented buffer. Offsets index the
// buffer passed to the Segmenter; Data aliases it.
type Unit struct {
	Header
	Start        int    // offset of the start code or length prefix
	PayloadStart int    // offset of the NAL header byte
	PayloadLen   int    // header byte plus payload, excluding trailing zeros
	Data         []byte // buf[PayloadStart : PayloadStart+PayloadLen]
}

// Len returns the length of the whole unit including its start code or
// length prefix.
func (u Unit) Len() int {
	return u.PayloadStart + u.PayloadLen - u.Start
}

// IsReference reports whether nal_ref_idc is non-zero.
func (u Unit) IsReference() bool {
	return u.RefIDC != 0
}

// Segmenter walks a buffer one NAL unit at a time. It keeps no state across
// SetBuffer calls.
type Segmenter struct {
	buf        []byte
	prefixLen  int
	pos        int // Annex B scan position
	nextMarker int // offset of the next length prefix
}

// NewSegmenter returns a Segmenter over buf. prefixLen 0 (AnnexB) selects
// start-code scanning; 1 to 4 selects a big-endian length prefix of that
// many bytes. Larger values are clamped to 4.
func NewSegmenter(buf []byte, prefixLen int) *Segmenter {
	s := &Segmenter{}
	s.SetBuffer(buf, prefixLen)
	return s
}

// SetBuffer replaces the buffer and rewinds to offset zero.
func (s *Segmenter) SetBuffer(buf []byte, prefixLen int) {
	if prefixLen < 0 {
		prefixLen = AnnexB
	}
	if prefixLen > MaxPrefixLen {
		prefixLen = MaxPrefixLen
	}
	s.buf = buf
	s.prefixLen = prefixLen
	s.pos = 0
	s.nextMarker = 0
}

// Next returns the next unit, or false once the buffer is exhausted.
// Empty units are skipped.
func (s *Segmenter) Next() (Unit, bool) {
	if s.prefixLen == AnnexB {
		return s.nextAnnexB()
	}
	return s.nextPrefixed()
}

func (s *Segmenter) nextAnnexB() (Unit, bool) {
	buf := s.buf
	if len(buf) < 4 {
		return Unit{}, false
	}
	for {
		start := findStartCode(buf, s.pos)
		if start < 0 {
			s.pos = len(buf)
			return Unit{}, false
		}
		payload := start + 3
		if payload >= len(buf) {
			s.pos = len(buf)
			return Unit{}, false
		}

		end := len(buf)
		if next := findStartCode(buf, payload); next >= 0 {
			end = next
			s.pos = next
			// Zeros before the next start code are stream padding, which
			// also covers the extra byte of a four-byte start code.
			for end > payload && buf[end-1] == 0 {
				end--
			}
		} else {
			s.pos = len(buf)
		}

		if end <= payload {
			continue
		}
		return newUnit(buf, start, payload, end), true
	}
}

func (s *Segmenter) nextPrefixed() (Unit, bool) {
	buf := s.buf
	for {
		pos := s.nextMarker
		if pos < 0 || pos+s.prefixLen > len(buf) {
			return Unit{}, false
		}
		size := 0
		for i := 0; i < s.prefixLen; i++ {
			size = size<<8 | int(buf[pos+i])
		}
		payload := pos + s.prefixLen
		end := payload + size
		s.nextMarker = end
		if end > len(buf) {
			end = len(buf)
		}
		if end <= payload {
			continue
		}
		return newUnit(buf, pos, payload, end), true
	}
}

func newUnit(buf []byte, start, payload, end int) Unit {
	return Unit{
		Header:       ParseHeader(buf[payload]),
		Start:        start,
		PayloadStart: payload,
		PayloadLen:   end - payload,
		Data:         buf[payload:end],
	}
}

// findStartCode returns the offset of the next 00 00 01 at or after from,
// or -1.
func findStartCode(buf []byte, from int) int {
	for i := from; i+2 < len(buf); i++ {
		if buf[i+2] > 1 {
			i += 2
			continue
		}
		if buf[i] == 0 && buf[i+1] == 0 && buf[i+2] == 1 {
			return i
		}
	}
	return -1
}

// Split segments buf and returns every unit in order.
func Split(buf []byte, prefixLen int) []Unit {
	var units []Unit
	s := NewSegmenter(buf, prefixLen)
	for {
		u, ok := s.Next()
		if !ok {
			return units
		}
		units = append(units, u)
	}
}
