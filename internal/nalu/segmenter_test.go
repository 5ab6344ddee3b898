package nalu

import (
	"bytes"
	"testing"
)

func TestSegmentAnnexBThreeUnits(t *testing.T) {
	t.Parallel()
	data := []byte{
		0x00, 0x00, 0x01, 0x67, 0x42, 0xE0,
		0x00, 0x00, 0x01, 0x68, 0xCE,
		0x00, 0x00, 0x01, 0x65, 0x88,
	}

	units := Split(data, AnnexB)
	if len(units) != 3 {
		t.Fatalf("expected 3 units, got %d", len(units))
	}

	want := []struct {
		typ          Type
		start        int
		payloadStart int
		payloadLen   int
	}{
		{TypeSPS, 0, 3, 3},
		{TypePPS, 6, 9, 2},
		{TypeIDR, 11, 14, 2},
	}
	for i, w := range want {
		u := units[i]
		if u.Type != w.typ {
			t.Errorf("unit %d: type got %v, want %v", i, u.Type, w.typ)
		}
		if u.Start != w.start || u.PayloadStart != w.payloadStart || u.PayloadLen != w.payloadLen {
			t.Errorf("unit %d: bounds got (%d,%d,%d), want (%d,%d,%d)", i,
				u.Start, u.PayloadStart, u.PayloadLen, w.start, w.payloadStart, w.payloadLen)
		}
		if !bytes.Equal(u.Data, data[w.payloadStart:w.payloadStart+w.payloadLen]) {
			t.Errorf("unit %d: data does not alias the payload range", i)
		}
		if u.Len() != w.payloadStart-w.start+w.payloadLen {
			t.Errorf("unit %d: Len got %d", i, u.Len())
		}
	}
}

func TestSegmentAnnexBFourByteStartCode(t *testing.T) {
	t.Parallel()
	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0xE0, 0x1E,
		0x00, 0x00, 0x00, 0x01, 0x68, 0xCE, 0x38, 0x80,
		0x00, 0x00, 0x00, 0x01, 0x65, 0x88, 0x84, 0x00, 0xFF, 0xFE,
	}

	units := Split(data, AnnexB)
	if len(units) != 3 {
		t.Fatalf("expected 3 units, got %d", len(units))
	}
	if units[0].Start != 1 || units[0].PayloadLen != 4 {
		t.Errorf("SPS: start %d len %d, want 1 and 4", units[0].Start, units[0].PayloadLen)
	}
	if units[1].PayloadLen != 4 {
		t.Errorf("PPS: leading zero of next start code leaked into payload, len %d", units[1].PayloadLen)
	}
	if units[2].Type != TypeIDR || units[2].PayloadLen != 6 {
		t.Errorf("IDR: type %v len %d, want idr and 6", units[2].Type, units[2].PayloadLen)
	}
}

func TestSegmentAnnexBShortAndEmpty(t *testing.T) {
	t.Parallel()
	for _, data := range [][]byte{nil, {0x00, 0x01}, {0x00, 0x00, 0x01}} {
		if units := Split(data, AnnexB); len(units) != 0 {
			t.Errorf("%x: expected no units, got %d", data, len(units))
		}
	}

	// Back-to-back start codes produce no empty unit.
	data := []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x01, 0x09, 0xF0}
	units := Split(data, AnnexB)
	if len(units) != 1 || units[0].Type != TypeAUD {
		t.Fatalf("expected a single AUD, got %d units", len(units))
	}
}

func TestSegmentLengthPrefixed(t *testing.T) {
	t.Parallel()

	sps := []byte{0x67, 0x42, 0x00, 0x1E}
	idr := []byte{0x65, 0x88, 0x80}
	for _, width := range []int{1, 2, 3, 4} {
		var buf []byte
		buf = AppendPrefixed(buf, sps, width)
		buf = AppendPrefixed(buf, idr, width)

		units := Split(buf, width)
		if len(units) != 2 {
			t.Fatalf("width %d: expected 2 units, got %d", width, len(units))
		}
		if units[0].Type != TypeSPS || !bytes.Equal(units[0].Data, sps) {
			t.Errorf("width %d: first unit %v %x", width, units[0].Type, units[0].Data)
		}
		if units[1].Start != width+len(sps) || units[1].PayloadStart != 2*width+len(sps) {
			t.Errorf("width %d: second unit offsets (%d,%d)", width, units[1].Start, units[1].PayloadStart)
		}
		if units[1].Len() != width+len(idr) {
			t.Errorf("width %d: second unit Len got %d, want %d", width, units[1].Len(), width+len(idr))
		}
	}
}

func TestSegmentLengthPrefixedTruncatedTail(t *testing.T) {
	t.Parallel()

	buf := AppendPrefixed(nil, []byte{0x06, 0x05, 0x01}, 4)
	buf = append(buf, 0x00, 0x00, 0x00, 0x10, 0x41, 0x9A)

	units := Split(buf, 4)
	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	last := units[1]
	if last.Type != TypeSlice || last.PayloadLen != 2 {
		t.Errorf("clipped unit: type %v len %d, want slice and 2", last.Type, last.PayloadLen)
	}
}

func TestSetBufferRestarts(t *testing.T) {
	t.Parallel()

	data := []byte{0x00, 0x00, 0x01, 0x09, 0xF0, 0x00, 0x00, 0x01, 0x41, 0x9A}
	s := NewSegmenter(data, AnnexB)
	first, _ := s.Next()
	s.Next()
	if _, ok := s.Next(); ok {
		t.Fatal("expected exhaustion after two units")
	}

	s.SetBuffer(data, AnnexB)
	again, ok := s.Next()
	if !ok || again.Start != first.Start || again.Type != first.Type {
		t.Errorf("restart: got %+v, want %+v", again.Header, first.Header)
	}
}

func TestUnitRangesIncrease(t *testing.T) {
	t.Parallel()

	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x09, 0x10,
		0x00, 0x00, 0x01, 0x06, 0x06, 0x01, 0xC4, 0x80,
		0x00, 0x00, 0x01, 0x65, 0xB8, 0x00, 0x00,
		0x00, 0x00, 0x01, 0x01, 0x9A,
	}
	units := Split(data, AnnexB)
	for i := 1; i < len(units); i++ {
		prevEnd := units[i-1].PayloadStart + units[i-1].PayloadLen
		if units[i].Start < prevEnd {
			t.Errorf("unit %d starts at %d inside previous unit ending at %d", i, units[i].Start, prevEnd)
		}
	}
}

func TestParseHeader(t *testing.T) {
	t.Parallel()

	h := ParseHeader(0x65)
	if h.Forbidden || h.RefIDC != 3 || h.Type != TypeIDR {
		t.Errorf("0x65: got %+v", h)
	}
	h = ParseHeader(0x81)
	if !h.Forbidden || h.RefIDC != 0 || h.Type != TypeSlice {
		t.Errorf("0x81: got %+v", h)
	}
}

func TestUnescape(t *testing.T) {
	t.Parallel()

	in := []byte{0x25, 0x00, 0x00, 0x03, 0x01, 0x00, 0x00, 0x03}
	want := []byte{0x25, 0x00, 0x00, 0x01, 0x00, 0x00}
	if got := Unescape(in); !bytes.Equal(got, want) {
		t.Errorf("got %x, want %x", got, want)
	}
}

func TestEscapeRoundTrip(t *testing.T) {
	t.Parallel()

	rbsp := []byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x02, 0x7F}
	escaped := Escape(rbsp)
	for i := 0; i+2 < len(escaped); i++ {
		if escaped[i] == 0 && escaped[i+1] == 0 && escaped[i+2] <= 2 {
			t.Fatalf("start code emulation at %d in %x", i, escaped)
		}
	}
	if got := Unescape(escaped); !bytes.Equal(got, rbsp) {
		t.Errorf("round trip: got %x, want %x", got, rbsp)
	}
}
