package h264

import (
	"errors"

	"github.com/zsiec/vdec/internal/bitstream"
	"github.com/zsiec/vdec/internal/nalu"
)

// ErrIncomplete is returned when a header ends before its required fields.
var ErrIncomplete = errors.New("h264: header truncated")

// reader wraps a Cursor and remembers whether any read ran past the data.
type reader struct {
	c     *bitstream.Cursor
	short bool
}

// newRBSPReader unescapes a NAL unit (header byte included) and positions
// the reader after the one-byte NAL header.
func newRBSPReader(nal []byte) *reader {
	rbsp := nalu.Unescape(nal)
	c := bitstream.NewCursor(rbsp)
	c.Seek(1)
	return &reader{c: c}
}

func (r *reader) bits(n int) uint32 {
	if n == 0 {
		return 0
	}
	if r.c.RemainingBits() < n {
		r.short = true
		return 0
	}
	return r.c.ReadBits(n)
}

func (r *reader) flag() bool {
	return r.bits(1) == 1
}

func (r *reader) ue() uint32 {
	if r.c.RemainingBits() == 0 {
		r.short = true
		return 0
	}
	return r.c.ReadUE()
}

func (r *reader) se() int32 {
	if r.c.RemainingBits() == 0 {
		r.short = true
		return 0
	}
	return r.c.ReadSE()
}

func (r *reader) err() error {
	if r.short {
		return ErrIncomplete
	}
	return nil
}
