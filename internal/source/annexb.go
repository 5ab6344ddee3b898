package source

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/zsiec/vdec/internal/h264"
	"github.com/zsiec/vdec/internal/media"
	"github.com/zsiec/vdec/internal/nalu"
)

const readChunk = 64 << 10

var startCode = []byte{0, 0, 1}

// AnnexBReader splits an H.264 Annex B byte stream into access units.
// A new unit begins at an access unit delimiter, at a parameter set or SEI
// following a picture, or at a slice with first_mb_in_slice 0 following a
// picture.
type AnnexBReader struct {
	r     io.Reader
	chunk []byte
	buf   []byte
	scan  int
	eof   bool

	au     []byte
	hasPic bool
	sync   bool

	frameDur int64
	count    int64
}

// NewAnnexBReader returns a reader over r. Units carry no timestamps until
// SetFrameRate is called.
func NewAnnexBReader(r io.Reader) *AnnexBReader {
	return &AnnexBReader{r: r, chunk: make([]byte, readChunk)}
}

// SetFrameRate makes the reader stamp units with a synthetic 90 kHz clock
// advancing 90000/fps per unit. Non-positive rates disable stamping.
func (a *AnnexBReader) SetFrameRate(fps float64) {
	if fps <= 0 {
		a.frameDur = 0
		return
	}
	a.frameDur = int64(90000/fps + 0.5)
}

// Describe reports H.264; parameters come from the stream itself.
func (a *AnnexBReader) Describe() (media.CodecID, media.StreamParams) {
	return media.CodecH264, media.StreamParams{}
}

// Next returns the next access unit.
func (a *AnnexBReader) Next(ctx context.Context) (*media.AccessUnit, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		nal, err := a.nextNAL()
		if errors.Is(err, io.EOF) {
			if len(a.au) > 0 {
				return a.emit(), nil
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
		if a.startsUnit(nal) {
			au := a.emit()
			a.add(nal)
			return au, nil
		}
		a.add(nal)
	}
}

func (a *AnnexBReader) startsUnit(nal []byte) bool {
	if !a.hasPic {
		return false
	}
	switch t := nalu.ParseHeader(nal[0]).Type; t {
	case nalu.TypeAUD, nalu.TypeSPS, nalu.TypePPS, nalu.TypeSEI,
		nalu.TypePrefix, nalu.TypeSubsetSPS, 16, 17, 18:
		return true
	case nalu.TypeSlice, nalu.TypeIDR, nalu.TypeSliceDPA:
		firstMB, _, err := h264.PeekSliceType(nal)
		return err == nil && firstMB == 0
	}
	return false
}

func (a *AnnexBReader) add(nal []byte) {
	a.au = nalu.AppendAnnexB(a.au, nal)
	switch nalu.ParseHeader(nal[0]).Type {
	case nalu.TypeIDR:
		a.sync = true
		a.hasPic = true
	case nalu.TypeSlice, nalu.TypeSliceDPA:
		a.hasPic = true
	}
}

func (a *AnnexBReader) emit() *media.AccessUnit {
	au := &media.AccessUnit{
		Data:      a.au,
		PrefixLen: nalu.AnnexB,
		Sync:      a.sync,
	}
	if a.frameDur > 0 {
		au.PTS = a.count * a.frameDur
		au.DTS = au.PTS
		au.HasPTS = true
	}
	a.count++
	a.au, a.hasPic, a.sync = nil, false, false
	return au
}

// nextNAL returns the next complete NAL unit, without start code or
// trailing zero bytes. The returned slice is owned by the caller.
func (a *AnnexBReader) nextNAL() ([]byte, error) {
	for {
		if s := bytes.Index(a.buf, startCode); s >= 0 {
			payload := s + 3
			from := max(payload, a.scan)
			if e := bytes.Index(a.buf[from:], startCode); e >= 0 {
				end := from + e
				nal := trimZeros(a.buf[payload:end])
				a.buf = a.buf[end:]
				a.scan = 0
				if len(nal) == 0 {
					continue
				}
				return bytes.Clone(nal), nil
			}
			if a.eof {
				nal := trimZeros(a.buf[payload:])
				a.buf, a.scan = nil, 0
				if len(nal) == 0 {
					return nil, io.EOF
				}
				return bytes.Clone(nal), nil
			}
			// The tail may hold the first bytes of the next start code.
			a.scan = max(payload, len(a.buf)-2)
		} else {
			if a.eof {
				a.buf = nil
				return nil, io.EOF
			}
			if len(a.buf) > 2 {
				a.buf = a.buf[len(a.buf)-2:]
			}
		}
		if err := a.fill(); err != nil {
			return nil, err
		}
	}
}

func (a *AnnexBReader) fill() error {
	n, err := a.r.Read(a.chunk)
	a.buf = append(a.buf, a.chunk[:n]...)
	if errors.Is(err, io.EOF) {
		a.eof = true
		return nil
	}
	return err
}

func trimZeros(b []byte) []byte {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return b
}
