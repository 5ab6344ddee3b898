package source

import (
	"context"
	"errors"

	"github.com/zsiec/vdec/internal/h264"
	"github.com/zsiec/vdec/internal/media"
	"github.com/zsiec/vdec/internal/nalu"
)

var (
	// ErrNoVideoTrack is returned when a container has no usable video.
	ErrNoVideoTrack = errors.New("source: no video track")
	// ErrUnsupportedCodec is returned for video the reader cannot unpack.
	ErrUnsupportedCodec = errors.New("source: unsupported codec")
)

// Source yields access units in decode order. Next returns io.EOF after the
// last unit.
type Source interface {
	Next(ctx context.Context) (*media.AccessUnit, error)
}

// Describer is implemented by sources that know the codec, and possibly
// stream parameters, without inspecting unit payloads. Values are only
// guaranteed after the first successful Next.
type Describer interface {
	Describe() (media.CodecID, media.StreamParams)
}

// Describe returns the codec and stream parameters for a stream whose first
// unit is au. Fields the source did not provide are taken from the first
// sequence parameter set carried in au.
func Describe(src Source, au *media.AccessUnit) (media.CodecID, media.StreamParams) {
	codec := media.CodecH264
	var params media.StreamParams
	if d, ok := src.(Describer); ok {
		codec, params = d.Describe()
	}
	params.PrefixLen = au.PrefixLen
	if codec == media.CodecH264 {
		FillParams(&params, au)
	}
	return codec, params
}

// FillParams completes params from the H.264 parameter sets in au. Only
// zero-valued fields are written.
func FillParams(params *media.StreamParams, au *media.AccessUnit) {
	seg := nalu.NewSegmenter(au.Data, au.PrefixLen)
	var extra []byte
	for {
		u, ok := seg.Next()
		if !ok {
			break
		}
		switch u.Type {
		case nalu.TypeSPS:
			sps, err := h264.ParseSPS(u.Data)
			if err != nil {
				continue
			}
			if params.Width == 0 && params.Height == 0 {
				params.Width, params.Height = sps.Width, sps.Height
			}
			if params.MaxFrameNum == 0 {
				params.MaxFrameNum = sps.MaxFrameNum()
			}
			if params.ReorderDepth == 0 && sps.MaxNumReorderFrames >= 0 {
				params.ReorderDepth = sps.MaxNumReorderFrames
			}
			extra = nalu.AppendAnnexB(extra, u.Data)
		case nalu.TypePPS:
			extra = nalu.AppendAnnexB(extra, u.Data)
		}
	}
	if len(params.ExtraData) == 0 {
		params.ExtraData = extra
	}
}

// containsIDR reports whether data holds an IDR slice.
func containsIDR(data []byte, prefixLen int) bool {
	seg := nalu.NewSegmenter(data, prefixLen)
	for {
		u, ok := seg.Next()
		if !ok {
			return false
		}
		if u.Type == nalu.TypeIDR {
			return true
		}
	}
}

// containsIRAP reports whether an H.265 Annex B payload holds an intra
// random access point picture (nal_unit_type 16 to 21).
func containsIRAP(data []byte) bool {
	seg := nalu.NewSegmenter(data, nalu.AnnexB)
	for {
		u, ok := seg.Next()
		if !ok {
			return false
		}
		if t := (u.Data[0] >> 1) & 0x3F; t >= 16 && t <= 21 {
			return true
		}
	}
}
