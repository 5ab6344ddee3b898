// Package media defines the types that flow through the decode pipeline:
// coded access units on the way in and decoded frames on the way out.
package media

import "strings"

// Channel buffer sizes between pipeline stages. AccessUnitBufferSize
// decouples a network or file source from the decode worker; roughly one
// second of 30 fps video.
const (
	AccessUnitBufferSize = 30
	FrameBufferSize      = 16
)

// CodecID identifies the compression format of an elementary stream.
type CodecID uint8

// Supported codecs.
const (
	CodecUnknown CodecID = iota
	CodecH264
	CodecH265
	CodecMPEG2
	CodecVC1
	CodecAV1
)

var codecNames = [...]string{
	CodecUnknown: "unknown",
	CodecH264:    "h264",
	CodecH265:    "h265",
	CodecMPEG2:   "mpeg2",
	CodecVC1:     "vc1",
	CodecAV1:     "av1",
}

func (c CodecID) String() string {
	if int(c) < len(codecNames) {
		return codecNames[c]
	}
	return "unknown"
}

// ParseCodec maps a codec name ("h264", "avc", "hevc", ...) to a CodecID.
func ParseCodec(s string) CodecID {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "h264", "avc", "avc1":
		return CodecH264
	case "h265", "hevc", "hvc1", "hev1":
		return CodecH265
	case "mpeg2", "mpeg2video":
		return CodecMPEG2
	case "vc1", "wvc1":
		return CodecVC1
	case "av1", "av01":
		return CodecAV1
	}
	return CodecUnknown
}

// AccessUnit is one coded picture as submitted for decoding. Data holds NAL
// units either behind Annex B start codes (PrefixLen 0) or behind big-endian
// length prefixes of PrefixLen bytes. The submitter must not modify Data
// after submission.
type AccessUnit struct {
	Data      []byte
	PrefixLen int

	// PTS and DTS are in 90 kHz units and only meaningful when HasPTS is set.
	PTS    int64
	DTS    int64
	HasPTS bool

	// Sync marks a random access point (IDR or recovery point).
	Sync bool
	// Discontinuity marks the first unit after a seek or a gap in the
	// source; the decoder is flushed before it is submitted.
	Discontinuity bool
}

// StreamParams are the negotiated stream parameters a decoder family is
// created with. They are reused unchanged when the worker falls back to
// another family.
type StreamParams struct {
	Width     int
	Height    int
	PrefixLen int

	// ExtraData carries out-of-band parameter sets as Annex B NAL units.
	ExtraData []byte

	// MaxFrameNum is the frame_num modulus of the active SPS, or 0 when
	// unknown.
	MaxFrameNum int

	ReorderDepth int
	Threads      int
}

// Frame is one decoded picture in output order.
type Frame struct {
	// FrameNum and POC describe the picture itself.
	FrameNum int
	POC      int

	// DecodeFrameNum and DecodePOC describe the picture decoded by the call
	// that produced this output, which differs from the output picture when
	// the decoder reorders.
	DecodeFrameNum int
	DecodePOC      int

	PTS      int64
	HasPTS   bool
	Keyframe bool
	Width    int
	Height   int

	// Family names the decoder family that produced the frame.
	Family string

	// Seq numbers delivered frames from zero in delivery order.
	Seq int64
}
