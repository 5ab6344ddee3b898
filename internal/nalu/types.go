package nalu

import "fmt"

// Type is the 5-bit nal_unit_type of an H.264 NAL header.
type Type uint8

// H.264 NAL unit type constants as defined in ITU-T H.264 Table 7-1.
const (
	TypeUnspecified   Type = 0
	TypeSlice         Type = 1
	TypeSliceDPA      Type = 2
	TypeSliceDPB      Type = 3
	TypeSliceDPC      Type = 4
	TypeIDR           Type = 5
	TypeSEI           Type = 6
	TypeSPS           Type = 7
	TypePPS           Type = 8
	TypeAUD           Type = 9
	TypeEndOfSequence Type = 10
	TypeEndOfStream   Type = 11
	TypeFiller        Type = 12
	TypeSPSExt        Type = 13
	TypePrefix        Type = 14
	TypeSubsetSPS     Type = 15
	TypeAuxSlice      Type = 19
	TypeSliceExt      Type = 20
)

var typeNames = map[Type]string{
	TypeUnspecified:   "unspecified",
	TypeSlice:         "slice",
	TypeSliceDPA:      "slice-dpa",
	TypeSliceDPB:      "slice-dpb",
	TypeSliceDPC:      "slice-dpc",
	TypeIDR:           "idr",
	TypeSEI:           "sei",
	TypeSPS:           "sps",
	TypePPS:           "pps",
	TypeAUD:           "aud",
	TypeEndOfSequence: "end-of-seq",
	TypeEndOfStream:   "end-of-stream",
	TypeFiller:        "filler",
	TypeSPSExt:        "sps-ext",
	TypePrefix:        "prefix",
	TypeSubsetSPS:     "subset-sps",
	TypeAuxSlice:      "aux-slice",
	TypeSliceExt:      "slice-ext",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("nal(%d)", uint8(t))
}

// IsVCL reports whether the type carries coded slice data.
func (t Type) IsVCL() bool {
	return t >= TypeSlice && t <= TypeIDR
}

// StartsSliceHeader reports whether a unit of this type begins with a
// slice_header: regular slices, IDR slices, and data partition A.
func (t Type) StartsSliceHeader() bool {
	return t == TypeSlice || t == TypeIDR || t == TypeSliceDPA
}

// Header is a decoded one-byte NAL header.
type Header struct {
	Forbidden bool
	RefIDC    uint8
	Type      Type
}

// ParseHeader splits a NAL header byte into its three fields.
func ParseHeader(b byte) Header {
	return Header{
		Forbidden: b&0x80 != 0,
		RefIDC:    (b >> 5) & 0x03,
		Type:      Type(b & 0x1F),
	}
}
