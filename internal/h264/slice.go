package h264

import (
	"errors"
	"fmt"

	"github.com/zsiec/vdec/internal/nalu"
)

// SliceType is the slice_type syntax element. Values 5-9 mean every slice
// of the picture has the same type as value-5.
type SliceType uint32

// Slice types as defined in ITU-T H.264 Table 7-6.
const (
	SliceP  SliceType = 0
	SliceB  SliceType = 1
	SliceI  SliceType = 2
	SliceSP SliceType = 3
	SliceSI SliceType = 4
)

// Base folds the "all slices" variants 5-9 onto 0-4.
func (t SliceType) Base() SliceType {
	return t % 5
}

// IsIntra reports whether the slice is an I or SI slice.
func (t SliceType) IsIntra() bool {
	b := t.Base()
	return b == SliceI || b == SliceSI
}

func (t SliceType) String() string {
	switch t.Base() {
	case SliceP:
		return "P"
	case SliceB:
		return "B"
	case SliceI:
		return "I"
	case SliceSP:
		return "SP"
	default:
		return "SI"
	}
}

// PeekSliceType reads first_mb_in_slice and slice_type from a slice or data
// partition A NAL unit without needing parameter sets.
func PeekSliceType(nal []byte) (firstMB uint32, st SliceType, err error) {
	if len(nal) < 2 {
		return 0, 0, ErrIncomplete
	}
	r := newRBSPReader(nal)
	firstMB = r.ue()
	raw := r.ue()
	if err := r.err(); err != nil {
		return 0, 0, err
	}
	if raw > 9 {
		return 0, 0, fmt.Errorf("h264: slice_type %d out of range", raw)
	}
	return firstMB, SliceType(raw), nil
}

// SliceHeader holds the slice header fields preceding ref_pic_list syntax
// that determine frame numbering and picture order count.
type SliceHeader struct {
	NALType        nalu.Type
	RefIDC         uint8
	FirstMB        uint32
	Type           SliceType
	PPSID          uint32
	FrameNum       uint32
	FieldPic       bool
	Bottom         bool
	IDRPicID       uint32
	POCLsb         uint32
	DeltaPOCBottom int32
	DeltaPOC       [2]int32
}

// IsIDR reports whether the slice belongs to an IDR picture.
func (h *SliceHeader) IsIDR() bool {
	return h.NALType == nalu.TypeIDR
}

// ParamSets resolves parameter set IDs to parsed sets.
type ParamSets interface {
	PPS(id uint32) *PPS
	SPS(id uint32) *SPS
}

// ErrMissingParamSet is wrapped when a slice references an unseen PPS or SPS.
var ErrMissingParamSet = errors.New("h264: missing parameter set")

// ParseSliceHeader parses a slice NAL unit header. The PPS and SPS it
// references are looked up in ps and returned alongside the header.
func ParseSliceHeader(nal []byte, ps ParamSets) (*SliceHeader, *SPS, error) {
	if len(nal) < 2 {
		return nil, nil, ErrIncomplete
	}
	hdr := nalu.ParseHeader(nal[0])
	r := newRBSPReader(nal)

	h := &SliceHeader{
		NALType: hdr.Type,
		RefIDC:  hdr.RefIDC,
	}
	h.FirstMB = r.ue()
	raw := r.ue()
	if raw > 9 {
		return nil, nil, fmt.Errorf("h264: slice_type %d out of range", raw)
	}
	h.Type = SliceType(raw)
	h.PPSID = r.ue()
	if err := r.err(); err != nil {
		return nil, nil, err
	}

	pps := ps.PPS(h.PPSID)
	if pps == nil {
		return nil, nil, fmt.Errorf("%w: pps %d", ErrMissingParamSet, h.PPSID)
	}
	sps := ps.SPS(pps.SPSID)
	if sps == nil {
		return nil, nil, fmt.Errorf("%w: sps %d", ErrMissingParamSet, pps.SPSID)
	}

	if sps.SeparateColourPlane {
		r.bits(2) // colour_plane_id
	}
	h.FrameNum = r.bits(int(sps.Log2MaxFrameNum))
	if !sps.FrameMBsOnly {
		h.FieldPic = r.flag()
		if h.FieldPic {
			h.Bottom = r.flag()
		}
	}
	if h.IsIDR() {
		h.IDRPicID = r.ue()
	}
	switch sps.POCType {
	case 0:
		h.POCLsb = r.bits(int(sps.Log2MaxPOCLsb))
		if pps.BottomFieldPicOrderInFramePresent && !h.FieldPic {
			h.DeltaPOCBottom = r.se()
		}
	case 1:
		if !sps.DeltaPicOrderAlwaysZero {
			h.DeltaPOC[0] = r.se()
			if pps.BottomFieldPicOrderInFramePresent && !h.FieldPic {
				h.DeltaPOC[1] = r.se()
			}
		}
	}
	if err := r.err(); err != nil {
		return nil, nil, err
	}
	return h, sps, nil
}
