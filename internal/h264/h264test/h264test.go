// Package h264test builds synthetic H.264 NAL units for tests: parameter
// sets, slice headers, access unit delimiters and recovery point SEI.
package h264test

import (
	"github.com/zsiec/vdec/internal/bitstream"
	"github.com/zsiec/vdec/internal/h264"
	"github.com/zsiec/vdec/internal/nalu"
)

// SPSConfig describes a baseline-profile, progressive SPS.
type SPSConfig struct {
	ID              uint32
	Log2MaxFrameNum uint32 // 4..16
	POCType         uint32 // 0 or 2
	Log2MaxPOCLsb   uint32 // 4..16, POC type 0 only
	WidthMbs        uint32
	HeightMbs       uint32

	// MaxNumReorderFrames is written into VUI bitstream_restriction when
	// non-negative.
	MaxNumReorderFrames int
}

// DefaultSPS returns a 320x240 SPS with 16-frame numbering and POC type 0.
func DefaultSPS() SPSConfig {
	return SPSConfig{
		Log2MaxFrameNum:     4,
		POCType:             0,
		Log2MaxPOCLsb:       8,
		WidthMbs:            20,
		HeightMbs:           15,
		MaxNumReorderFrames: -1,
	}
}

func nal(refIDC uint8, typ nalu.Type, w *bitstream.Writer) []byte {
	out := []byte{refIDC<<5 | byte(typ)}
	return append(out, nalu.Escape(w.Bytes())...)
}

// SPS encodes cfg as an SPS NAL unit.
func SPS(cfg SPSConfig) []byte {
	w := bitstream.NewWriter()
	w.PutBits(8, 66) // profile_idc: baseline
	w.PutBits(8, 0xC0)
	w.PutBits(8, 30)
	w.PutUE(cfg.ID)
	w.PutUE(cfg.Log2MaxFrameNum - 4)
	w.PutUE(cfg.POCType)
	if cfg.POCType == 0 {
		w.PutUE(cfg.Log2MaxPOCLsb - 4)
	}
	w.PutUE(1)      // max_num_ref_frames
	w.PutBit(false) // gaps_in_frame_num_value_allowed_flag
	w.PutUE(cfg.WidthMbs - 1)
	w.PutUE(cfg.HeightMbs - 1)
	w.PutBit(true)  // frame_mbs_only_flag
	w.PutBit(true)  // direct_8x8_inference_flag
	w.PutBit(false) // frame_cropping_flag
	if cfg.MaxNumReorderFrames >= 0 {
		w.PutBit(true) // vui_parameters_present_flag
		for i := 0; i < 5; i++ {
			w.PutBit(false) // aspect, overscan, video signal, chroma loc, timing
		}
		w.PutBit(false) // nal_hrd
		w.PutBit(false) // vcl_hrd
		w.PutBit(false) // pic_struct_present_flag
		w.PutBit(true)  // bitstream_restriction_flag
		w.PutBit(true)
		w.PutUE(0)
		w.PutUE(0)
		w.PutUE(16)
		w.PutUE(16)
		w.PutUE(uint32(cfg.MaxNumReorderFrames))
		w.PutUE(uint32(cfg.MaxNumReorderFrames) + 1)
	} else {
		w.PutBit(false)
	}
	w.PutTrailingBits()
	return nal(3, nalu.TypeSPS, w)
}

// PPS encodes a minimal PPS referencing spsID.
func PPS(id, spsID uint32) []byte {
	w := bitstream.NewWriter()
	w.PutUE(id)
	w.PutUE(spsID)
	w.PutBit(false) // entropy_coding_mode_flag
	w.PutBit(false) // bottom_field_pic_order_in_frame_present_flag
	w.PutUE(0)      // num_slice_groups_minus1
	w.PutUE(0)
	w.PutUE(0)
	w.PutBit(false)
	w.PutBits(2, 0)
	w.PutSE(0)
	w.PutSE(0)
	w.PutSE(0)
	w.PutBit(true)
	w.PutBit(false)
	w.PutBit(false)
	w.PutTrailingBits()
	return nal(3, nalu.TypePPS, w)
}

// SliceConfig describes one slice of a progressive picture.
type SliceConfig struct {
	IDR      bool
	RefIDC   uint8
	Type     h264.SliceType
	FirstMB  uint32
	PPSID    uint32
	FrameNum uint32
	IDRPicID uint32
	POCLsb   uint32
}

// Slice encodes a slice NAL unit whose header matches sps.
func Slice(sps SPSConfig, cfg SliceConfig) []byte {
	w := bitstream.NewWriter()
	w.PutUE(cfg.FirstMB)
	w.PutUE(uint32(cfg.Type))
	w.PutUE(cfg.PPSID)
	w.PutBits(int(sps.Log2MaxFrameNum), cfg.FrameNum)
	if cfg.IDR {
		w.PutUE(cfg.IDRPicID)
	}
	if sps.POCType == 0 {
		w.PutBits(int(sps.Log2MaxPOCLsb), cfg.POCLsb)
	}
	// Stand-in for the rest of the header and slice data.
	w.PutBytes([]byte{0x9A, 0x5C, 0x21})
	w.PutTrailingBits()

	typ := nalu.TypeSlice
	if cfg.IDR {
		typ = nalu.TypeIDR
	}
	return nal(cfg.RefIDC, typ, w)
}

// AUD encodes an access unit delimiter with the given primary_pic_type.
func AUD(primaryPicType uint8) []byte {
	w := bitstream.NewWriter()
	w.PutBits(3, uint32(primaryPicType))
	w.PutTrailingBits()
	return nal(0, nalu.TypeAUD, w)
}

// SEIRecoveryPoint encodes an SEI NAL unit carrying one recovery point
// message.
func SEIRecoveryPoint(frameCount uint32) []byte {
	p := bitstream.NewWriter()
	p.PutUE(frameCount)
	p.PutBit(true)  // exact_match_flag
	p.PutBit(false) // broken_link_flag
	p.PutBits(2, 0) // changing_slice_group_idc
	for p.Len()%8 != 0 {
		p.PutBit(false)
	}
	payload := p.Bytes()

	w := bitstream.NewWriter()
	w.PutBits(8, 6) // payloadType: recovery point
	w.PutBits(8, uint32(len(payload)))
	w.PutBytes(payload)
	w.PutTrailingBits()
	return nal(0, nalu.TypeSEI, w)
}

// SEIUserData encodes an SEI NAL unit with a user_data_unregistered message
// of size bytes, useful as a non-matching SEI.
func SEIUserData(size int) []byte {
	w := bitstream.NewWriter()
	w.PutBits(8, 5)
	for n := size; n >= 255; n -= 255 {
		w.PutBits(8, 255)
	}
	w.PutBits(8, uint32(size%255))
	for i := 0; i < size; i++ {
		w.PutBits(8, uint32(0x40+i%16))
	}
	w.PutTrailingBits()
	return nal(0, nalu.TypeSEI, w)
}

// AnnexB joins NAL units behind four-byte start codes.
func AnnexB(nals ...[]byte) []byte {
	var out []byte
	for _, n := range nals {
		out = nalu.AppendAnnexB(out, n)
	}
	return out
}

// Prefixed joins NAL units behind length prefixes of width bytes.
func Prefixed(width int, nals ...[]byte) []byte {
	var out []byte
	for _, n := range nals {
		out = nalu.AppendPrefixed(out, n, width)
	}
	return out
}
