package h264

import "fmt"

// SPS holds the Sequence Parameter Set fields used for frame numbering,
// picture order counting and output sizing.
type SPS struct {
	ProfileIDC      uint8
	ConstraintFlags uint8
	LevelIDC        uint8
	ID              uint32

	ChromaFormatIDC     uint32
	SeparateColourPlane bool

	Log2MaxFrameNum uint32
	POCType         uint32

	// POC type 0
	Log2MaxPOCLsb uint32

	// POC type 1
	DeltaPicOrderAlwaysZero   bool
	OffsetForNonRefPic        int32
	OffsetForTopToBottomField int32
	OffsetForRefFrame         []int32

	MaxNumRefFrames uint32
	FrameMBsOnly    bool

	Width  int
	Height int

	// From VUI bitstream_restriction; -1 when absent.
	MaxNumReorderFrames int
}

// MaxFrameNum returns MaxFrameNum = 2^(log2_max_frame_num_minus4 + 4).
func (s *SPS) MaxFrameNum() int {
	return 1 << s.Log2MaxFrameNum
}

// MaxPOCLsb returns MaxPicOrderCntLsb for POC type 0.
func (s *SPS) MaxPOCLsb() int {
	return 1 << s.Log2MaxPOCLsb
}

// CodecString returns the RFC 6381 codec parameter string (e.g. "avc1.42E01E").
func (s *SPS) CodecString() string {
	return fmt.Sprintf("avc1.%02X%02X%02X", s.ProfileIDC, s.ConstraintFlags, s.LevelIDC)
}

func hasChromaInfo(profile uint32) bool {
	switch profile {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		return true
	}
	return false
}

// ParseSPS parses an SPS NAL unit including its header byte, without start
// code or length prefix.
func ParseSPS(nal []byte) (*SPS, error) {
	if len(nal) < 4 {
		return nil, ErrIncomplete
	}
	r := newRBSPReader(nal)

	s := &SPS{
		ChromaFormatIDC:     1,
		MaxNumReorderFrames: -1,
	}
	profile := r.bits(8)
	s.ProfileIDC = uint8(profile)
	s.ConstraintFlags = uint8(r.bits(8))
	s.LevelIDC = uint8(r.bits(8))
	s.ID = r.ue()

	if hasChromaInfo(profile) {
		s.ChromaFormatIDC = r.ue()
		if s.ChromaFormatIDC == 3 {
			s.SeparateColourPlane = r.flag()
		}
		r.ue() // bit_depth_luma_minus8
		r.ue() // bit_depth_chroma_minus8
		r.flag()
		if r.flag() { // seq_scaling_matrix_present_flag
			lists := 8
			if s.ChromaFormatIDC == 3 {
				lists = 12
			}
			for i := 0; i < lists; i++ {
				if r.flag() {
					size := 16
					if i >= 6 {
						size = 64
					}
					r.skipScalingList(size)
				}
			}
		}
	}

	s.Log2MaxFrameNum = r.ue() + 4
	s.POCType = r.ue()
	switch s.POCType {
	case 0:
		s.Log2MaxPOCLsb = r.ue() + 4
	case 1:
		s.DeltaPicOrderAlwaysZero = r.flag()
		s.OffsetForNonRefPic = r.se()
		s.OffsetForTopToBottomField = r.se()
		n := r.ue()
		if n > 255 {
			return nil, fmt.Errorf("h264: num_ref_frames_in_pic_order_cnt_cycle %d out of range", n)
		}
		s.OffsetForRefFrame = make([]int32, n)
		for i := range s.OffsetForRefFrame {
			s.OffsetForRefFrame[i] = r.se()
		}
	}
	if s.Log2MaxFrameNum > 16 || s.Log2MaxPOCLsb > 16 {
		return nil, fmt.Errorf("h264: sps %d has out-of-range log2 fields", s.ID)
	}

	s.MaxNumRefFrames = r.ue()
	r.flag() // gaps_in_frame_num_value_allowed_flag

	widthMbs := r.ue() + 1
	heightMapUnits := r.ue() + 1
	s.FrameMBsOnly = r.flag()
	if !s.FrameMBsOnly {
		r.flag() // mb_adaptive_frame_field_flag
	}
	r.flag() // direct_8x8_inference_flag

	var cropLeft, cropRight, cropTop, cropBottom uint32
	if r.flag() {
		cropLeft, cropRight = r.ue(), r.ue()
		cropTop, cropBottom = r.ue(), r.ue()
	}
	if err := r.err(); err != nil {
		return nil, err
	}

	chromaArrayType := s.ChromaFormatIDC
	if s.SeparateColourPlane {
		chromaArrayType = 0
	}
	subWidthC, subHeightC := uint32(2), uint32(2)
	switch chromaArrayType {
	case 0, 3:
		subWidthC, subHeightC = 1, 1
	case 2:
		subWidthC, subHeightC = 2, 1
	}
	frameHeightMul := uint32(2)
	if s.FrameMBsOnly {
		frameHeightMul = 1
	}
	s.Width = int(widthMbs*16 - subWidthC*(cropLeft+cropRight))
	s.Height = int(heightMapUnits*16*frameHeightMul - subHeightC*frameHeightMul*(cropTop+cropBottom))

	if r.flag() { // vui_parameters_present_flag
		r.skipVUI(s)
	}
	return s, nil
}

func (r *reader) skipScalingList(size int) {
	last, next := int32(8), int32(8)
	for j := 0; j < size && !r.short; j++ {
		if next != 0 {
			next = (last + r.se() + 256) % 256
		}
		if next != 0 {
			last = next
		}
	}
}

// skipVUI walks the VUI far enough to reach bitstream_restriction. A short
// VUI is tolerated: the fields it carries are optional.
func (r *reader) skipVUI(s *SPS) {
	if r.flag() { // aspect_ratio_info_present_flag
		if r.bits(8) == 255 {
			r.bits(16)
			r.bits(16)
		}
	}
	if r.flag() { // overscan_info_present_flag
		r.flag()
	}
	if r.flag() { // video_signal_type_present_flag
		r.bits(4)
		if r.flag() {
			r.bits(24)
		}
	}
	if r.flag() { // chroma_loc_info_present_flag
		r.ue()
		r.ue()
	}
	if r.flag() { // timing_info_present_flag
		r.bits(32)
		r.bits(32)
		r.flag()
	}
	nalHRD := r.flag()
	if nalHRD {
		r.skipHRD()
	}
	vclHRD := r.flag()
	if vclHRD {
		r.skipHRD()
	}
	if nalHRD || vclHRD {
		r.flag() // low_delay_hrd_flag
	}
	r.flag() // pic_struct_present_flag
	if r.flag() { // bitstream_restriction_flag
		r.flag()
		r.ue()
		r.ue()
		r.ue()
		r.ue()
		reorder := r.ue()
		r.ue() // max_dec_frame_buffering
		if !r.short {
			s.MaxNumReorderFrames = int(reorder)
		}
	}
	r.short = false
}

func (r *reader) skipHRD() {
	cpbCnt := r.ue()
	r.bits(8) // bit_rate_scale + cpb_size_scale
	for i := uint32(0); i <= cpbCnt && !r.short; i++ {
		r.ue()
		r.ue()
		r.flag()
	}
	r.bits(20) // four 5-bit length fields
}
