package h264

// PPS holds the leading Picture Parameter Set fields needed to parse slice
// headers up to the picture order count syntax.
type PPS struct {
	ID                                uint32
	SPSID                             uint32
	EntropyCodingModeFlag             bool
	BottomFieldPicOrderInFramePresent bool
}

// ParsePPS parses a PPS NAL unit including its header byte.
func ParsePPS(nal []byte) (*PPS, error) {
	if len(nal) < 2 {
		return nil, ErrIncomplete
	}
	r := newRBSPReader(nal)
	p := &PPS{
		ID:    r.ue(),
		SPSID: r.ue(),
	}
	p.EntropyCodingModeFlag = r.flag()
	p.BottomFieldPicOrderInFramePresent = r.flag()
	if err := r.err(); err != nil {
		return nil, err
	}
	return p, nil
}
