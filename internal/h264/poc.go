package h264

// POCState carries the decoding-order state needed to derive picture order
// counts (ITU-T H.264 clause 8.2.1). Memory management operation 5 is not
// tracked, so streams using it get the POC of a plain reference picture.
type POCState struct {
	prevPOCMsb         int
	prevPOCLsb         int
	prevFrameNum       int
	prevFrameNumOffset int
}

// Reset clears the state as at the start of a coded video sequence.
func (p *POCState) Reset() {
	*p = POCState{}
}

// Compute returns the picture order count for the slice and advances state.
func (p *POCState) Compute(h *SliceHeader, sps *SPS) int {
	top, bottom := 0, 0
	frameNum := int(h.FrameNum)

	switch sps.POCType {
	case 0:
		if h.IsIDR() {
			p.prevPOCMsb, p.prevPOCLsb = 0, 0
		}
		maxLsb := sps.MaxPOCLsb()
		lsb := int(h.POCLsb)
		msb := p.prevPOCMsb
		switch {
		case lsb < p.prevPOCLsb && p.prevPOCLsb-lsb >= maxLsb/2:
			msb += maxLsb
		case lsb > p.prevPOCLsb && lsb-p.prevPOCLsb > maxLsb/2:
			msb -= maxLsb
		}
		top = msb + lsb
		bottom = top + int(h.DeltaPOCBottom)
		if h.RefIDC != 0 {
			p.prevPOCMsb, p.prevPOCLsb = msb, lsb
		}

	case 1:
		offset := p.frameNumOffset(h, sps)
		n := len(sps.OffsetForRefFrame)
		abs := 0
		if n != 0 {
			abs = offset + frameNum
		}
		if h.RefIDC == 0 && abs > 0 {
			abs--
		}
		expected := 0
		if abs > 0 {
			cycleDelta := 0
			for _, d := range sps.OffsetForRefFrame {
				cycleDelta += int(d)
			}
			cycle := (abs - 1) / n
			inCycle := (abs - 1) % n
			expected = cycle * cycleDelta
			for i := 0; i <= inCycle; i++ {
				expected += int(sps.OffsetForRefFrame[i])
			}
		}
		if h.RefIDC == 0 {
			expected += int(sps.OffsetForNonRefPic)
		}
		top = expected + int(h.DeltaPOC[0])
		bottom = top + int(sps.OffsetForTopToBottomField) + int(h.DeltaPOC[1])
		p.prevFrameNumOffset, p.prevFrameNum = offset, frameNum

	default:
		offset := p.frameNumOffset(h, sps)
		temp := 0
		if !h.IsIDR() {
			temp = 2 * (offset + frameNum)
			if h.RefIDC == 0 {
				temp--
			}
		}
		top, bottom = temp, temp
		p.prevFrameNumOffset, p.prevFrameNum = offset, frameNum
	}

	switch {
	case h.FieldPic && h.Bottom:
		return bottom
	case h.FieldPic:
		return top
	case bottom < top:
		return bottom
	default:
		return top
	}
}

func (p *POCState) frameNumOffset(h *SliceHeader, sps *SPS) int {
	switch {
	case h.IsIDR():
		return 0
	case p.prevFrameNum > int(h.FrameNum):
		return p.prevFrameNumOffset + sps.MaxFrameNum()
	default:
		return p.prevFrameNumOffset
	}
}
