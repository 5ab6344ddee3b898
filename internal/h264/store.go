package h264

import "github.com/zsiec/vdec/internal/nalu"

// ParamSetStore keeps the most recent SPS and PPS for each ID.
type ParamSetStore struct {
	sps map[uint32]*SPS
	pps map[uint32]*PPS
}

// NewParamSetStore returns an empty store.
func NewParamSetStore() *ParamSetStore {
	return &ParamSetStore{
		sps: make(map[uint32]*SPS),
		pps: make(map[uint32]*PPS),
	}
}

// Add parses nal if it is an SPS or PPS and records it. Other NAL types are
// ignored. The parsed SPS, if any, is returned.
func (s *ParamSetStore) Add(nal []byte) (*SPS, error) {
	if len(nal) == 0 {
		return nil, nil
	}
	switch nalu.ParseHeader(nal[0]).Type {
	case nalu.TypeSPS:
		sps, err := ParseSPS(nal)
		if err != nil {
			return nil, err
		}
		s.sps[sps.ID] = sps
		return sps, nil
	case nalu.TypePPS:
		pps, err := ParsePPS(nal)
		if err != nil {
			return nil, err
		}
		s.pps[pps.ID] = pps
	}
	return nil, nil
}

// SPS returns the SPS with the given ID or nil.
func (s *ParamSetStore) SPS(id uint32) *SPS {
	return s.sps[id]
}

// PPS returns the PPS with the given ID or nil.
func (s *ParamSetStore) PPS(id uint32) *PPS {
	return s.pps[id]
}

// Reset forgets every parameter set.
func (s *ParamSetStore) Reset() {
	clear(s.sps)
	clear(s.pps)
}
