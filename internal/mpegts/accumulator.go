package mpegts

// pidState reassembles the units of one PID and tracks its continuity
// counter.
type pidState struct {
	pid uint16
	psi bool

	cc      int // last continuity counter, -1 before the first payload
	buf     []byte
	started bool // buf holds the beginning of a unit
	disc    bool // the unit in buf follows a continuity break
	lost    bool // a break has not been reported on a unit start yet
}

func newPIDState(pid uint16, psi bool) *pidState {
	return &pidState{pid: pid, psi: psi, cc: -1}
}

// pending is a complete unit payload ready for parsing.
type pending struct {
	pid     uint16
	psi     bool
	disc    bool
	payload []byte
}

// add feeds one packet and returns the unit it completed, if any.
func (s *pidState) add(p *Packet) *pending {
	if p.Error {
		s.reset()
		s.lost = true
		return nil
	}
	if p.Discontinuity {
		s.lost = true
	} else if p.HasPayload && s.cc >= 0 {
		switch uint8(s.cc) {
		case p.CC:
			// Duplicate packet.
			return nil
		case (p.CC - 1) & 0x0F:
		default:
			s.reset()
			s.lost = true
		}
	}
	if !p.HasPayload {
		return nil
	}
	s.cc = int(p.CC)

	var done *pending
	if p.Start {
		done = s.take()
		s.started = true
		s.disc = s.lost
		s.lost = false
	} else if !s.started {
		// Tail of a unit whose start was never seen.
		return nil
	}
	s.buf = append(s.buf, p.Payload...)

	if done == nil && s.psi && sectionComplete(s.buf) {
		done = s.take()
	}
	return done
}

// take returns the buffered unit and empties the buffer.
func (s *pidState) take() *pending {
	if !s.started || len(s.buf) == 0 {
		s.reset()
		return nil
	}
	u := &pending{pid: s.pid, psi: s.psi, disc: s.disc, payload: s.buf}
	s.buf = nil
	s.started = false
	s.disc = false
	return u
}

func (s *pidState) reset() {
	s.buf = nil
	s.started = false
	s.disc = false
}
