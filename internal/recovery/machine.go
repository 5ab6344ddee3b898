package recovery

import (
	"log/slog"

	"github.com/zsiec/vdec/internal/h264"
	"github.com/zsiec/vdec/internal/nalu"
)

// State is the recovery progress after a discontinuity.
type State int

// Recovery states, in the order a stream normally passes through them.
const (
	Idle State = iota
	Searching
	Found
	CountingFrames
	WaitingForPOC
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Found:
		return "found"
	case CountingFrames:
		return "counting-frames"
	case WaitingForPOC:
		return "waiting-for-poc"
	default:
		return "unknown"
	}
}

// DefaultMaxFrameNum is used for frame_num wrap-around until an SPS is seen.
const DefaultMaxFrameNum = 1 << 16

// Picture describes one decoder output event. FrameNum and POC belong to the
// picture that was just decoded; OutputPOC belongs to the picture being
// output, which differs when the decoder reorders.
type Picture struct {
	FrameNum  int
	POC       int
	OutputPOC int
}

// Machine is the recovery state machine. It is not safe for concurrent use;
// the decode worker owns it.
type Machine struct {
	log *slog.Logger
	seg nalu.Segmenter

	state       State
	prefixLen   int
	maxFrameNum int
	frameCount  int // recovery_frame_cnt of the marker that was found
	target      int // frame_num at which recovery completes
	poc         int // POC of the recovery picture
	threadDelay int
	deferred    bool // the current decode call falls inside threadDelay
}

// New returns a Machine in the Idle state. If log is nil, slog.Default() is
// used.
func New(log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		log:         log.With("component", "recovery"),
		maxFrameNum: DefaultMaxFrameNum,
	}
}

// SetPrefixLen selects how access units are segmented: nalu.AnnexB or a
// length prefix width.
func (m *Machine) SetPrefixLen(n int) {
	m.prefixLen = n
}

// SetMaxFrameNum sets MaxFrameNum from out-of-band stream parameters. An SPS
// found while scanning overrides it.
func (m *Machine) SetMaxFrameNum(n int) {
	if n > 0 {
		m.maxFrameNum = n
	}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// NotifyFlush restarts the search for a recovery point. threadDelay is the
// number of decode calls whose output still stems from pre-flush state.
func (m *Machine) NotifyFlush(threadDelay int) {
	if threadDelay < 0 {
		threadDelay = 0
	}
	m.setState(Searching)
	m.frameCount = 0
	m.target = 0
	m.poc = 0
	m.threadDelay = threadDelay
	m.deferred = false
}

// Inspect examines an access unit before it is decoded. It must be called
// exactly once per decode call.
func (m *Machine) Inspect(data []byte) {
	m.deferred = m.threadDelay > 0
	if m.deferred {
		m.threadDelay--
	}
	switch m.state {
	case Idle:
		return
	case Searching:
		m.search(data)
	default:
		if m.watch(data) {
			m.setState(Idle)
		}
	}
}

// ShouldSuppress reports whether the frame with decode-order frame_num
// frameNum and output-order picture order count outputPOC must be withheld.
// The decoded and output pictures are assumed to be the same.
func (m *Machine) ShouldSuppress(frameNum, outputPOC int) bool {
	return m.Judge(Picture{FrameNum: frameNum, POC: outputPOC, OutputPOC: outputPOC})
}

// Judge advances the machine for one decoded picture and reports whether its
// output must be withheld. Decoding still happens for withheld pictures so
// reference state stays correct.
func (m *Machine) Judge(p Picture) bool {
	if m.state == Idle {
		return false
	}
	if m.deferred {
		return true
	}

	if m.state == Found {
		m.target = mod(p.FrameNum+m.frameCount, m.maxFrameNum)
		m.setState(CountingFrames)
	}
	if m.state == CountingFrames {
		if !m.reached(p.FrameNum) {
			return true
		}
		m.poc = p.POC
		m.setState(WaitingForPOC)
	}
	if m.state == WaitingForPOC {
		if p.OutputPOC < m.poc {
			return true
		}
		m.setState(Idle)
		return false
	}
	return true
}

// reached reports whether frameNum is at or past target, modulo
// MaxFrameNum.
func (m *Machine) reached(frameNum int) bool {
	return mod(frameNum-m.target, m.maxFrameNum) < m.maxFrameNum/2
}

// search scans one access unit for a random access marker. Markers are
// ranked: an IDR recovers immediately, a recovery point SEI supplies its own
// frame count, and an intra AUD or intra slice recovers with a count of
// zero. A non-intra AUD or slice seen before any marker abandons the unit.
func (m *Machine) search(data []byte) {
	m.seg.SetBuffer(data, m.prefixLen)
	intra := false
	for {
		u, ok := m.seg.Next()
		if !ok {
			break
		}
		switch u.Type {
		case nalu.TypeIDR:
			m.log.Debug("recovery via IDR")
			m.setState(Idle)
			return

		case nalu.TypeSPS:
			m.noteSPS(u.Data)

		case nalu.TypeSEI:
			if cnt, ok := parseRecoveryPoint(u.Data); ok {
				m.log.Debug("recovery point SEI", "frames", cnt)
				m.frameCount = cnt
				m.setState(Found)
				return
			}

		case nalu.TypeAUD:
			if intra {
				continue
			}
			if len(u.Data) < 2 || !isIntraPrimaryPicType(u.Data[1]>>5) {
				return
			}
			intra = true

		case nalu.TypeSlice, nalu.TypeSliceDPA:
			if !intra {
				_, st, err := h264.PeekSliceType(u.Data)
				if err != nil || !st.IsIntra() {
					return
				}
				intra = true
			}
			// Markers cannot follow the first slice of a picture.
			m.foundIntra()
			return
		}
	}
	if intra {
		m.foundIntra()
	}
}

func (m *Machine) foundIntra() {
	m.log.Debug("recovery via intra picture")
	m.frameCount = 0
	m.setState(Found)
}

// watch reports whether a unit seen after the marker carries an IDR. It
// also picks up MaxFrameNum from an in-band SPS.
func (m *Machine) watch(data []byte) bool {
	m.seg.SetBuffer(data, m.prefixLen)
	for {
		u, ok := m.seg.Next()
		if !ok {
			return false
		}
		switch u.Type {
		case nalu.TypeIDR:
			return true
		case nalu.TypeSPS:
			m.noteSPS(u.Data)
		}
	}
}

func (m *Machine) noteSPS(nal []byte) {
	if sps, err := h264.ParseSPS(nal); err == nil {
		m.maxFrameNum = sps.MaxFrameNum()
	}
}

func (m *Machine) setState(s State) {
	if s != m.state {
		m.log.Debug("recovery state", "from", m.state, "to", s)
		m.state = s
	}
}

// isIntraPrimaryPicType reports whether an AUD primary_pic_type allows only
// I and SI slices: 0 (I), 3 (SI) and 5 (I, SI).
func isIntraPrimaryPicType(t byte) bool {
	return t == 0 || t == 3 || t == 5
}

func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}
