package mpegts

import "errors"

const (
	// PacketSize is the size of one transport packet.
	PacketSize = 188
	syncByte   = 0x47

	pidPAT = 0x0000
)

// PMT stream types of the video codecs the decoder understands.
const (
	StreamTypeMPEG2 = 0x02
	StreamTypeH264  = 0x1B
	StreamTypeH265  = 0x24
)

var (
	// ErrSync is returned for a packet that does not start with 0x47.
	ErrSync = errors.New("mpegts: missing sync byte")
	// ErrTruncated is returned for a packet, section or PES header that
	// ends early.
	ErrTruncated = errors.New("mpegts: truncated")
	// ErrCRC is returned for a PSI section whose CRC does not match.
	ErrCRC = errors.New("mpegts: section CRC mismatch")
	// ErrStartCode is returned for a PES packet without the 0x000001 prefix.
	ErrStartCode = errors.New("mpegts: missing PES start code")
)

// Packet is the header of one transport packet and a view of its payload.
// Payload aliases the buffer the packet was parsed from.
type Packet struct {
	PID           uint16
	CC            uint8
	Start         bool // payload_unit_start_indicator
	Error         bool // transport_error_indicator
	Discontinuity bool // discontinuity_indicator of the adaptation field
	HasPayload    bool
	Payload       []byte
}

// Program is one PAT entry.
type Program struct {
	Number uint16
	PMTPID uint16
}

// ElementaryStream is one PMT entry.
type ElementaryStream struct {
	PID        uint16
	StreamType uint8
}

// PMT is a parsed program map section.
type PMT struct {
	ProgramNumber uint16
	PCRPID        uint16
	Streams       []ElementaryStream
}

// PES is one reassembled PES packet. PTS and DTS are 33-bit 90 kHz values;
// DTS equals PTS when the header carried only a PTS.
type PES struct {
	StreamID uint8
	PTS      int64
	DTS      int64
	HasPTS   bool
	Data     []byte
}

// Unit is one demuxed item. Exactly one of PAT, PMT and PES is set.
// Discontinuity reports that data on PID was lost, or the transport
// signalled a discontinuity, since the previous unit on that PID.
type Unit struct {
	PID           uint16
	PAT           []Program
	PMT           *PMT
	PES           *PES
	Discontinuity bool
}
