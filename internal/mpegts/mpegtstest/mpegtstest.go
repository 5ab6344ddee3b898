// Package mpegtstest builds small single-program transport streams for tests.
package mpegtstest

import (
	"bytes"
	"encoding/binary"

	"github.com/zsiec/vdec/internal/mpegts"
)

const (
	packetSize = mpegts.PacketSize

	// PMTPID is the PID the PAT points the single program at.
	PMTPID = 0x1000

	StreamTypeH264 = mpegts.StreamTypeH264
	StreamTypeH265 = mpegts.StreamTypeH265
)

// Stream accumulates TS packets for one program with a single video PID.
type Stream struct {
	buf      bytes.Buffer
	pid      uint16
	cc       map[uint16]uint8
	pendDisc bool
}

// New starts a stream and writes its PAT and PMT.
func New(videoPID uint16, streamType uint8) *Stream {
	s := &Stream{pid: videoPID, cc: make(map[uint16]uint8)}
	s.section(0x0000, pat())
	s.section(PMTPID, pmt(videoPID, streamType))
	return s
}

// Video packetizes data as one PES with the given 90 kHz timestamps.
// A negative dts omits the DTS field.
func (s *Stream) Video(pts, dts int64, data []byte) {
	s.payload(s.pid, pes(pts, dts, data))
}

// Skip advances the video continuity counter by n without writing packets,
// as if n packets were lost.
func (s *Stream) Skip(n int) {
	s.cc[s.pid] = (s.cc[s.pid] + uint8(n)) & 0x0F
}

// Discontinuity sets the discontinuity indicator on the next video packet.
func (s *Stream) Discontinuity() {
	s.pendDisc = true
}

// Raw appends b verbatim, for garbage between packets.
func (s *Stream) Raw(b []byte) {
	s.buf.Write(b)
}

// Bytes returns the stream so far.
func (s *Stream) Bytes() []byte {
	return s.buf.Bytes()
}

func (s *Stream) section(pid uint16, sec []byte) {
	s.payload(pid, append([]byte{0x00}, sec...))
}

func (s *Stream) payload(pid uint16, data []byte) {
	first := true
	for first || len(data) > 0 {
		pkt := make([]byte, packetSize)
		pkt[0] = 0x47
		pkt[1] = byte(pid>>8) & 0x1F
		pkt[2] = byte(pid)
		if first {
			pkt[1] |= 0x40
		}
		cc := s.cc[pid]
		s.cc[pid] = (cc + 1) & 0x0F

		disc := first && pid == s.pid && s.pendDisc
		room := packetSize - 4
		if disc {
			room -= 2
			s.pendDisc = false
		}
		n := min(len(data), room)

		off := 4
		if disc || n < packetSize-4 {
			// Adaptation field stuffing pads the packet to size.
			pkt[3] = 0x30 | cc
			afLen := packetSize - 4 - 1 - n
			pkt[off] = byte(afLen)
			if afLen > 0 {
				if disc {
					pkt[off+1] = 0x80
				}
				for i := off + 2; i < off+1+afLen; i++ {
					pkt[i] = 0xFF
				}
			}
			off += 1 + afLen
		} else {
			pkt[3] = 0x10 | cc
		}
		copy(pkt[off:], data[:n])
		data = data[n:]
		s.buf.Write(pkt)
		first = false
	}
}

func pat() []byte {
	sec := []byte{
		0x00, 0xB0, 0x0D, 0x00, 0x01, 0xC1, 0x00, 0x00,
		0x00, 0x01, 0xE0 | byte(PMTPID>>8)&0x1F, byte(PMTPID & 0xFF),
	}
	return withCRC(sec)
}

func pmt(videoPID uint16, streamType uint8) []byte {
	sec := []byte{
		0x02, 0xB0, 0x12, 0x00, 0x01, 0xC1, 0x00, 0x00,
		0xE0 | byte(videoPID>>8)&0x1F, byte(videoPID),
		0xF0, 0x00,
		streamType, 0xE0 | byte(videoPID>>8)&0x1F, byte(videoPID), 0xF0, 0x00,
	}
	return withCRC(sec)
}

func withCRC(sec []byte) []byte {
	return binary.BigEndian.AppendUint32(sec, mpegts.CRC32(sec))
}

func pes(pts, dts int64, data []byte) []byte {
	var opt []byte
	flags := byte(0x80)
	if dts >= 0 {
		flags = 0xC0
		opt = append(opt, timestamp(0x03, pts)...)
		opt = append(opt, timestamp(0x01, dts)...)
	} else {
		opt = append(opt, timestamp(0x02, pts)...)
	}
	b := []byte{0x00, 0x00, 0x01, 0xE0, 0x00, 0x00, 0x80, flags, byte(len(opt))}
	b = append(b, opt...)
	return append(b, data...)
}

func timestamp(marker byte, v int64) []byte {
	return []byte{
		marker<<4 | byte((v>>29)&0x0E) | 0x01,
		byte(v >> 22),
		byte((v>>14)&0xFE) | 0x01,
		byte(v >> 7),
		byte((v<<1)&0xFE) | 0x01,
	}
}
