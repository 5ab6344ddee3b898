package mpegts

import "fmt"

// parsePacket decodes the header of the 188-byte packet in buf into p.
func parsePacket(buf []byte, p *Packet) error {
	if len(buf) != PacketSize {
		return fmt.Errorf("%w: packet of %d bytes", ErrTruncated, len(buf))
	}
	if buf[0] != syncByte {
		return fmt.Errorf("%w: got 0x%02X", ErrSync, buf[0])
	}

	*p = Packet{
		Error:      buf[1]&0x80 != 0,
		Start:      buf[1]&0x40 != 0,
		PID:        uint16(buf[1]&0x1F)<<8 | uint16(buf[2]),
		HasPayload: buf[3]&0x10 != 0,
		CC:         buf[3] & 0x0F,
	}

	off := 4
	if buf[3]&0x20 != 0 {
		afLen := int(buf[4])
		if afLen > 0 {
			p.Discontinuity = buf[5]&0x80 != 0
		}
		off += 1 + afLen
	}
	if p.HasPayload && off < PacketSize {
		p.Payload = buf[off:]
	}
	return nil
}
