package mpegts

import "fmt"

// hasStartCode reports whether data begins with the PES start code prefix.
func hasStartCode(data []byte) bool {
	return len(data) >= 3 && data[0] == 0 && data[1] == 0 && data[2] == 1
}

// hasOptionalHeader reports whether packets of stream id carry the
// optional PES header. Padding, private_stream_2, ECM, EMM, DSM-CC,
// H.222.1 type E and the program stream directory do not.
func hasOptionalHeader(id uint8) bool {
	switch id {
	case 0xBC, 0xBE, 0xBF, 0xF0, 0xF1, 0xF2, 0xF8, 0xFF:
		return false
	}
	return true
}

// parsePES decodes a reassembled PES packet. Data aliases payload.
func parsePES(payload []byte) (*PES, error) {
	if len(payload) < 6 {
		return nil, fmt.Errorf("%w: PES of %d bytes", ErrTruncated, len(payload))
	}
	if !hasStartCode(payload) {
		return nil, ErrStartCode
	}

	pes := &PES{StreamID: payload[3]}
	end := len(payload)
	// A zero length leaves video PES packets unbounded.
	if n := int(payload[4])<<8 | int(payload[5]); n > 0 && 6+n < end {
		end = 6 + n
	}

	if !hasOptionalHeader(pes.StreamID) {
		pes.Data = payload[6:end]
		return pes, nil
	}
	if end < 9 {
		return nil, fmt.Errorf("%w: PES header", ErrTruncated)
	}

	start := 9 + int(payload[8])
	if start > end {
		return nil, fmt.Errorf("%w: PES header data of %d bytes", ErrTruncated, payload[8])
	}
	hdr := payload[9:start]
	switch payload[7] >> 6 {
	case 2:
		if len(hdr) >= 5 {
			pes.PTS, pes.HasPTS = timestamp(hdr), true
			pes.DTS = pes.PTS
		}
	case 3:
		if len(hdr) >= 10 {
			pes.PTS, pes.HasPTS = timestamp(hdr), true
			pes.DTS = timestamp(hdr[5:])
		}
	}
	pes.Data = payload[start:end]
	return pes, nil
}

// timestamp decodes the 33-bit value of a 5-byte PTS or DTS field.
func timestamp(b []byte) int64 {
	return int64(b[0]>>1&0x07)<<30 |
		int64(b[1])<<22 |
		int64(b[2]>>1)<<15 |
		int64(b[3])<<7 |
		int64(b[4]>>1)
}
