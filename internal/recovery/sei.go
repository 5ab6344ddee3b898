package recovery

import (
	"github.com/zsiec/vdec/internal/bitstream"
	"github.com/zsiec/vdec/internal/nalu"
)

const seiTypeRecoveryPoint = 6

// parseRecoveryPoint walks the SEI messages of a NAL unit (header byte
// included) and returns recovery_frame_cnt of the first recovery point
// message. Truncated messages are treated as absent.
func parseRecoveryPoint(nal []byte) (int, bool) {
	if len(nal) < 2 {
		return 0, false
	}
	rbsp := nalu.Unescape(nal[1:])
	i := 0
	for i < len(rbsp) {
		if rbsp[i] == 0x80 && i == len(rbsp)-1 {
			break
		}

		payloadType := 0
		for i < len(rbsp) && rbsp[i] == 0xFF {
			payloadType += 255
			i++
		}
		if i >= len(rbsp) {
			break
		}
		payloadType += int(rbsp[i])
		i++

		payloadSize := 0
		for i < len(rbsp) && rbsp[i] == 0xFF {
			payloadSize += 255
			i++
		}
		if i >= len(rbsp) {
			break
		}
		payloadSize += int(rbsp[i])
		i++

		if i+payloadSize > len(rbsp) {
			break
		}

		if payloadType == seiTypeRecoveryPoint {
			c := bitstream.NewCursor(rbsp[i : i+payloadSize])
			if c.RemainingBits() == 0 {
				return 0, false
			}
			return int(c.ReadUE()), true
		}
		i += payloadSize
	}
	return 0, false
}
