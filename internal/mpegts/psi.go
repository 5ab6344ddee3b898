package mpegts

import "fmt"

const (
	tableIDPAT = 0x00
	tableIDPMT = 0x02
)

// sections walks the PSI sections of a reassembled payload that starts
// with a pointer field. It stops at stuffing (0xFF) or at a header without
// section_syntax_indicator, and reports whether every section it found was
// complete.
func sections(payload []byte, fn func(section []byte) error) (complete bool, err error) {
	if len(payload) == 0 {
		return false, nil
	}
	off := 1 + int(payload[0])
	if off >= len(payload) {
		return false, nil
	}
	for off < len(payload) {
		if payload[off] == 0xFF {
			return true, nil
		}
		if off+3 > len(payload) {
			return false, nil
		}
		if payload[off+1]&0x80 == 0 {
			return true, nil
		}
		end := off + 3 + (int(payload[off+1]&0x0F)<<8 | int(payload[off+2]))
		if end > len(payload) {
			return false, nil
		}
		if fn != nil {
			if err := fn(payload[off:end]); err != nil {
				return true, err
			}
		}
		off = end
	}
	return true, nil
}

// sectionComplete reports whether payload holds every section it starts.
func sectionComplete(payload []byte) bool {
	complete, _ := sections(payload, nil)
	return complete
}

// parsePSI turns the PAT and PMT sections of payload into units.
func parsePSI(pid uint16, payload []byte) ([]*Unit, error) {
	var units []*Unit
	_, err := sections(payload, func(sec []byte) error {
		switch sec[0] {
		case tableIDPAT:
			progs, err := parsePAT(sec)
			if err != nil {
				return err
			}
			units = append(units, &Unit{PID: pid, PAT: progs})
		case tableIDPMT:
			pmt, err := parsePMT(sec)
			if err != nil {
				return err
			}
			units = append(units, &Unit{PID: pid, PMT: pmt})
		}
		return nil
	})
	return units, err
}

// parsePAT decodes a program association section. Program 0, which points
// at the network information table, is skipped.
func parsePAT(sec []byte) ([]Program, error) {
	// 8 header bytes, 4 CRC bytes.
	if len(sec) < 12 {
		return nil, fmt.Errorf("%w: PAT of %d bytes", ErrTruncated, len(sec))
	}
	if err := checkCRC(sec); err != nil {
		return nil, fmt.Errorf("PAT: %w", err)
	}
	var progs []Program
	for i := 8; i+4 <= len(sec)-4; i += 4 {
		num := uint16(sec[i])<<8 | uint16(sec[i+1])
		if num == 0 {
			continue
		}
		progs = append(progs, Program{
			Number: num,
			PMTPID: uint16(sec[i+2]&0x1F)<<8 | uint16(sec[i+3]),
		})
	}
	return progs, nil
}

// parsePMT decodes a program map section. Descriptors are skipped.
func parsePMT(sec []byte) (*PMT, error) {
	// 12 header bytes, 4 CRC bytes.
	if len(sec) < 16 {
		return nil, fmt.Errorf("%w: PMT of %d bytes", ErrTruncated, len(sec))
	}
	if err := checkCRC(sec); err != nil {
		return nil, fmt.Errorf("PMT: %w", err)
	}
	pmt := &PMT{
		ProgramNumber: uint16(sec[3])<<8 | uint16(sec[4]),
		PCRPID:        uint16(sec[8]&0x1F)<<8 | uint16(sec[9]),
	}
	end := len(sec) - 4
	off := 12 + (int(sec[10]&0x0F)<<8 | int(sec[11]))
	for off+5 <= end {
		pmt.Streams = append(pmt.Streams, ElementaryStream{
			StreamType: sec[off],
			PID:        uint16(sec[off+1]&0x1F)<<8 | uint16(sec[off+2]),
		})
		off += 5 + (int(sec[off+3]&0x0F)<<8 | int(sec[off+4]))
	}
	return pmt, nil
}
