package mpegts

import "fmt"

// crcTable is the MSB-first table for the MPEG-2 CRC (polynomial
// 0x04C11DB7). hash/crc32 only implements the reflected form.
var crcTable = func() (t [256]uint32) {
	for i := range t {
		c := uint32(i) << 24
		for range 8 {
			if c&0x80000000 != 0 {
				c = c<<1 ^ 0x04C11DB7
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}()

// CRC32 returns the MPEG-2 CRC of data as carried at the end of PSI
// sections.
func CRC32(data []byte) uint32 {
	c := uint32(0xFFFFFFFF)
	for _, b := range data {
		c = c<<8 ^ crcTable[byte(c>>24)^b]
	}
	return c
}

// checkCRC verifies a section that ends in its own CRC. The CRC over such
// a section, trailer included, is zero.
func checkCRC(section []byte) error {
	if len(section) < 4 {
		return fmt.Errorf("%w: section of %d bytes", ErrTruncated, len(section))
	}
	if CRC32(section) != 0 {
		return ErrCRC
	}
	return nil
}
