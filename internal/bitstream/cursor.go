package bitstream

// MaxReadBits is the widest field ReadBits and PeekBits will service.
const MaxReadBits = 32

// Cursor reads bits MSB-first from a byte slice. Buffered bits live
// left-aligned in a 64-bit accumulator that is topped up one byte at a time.
// The underlying slice is never modified.
type Cursor struct {
	data []byte
	next int    // index of the next byte to load into acc
	acc  uint64 // buffered bits, left-aligned
	bits int    // valid bits in acc
}

// NewCursor returns a Cursor positioned at the first bit of data.
func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Reset points the cursor at a new buffer and rewinds it.
func (c *Cursor) Reset(data []byte) {
	c.data = data
	c.Seek(0)
}

// RemainingBits reports how many bits are left: the buffered bits plus
// eight for every byte not yet loaded.
func (c *Cursor) RemainingBits() int {
	return c.bits + 8*(len(c.data)-c.next)
}

// Pos returns the byte offset of the next unread bit, rounded down.
func (c *Cursor) Pos() int {
	consumed := 8*c.next - c.bits
	return consumed / 8
}

// BitPos returns the absolute offset of the next unread bit.
func (c *Cursor) BitPos() int {
	return 8*c.next - c.bits
}

// Seek moves the cursor to the start of byte pos, clamped to the buffer
// length. Buffered bits are always discarded.
func (c *Cursor) Seek(pos int) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(c.data) {
		pos = len(c.data)
	}
	c.next = pos
	c.acc = 0
	c.bits = 0
}

// AlignToByte drops buffered bits until the next unread bit starts a byte.
func (c *Cursor) AlignToByte() {
	if rem := c.BitPos() % 8; rem != 0 {
		c.skipBuffered(8 - rem)
	}
}

// ReadBits consumes n bits and returns them right-aligned. n must be in
// [1, 32]; zero, out-of-range, or more bits than remain returns 0 and leaves
// the cursor unchanged.
func (c *Cursor) ReadBits(n int) uint32 {
	if !c.fill(n) {
		return 0
	}
	v := uint32(c.acc >> (64 - uint(n)))
	c.skipBuffered(n)
	return v
}

// PeekBits is ReadBits without consuming.
func (c *Cursor) PeekBits(n int) uint32 {
	if !c.fill(n) {
		return 0
	}
	return uint32(c.acc >> (64 - uint(n)))
}

// ReadFlag reads a single bit as a bool.
func (c *Cursor) ReadFlag() bool {
	return c.ReadBits(1) == 1
}

// SkipBits discards up to n bits.
func (c *Cursor) SkipBits(n int) {
	for n > 0 {
		step := n
		if step > MaxReadBits {
			step = MaxReadBits
		}
		if step > c.RemainingBits() {
			step = c.RemainingBits()
		}
		if step == 0 {
			return
		}
		c.ReadBits(step)
		n -= step
	}
}

// ReadUE decodes an unsigned Exponential-Golomb code. Running out of bits
// during the leading-zero run, or a run of 32 zeros whose value would not
// fit in 32 bits, returns 0 without consuming anything further.
func (c *Cursor) ReadUE() uint32 {
	zeros := 0
	for {
		if c.RemainingBits() == 0 {
			return 0
		}
		if c.ReadBits(1) == 1 {
			break
		}
		zeros++
		if zeros >= MaxReadBits {
			return 0
		}
	}
	if zeros == 0 {
		return 0
	}
	suffix := uint64(c.ReadBits(zeros))
	return uint32((uint64(1)<<uint(zeros) | suffix) - 1)
}

// ReadSE decodes a signed Exponential-Golomb code using the interleaved
// mapping 0, 1, -1, 2, -2, ...
func (c *Cursor) ReadSE() int32 {
	v := int64(c.ReadUE()) + 1
	if v&1 == 1 {
		return int32(-(v >> 1))
	}
	return int32(v >> 1)
}

// MoreRBSPData reports whether payload bits remain before the trailing
// rbsp_stop_one_bit and its alignment zeros.
func (c *Cursor) MoreRBSPData() bool {
	rem := c.RemainingBits()
	if rem == 0 {
		return false
	}
	// Find the last set bit in the buffer; everything from it on is trailing.
	last := len(c.data) - 1
	for last >= 0 && c.data[last] == 0 {
		last--
	}
	if last < 0 {
		return false
	}
	trailing := 0
	for b := c.data[last]; b&1 == 0; b >>= 1 {
		trailing++
	}
	stopBit := 8*last + (7 - trailing)
	return c.BitPos() < stopBit
}

// fill tops up the accumulator until at least n bits are buffered. It
// reports false when n is outside [1, 32] or exceeds the remaining bits.
func (c *Cursor) fill(n int) bool {
	if n <= 0 || n > MaxReadBits || n > c.RemainingBits() {
		return false
	}
	for c.bits < n {
		c.acc |= uint64(c.data[c.next]) << uint(56-c.bits)
		c.next++
		c.bits += 8
	}
	return true
}

func (c *Cursor) skipBuffered(n int) {
	if n > c.bits {
		n = c.bits
	}
	c.acc <<= uint(n)
	c.bits -= n
}
