package bitstream

import "math/bits"

// Writer appends bits MSB-first to a growing byte slice.
type Writer struct {
	data   []byte
	bitPos int
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// PutBit appends a single bit.
func (w *Writer) PutBit(v bool) {
	if w.bitPos%8 == 0 {
		w.data = append(w.data, 0)
	}
	if v {
		w.data[w.bitPos/8] |= 1 << uint(7-w.bitPos%8)
	}
	w.bitPos++
}

// PutBits appends the low n bits of v, most significant first.
func (w *Writer) PutBits(n int, v uint32) {
	for i := n - 1; i >= 0; i-- {
		w.PutBit((v>>uint(i))&1 == 1)
	}
}

// PutUE appends v as an unsigned Exponential-Golomb code.
func (w *Writer) PutUE(v uint32) {
	x := uint64(v) + 1
	n := bits.Len64(x)
	for i := 0; i < n-1; i++ {
		w.PutBit(false)
	}
	for i := n - 1; i >= 0; i-- {
		w.PutBit((x>>uint(i))&1 == 1)
	}
}

// PutSE appends v as a signed Exponential-Golomb code.
func (w *Writer) PutSE(v int32) {
	if v > 0 {
		w.PutUE(uint32(2*int64(v) - 1))
		return
	}
	w.PutUE(uint32(-2 * int64(v)))
}

// PutBytes appends whole bytes. The writer need not be byte aligned.
func (w *Writer) PutBytes(b []byte) {
	for _, v := range b {
		w.PutBits(8, uint32(v))
	}
}

// PutTrailingBits appends rbsp_stop_one_bit and zero-pads to a byte boundary.
func (w *Writer) PutTrailingBits() {
	w.PutBit(true)
	for w.bitPos%8 != 0 {
		w.PutBit(false)
	}
}

// Len returns the number of bits written.
func (w *Writer) Len() int {
	return w.bitPos
}

// Bytes returns the written bytes. A partial final byte is zero-padded.
func (w *Writer) Bytes() []byte {
	return w.data
}
