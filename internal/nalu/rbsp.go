package nalu

// Unescape strips emulation prevention bytes (the 0x03 in 00 00 03) and
// returns the raw byte sequence payload. The input is not modified.
func Unescape(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if i+2 < len(data) && data[i] == 0 && data[i+1] == 0 && data[i+2] == 3 &&
			(i+3 >= len(data) || data[i+3] <= 3) {
			out = append(out, 0, 0)
			i += 2
		} else {
			out = append(out, data[i])
		}
	}
	return out
}

// AppendAnnexB appends nal to dst behind a four-byte start code.
func AppendAnnexB(dst, nal []byte) []byte {
	dst = append(dst, 0, 0, 0, 1)
	return append(dst, nal...)
}

// AppendPrefixed appends nal to dst behind a big-endian length prefix of
// prefixLen bytes.
func AppendPrefixed(dst, nal []byte, prefixLen int) []byte {
	n := len(nal)
	for i := prefixLen - 1; i >= 0; i-- {
		dst = append(dst, byte(n>>(8*uint(i))))
	}
	return append(dst, nal...)
}

// Escape inserts emulation prevention bytes so that no 00 00 0x (x <= 3)
// sequence appears in the output.
func Escape(rbsp []byte) []byte {
	out := make([]byte, 0, len(rbsp)+len(rbsp)/64)
	zeros := 0
	for _, b := range rbsp {
		if zeros >= 2 && b <= 3 {
			out = append(out, 3)
			zeros = 0
		}
		out = append(out, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}
