package lamport

// Variable-width integer packing for the wire form of Time. The
// smaller the values, the shorter the string; freshly started replicas
// zip an id into three or four bytes instead of twenty four.

func byteLen(v uint64) int {
	l := 0
	for v > 0 {
		v >>= 8
		l++
	}
	return l
}

// ZipUint64 packs v into its shortest little-endian byte string.
func ZipUint64(v uint64) []byte {
	var buf [8]byte
	i := 0
	for v > 0 {
		buf[i] = byte(v)
		v >>= 8
		i++
	}
	return buf[0:i]
}

func UnzipUint64(zip []byte) (v uint64) {
	for i := len(zip) - 1; i >= 0; i-- {
		v <<= 8
		v |= uint64(zip[i])
	}
	return
}

// ZipUint64Triple packs three uint64s into one byte string. The first
// byte holds the lengths of a and b in its nibbles; the length of c is
// whatever remains.
func ZipUint64Triple(a, b, c uint64) []byte {
	la, lb := byteLen(a), byteLen(b)
	ret := make([]byte, 0, 1+la+lb+8)
	ret = append(ret, byte(la<<4|lb))
	ret = append(ret, ZipUint64(a)...)
	ret = append(ret, ZipUint64(b)...)
	ret = append(ret, ZipUint64(c)...)
	return ret
}

func UnzipUint64Triple(zip []byte) (a, b, c uint64) {
	if len(zip) == 0 {
		return
	}
	la := int(zip[0] >> 4)
	lb := int(zip[0] & 0xf)
	rest := zip[1:]
	if la+lb > len(rest) || la > 8 || lb > 8 {
		return
	}
	a = UnzipUint64(rest[:la])
	b = UnzipUint64(rest[la : la+lb])
	c = UnzipUint64(rest[la+lb:])
	return
}
