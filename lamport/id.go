package lamport

import (
	"encoding/binary"
	"strconv"
)

/*
	Time is a Lamport timestamp extended with a per-replica sequence
	number. It doubles as the unique identifier of every element a
	replica ever creates.

0...............................64...............................128..............................192
+--------------------------------+--------------------------------+--------------------------------+
|.............count..............|..............src...............|..............seq...............|
+--------------------------------+--------------------------------+--------------------------------+

Ordering is lexicographic on (count, src, seq). count establishes
happens-before, src breaks concurrent ties deterministically, seq keeps
two events of one replica apart even inside a single clock tick.
*/
type Time struct {
	Count uint64
	Src   uint64
	Seq   uint64
}

// T0 is the zero time; no replica ever mints it (src 0 is reserved).
var T0 = Time{}

// TMax compares greater than every mintable time.
var TMax = Time{^uint64(0), ^uint64(0), ^uint64(0)}

func (t Time) Compare(other Time) int {
	if t.Count != other.Count {
		if t.Count < other.Count {
			return -1
		}
		return 1
	}
	if t.Src != other.Src {
		if t.Src < other.Src {
			return -1
		}
		return 1
	}
	if t.Seq != other.Seq {
		if t.Seq < other.Seq {
			return -1
		}
		return 1
	}
	return 0
}

func (t Time) Less(other Time) bool {
	return t.Compare(other) < 0
}

func (t Time) IsZero() bool {
	return t == T0
}

const BytesLen = 24

// Bytes is the fixed-width big-endian form; the byte order equals the
// (count, src, seq) lexicographic order, so it can key an ordered store.
func (t Time) Bytes() []byte {
	var ret [BytesLen]byte
	binary.BigEndian.PutUint64(ret[0:8], t.Count)
	binary.BigEndian.PutUint64(ret[8:16], t.Src)
	binary.BigEndian.PutUint64(ret[16:24], t.Seq)
	return ret[:]
}

func TimeFromBytes(by []byte) Time {
	if len(by) < BytesLen {
		return T0
	}
	return Time{
		Count: binary.BigEndian.Uint64(by[0:8]),
		Src:   binary.BigEndian.Uint64(by[8:16]),
		Seq:   binary.BigEndian.Uint64(by[16:24]),
	}
}

// ZipBytes is the variable-width wire form, see zip.go.
func (t Time) ZipBytes() []byte {
	return ZipUint64Triple(t.Count, t.Src, t.Seq)
}

func TimeFromZipBytes(zip []byte) Time {
	c, s, q := UnzipUint64Triple(zip)
	return Time{Count: c, Src: s, Seq: q}
}

func (t Time) String() string {
	var buf [64]byte
	b := buf[:0]
	b = strconv.AppendUint(b, t.Count, 16)
	b = append(b, '-')
	b = strconv.AppendUint(b, t.Src, 16)
	if t.Seq != 0 {
		b = append(b, '-')
		b = strconv.AppendUint(b, t.Seq, 16)
	}
	return string(b)
}

// TimeFromString parses the count-src[-seq] hex form produced by String.
// Returns T0, false on garbage.
func TimeFromString(s string) (Time, bool) {
	var parts [3]uint64
	p := 0
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '-' {
			if p == 3 || i == start {
				return T0, false
			}
			v, err := strconv.ParseUint(s[start:i], 16, 64)
			if err != nil {
				return T0, false
			}
			parts[p] = v
			p++
			start = i + 1
		}
	}
	if p < 2 {
		return T0, false
	}
	return Time{Count: parts[0], Src: parts[1], Seq: parts[2]}, true
}
