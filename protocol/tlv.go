/*
Package protocol frames replication traffic as TLV (type-length-value)
records and moves batches of them between replicas.

Record format, picked by body size:

 1. Tiny, 1-byte header, bodies of 0-9 bytes: [('0'+len)]. The type is
    normalized away; only produced for lowercase type arguments.
 2. Short, 2-byte header, bodies up to 255 bytes: [lowercase_type, len].
 3. Long, 5-byte header, bodies up to 2GB:
    [uppercase_type, 4-byte little-endian len].

Types are letters A-Z. Passing a lowercase letter to the encoders
permits the tiny form; uppercase forces an explicit header.
*/
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const caseBit byte = 'a' - 'A'

var (
	ErrIncomplete = errors.New("incomplete data")
	ErrBadRecord  = errors.New("bad TLV record format")
)

// ProbeHeader inspects one record header.
// lit is 'A'-'Z', '0' for the tiny form, '-' for garbage, 0 when the
// header itself is still incomplete.
func ProbeHeader(data []byte) (lit byte, hdrlen, bodylen int) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	dlit := data[0]
	switch {
	case dlit >= '0' && dlit <= '9':
		lit = '0'
		bodylen = int(dlit - '0')
		hdrlen = 1
	case dlit >= 'a' && dlit <= 'z':
		if len(data) < 2 {
			return
		}
		lit = dlit - caseBit
		hdrlen = 2
		bodylen = int(data[1])
	case dlit >= 'A' && dlit <= 'Z':
		if len(data) < 5 {
			return
		}
		bl := binary.LittleEndian.Uint32(data[1:5])
		if bl > 0x7fffffff {
			lit = '-'
			return
		}
		lit = dlit
		bodylen = int(bl)
		hdrlen = 5
	default:
		lit = '-'
	}
	return
}

// Split consumes whole records from the buffer, leaving any trailing
// partial record in place for the next read.
func Split(data *bytes.Buffer) (recs Records, err error) {
	for data.Len() > 0 {
		lit, hlen, blen := ProbeHeader(data.Bytes())
		if lit == '-' {
			if len(recs) == 0 {
				err = ErrBadRecord
			}
			return
		}
		if lit == 0 { // header not fully here yet
			return
		}
		if hlen+blen > data.Len() { // body not fully here yet
			err = errors.Join(ErrIncomplete, fmt.Errorf("record size %d, have %d", hlen+blen, data.Len()))
			return
		}
		record := make([]byte, hlen+blen)
		n, rerr := data.Read(record)
		if rerr != nil {
			return recs, rerr
		}
		if n != hlen+blen {
			panic("short read from an in-memory buffer")
		}
		recs = append(recs, record)
	}
	return
}

// AppendHeader picks the shortest encoding the type's case permits.
func AppendHeader(into []byte, lit byte, bodylen int) (ret []byte) {
	biglit := lit &^ caseBit
	if biglit < 'A' || biglit > 'Z' {
		panic("TLV record types are A..Z")
	}
	if bodylen < 10 && (lit&caseBit) != 0 {
		return append(into, byte('0'+bodylen))
	}
	if bodylen > 0xff {
		if bodylen > 0x7fffffff {
			panic("oversized TLV record")
		}
		ret = append(into, biglit)
		return binary.LittleEndian.AppendUint32(ret, uint32(bodylen))
	}
	return append(into, lit|caseBit, byte(bodylen))
}

// Take unpacks a record of the given type.
// Returns (nil, data) when the record is incomplete and (nil, nil) on a
// type mismatch; the tiny form matches any type.
func Take(lit byte, data []byte) (body, rest []byte) {
	flit, hdrlen, bodylen := ProbeHeader(data)
	if flit == 0 || hdrlen+bodylen > len(data) {
		return nil, data
	}
	if flit != lit && flit != '0' {
		return nil, nil
	}
	return data[hdrlen : hdrlen+bodylen], data[hdrlen+bodylen:]
}

// TakeAny unpacks whatever record comes next.
func TakeAny(data []byte) (lit byte, body, rest []byte) {
	if len(data) == 0 {
		return 0, nil, nil
	}
	lit = data[0] &^ caseBit
	body, rest = Take(lit, data)
	return
}

// Append encodes one record onto the buffer.
func Append(into []byte, lit byte, body ...[]byte) (res []byte) {
	res = AppendHeader(into, lit, TotalLen(body))
	for _, b := range body {
		res = append(res, b...)
	}
	return res
}

// Record encodes one record into a fresh buffer.
func Record(lit byte, body ...[]byte) []byte {
	total := TotalLen(body)
	ret := make([]byte, 0, total+5)
	ret = AppendHeader(ret, lit, total)
	for _, b := range body {
		ret = append(ret, b...)
	}
	return ret
}

// Concat glues byte strings with a single allocation.
func Concat(msg ...[]byte) []byte {
	ret := make([]byte, 0, TotalLen(msg))
	for _, b := range msg {
		ret = append(ret, b...)
	}
	return ret
}

// TotalLen sums the lengths of the inputs.
func TotalLen(inputs [][]byte) (sum int) {
	for _, input := range inputs {
		sum += len(input)
	}
	return
}
