package dataset

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sort"

	"taxlab-hq/ledger/pkg/engine"
)

// MembershipArray is the reserved array name holding person-to-household
// indices.
const MembershipArray = "__person_household"

func encodeFloats(values []float64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func decodeFloats(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("%w: array length %d is not a multiple of 8", ErrCorrupt, len(buf))
	}
	out := make([]float64, len(buf)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return out, nil
}

func encodeMembership(index []int) []byte {
	buf := make([]byte, 4*len(index))
	for i, h := range index {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(h))
	}
	return buf
}

func decodeMembership(buf []byte) ([]int, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("%w: membership length %d is not a multiple of 4", ErrCorrupt, len(buf))
	}
	out := make([]int, len(buf)/4)
	for i := range out {
		out[i] = int(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return out, nil
}

// encode returns the named arrays of data in name order.
func encode(data *engine.Data) (names []string, arrays [][]byte) {
	names = make([]string, 0, len(data.Inputs)+1)
	for name := range data.Inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	names = append([]string{MembershipArray}, names...)

	arrays = make([][]byte, len(names))
	arrays[0] = encodeMembership(data.PersonHousehold)
	for i, name := range names[1:] {
		arrays[i+1] = encodeFloats(data.Inputs[name])
	}
	return names, arrays
}

// Checksum hashes the canonical encoding of data.
func Checksum(data *engine.Data) string {
	names, arrays := encode(data)
	return checksum(data.Year, data.Households, names, arrays)
}

func checksum(year, households int, names []string, arrays [][]byte) string {
	h := sha256.New()
	var header [16]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(year))
	binary.LittleEndian.PutUint64(header[8:], uint64(households))
	h.Write(header[:])
	for i, name := range names {
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(len(arrays[i])))
		h.Write([]byte(name))
		h.Write(n[:])
		h.Write(arrays[i])
	}
	return hex.EncodeToString(h.Sum(nil))
}
