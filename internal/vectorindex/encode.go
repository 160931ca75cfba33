package vectorindex

import (
	"bytes"
	"encoding/binary"
	"math"
)

// encodeVector serializes a float32 embedding into the little-endian blob
// layout sqlite-vec expects, matching the teacher's encodeFloat32Slice.
func encodeVector(vec []float32) []byte {
	buf := &bytes.Buffer{}
	_ = binary.Write(buf, binary.LittleEndian, vec)
	return buf.Bytes()
}

func decodeVector(blob []byte) []float32 {
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}
