package fakeobjc

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// decodeValues unpacks a tensor-data payload into float64s by data type.
func decodeValues(obj *object) ([]float64, error) {
	switch obj.dtype {
	case dtypeFloat32:
		if len(obj.data)%4 != 0 {
			return nil, errors.Errorf("float32 payload of %d bytes is not a multiple of 4", len(obj.data))
		}
		out := make([]float64, len(obj.data)/4)
		for i := range out {
			bits := binary.LittleEndian.Uint32(obj.data[i*4:])
			out[i] = float64(math.Float32frombits(bits))
		}
		return out, nil
	case dtypeInt32:
		if len(obj.data)%4 != 0 {
			return nil, errors.Errorf("int32 payload of %d bytes is not a multiple of 4", len(obj.data))
		}
		out := make([]float64, len(obj.data)/4)
		for i := range out {
			out[i] = float64(int32(binary.LittleEndian.Uint32(obj.data[i*4:])))
		}
		return out, nil
	case dtypeBool:
		out := make([]float64, len(obj.data))
		for i, b := range obj.data {
			if b != 0 {
				out[i] = 1
			}
		}
		return out, nil
	}
	return nil, errors.Errorf("emulation does not support data type %#x", obj.dtype)
}

// encodeValues packs float64s into a tensor-data payload by data type.
func encodeValues(values []float64, dtype uint32) ([]byte, error) {
	switch dtype {
	case dtypeFloat32:
		out := make([]byte, len(values)*4)
		for i, value := range values {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(value)))
		}
		return out, nil
	case dtypeInt32:
		out := make([]byte, len(values)*4)
		for i, value := range values {
			binary.LittleEndian.PutUint32(out[i*4:], uint32(int32(value)))
		}
		return out, nil
	case dtypeBool:
		out := make([]byte, len(values))
		for i, value := range values {
			if value != 0 {
				out[i] = 1
			}
		}
		return out, nil
	}
	return nil, errors.Errorf("emulation does not support data type %#x", dtype)
}
