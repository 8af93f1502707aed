package mpsgraph

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// DataType is the MPSDataType code used by the foreign framework: a bit for
// the family (floating, signed, normalized, ...) plus the bit width.
type DataType uint32

const (
	floatBit     DataType = 0x10000000
	complexBit   DataType = 0x01000000
	signedBit    DataType = 0x20000000
	alternateBit DataType = 0x40000000
	InvalidDType DataType = 0
)

const (
	Float16 = floatBit | 16
	Float32 = floatBit | 32
	Float64 = floatBit | 64

	Int8  = signedBit | 8
	Int16 = signedBit | 16
	Int32 = signedBit | 32
	Int64 = signedBit | 64

	Uint8  DataType = 8
	Uint16 DataType = 16
	Uint32 DataType = 32
	Uint64 DataType = 64

	Bool = alternateBit | 8

	Complex64  = floatBit | complexBit | 64
	Complex128 = floatBit | complexBit | 128
)

// SizeBytes returns the storage size of one element.
func (dt DataType) SizeBytes() int {
	return int(dt&0xFFFF) / 8
}

func (dt DataType) String() string {
	switch dt {
	case Float16:
		return "Float16"
	case Float32:
		return "Float32"
	case Float64:
		return "Float64"
	case Int8:
		return "Int8"
	case Int16:
		return "Int16"
	case Int32:
		return "Int32"
	case Int64:
		return "Int64"
	case Uint8:
		return "Uint8"
	case Uint16:
		return "Uint16"
	case Uint32:
		return "Uint32"
	case Uint64:
		return "Uint64"
	case Bool:
		return "Bool"
	case Complex64:
		return "Complex64"
	case Complex128:
		return "Complex128"
	}
	return fmt.Sprintf("DataType(%#x)", uint32(dt))
}

// dataTypeForDType maps GoMLX/gopjrt dtypes to MPSDataType codes.
var dataTypeForDType = map[dtypes.DType]DataType{
	dtypes.Float16: Float16,
	dtypes.Float32: Float32,
	dtypes.Float64: Float64,
	dtypes.Int8:    Int8,
	dtypes.Int16:   Int16,
	dtypes.Int32:   Int32,
	dtypes.Int64:   Int64,
	dtypes.Uint8:   Uint8,
	dtypes.Uint16:  Uint16,
	dtypes.Uint32:  Uint32,
	dtypes.Uint64:  Uint64,
	dtypes.Bool:    Bool,
}

// DataTypeFor converts a gopjrt dtype to the corresponding MPSDataType.
func DataTypeFor(dtype dtypes.DType) (DataType, error) {
	dt, supported := dataTypeForDType[dtype]
	if !supported {
		return InvalidDType, errors.Errorf("dtype %s has no MPSDataType equivalent", dtype)
	}
	return dt, nil
}

// DType converts back to the gopjrt dtype, or dtypes.InvalidDType when
// there is no equivalent (e.g. the complex types).
func (dt DataType) DType() dtypes.DType {
	for dtype, mps := range dataTypeForDType {
		if mps == dt {
			return dtype
		}
	}
	return dtypes.InvalidDType
}
