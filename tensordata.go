// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mpsgraph

import (
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/go-mpsgraph/internal/bridge"
	"github.com/gomlx/go-mpsgraph/internal/objc"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TensorData wraps one foreign tensor-data object: a typed, shaped buffer
// living on a Device. It is the currency of Run: feeds map placeholders to
// TensorData, and results come back as TensorData.
type TensorData struct {
	rt objc.Runtime
	h  *bridge.Handle
}

// NewTensorData allocates tensor data on device holding a copy of flat,
// interpreted in row-major order with the given shape. The element type
// determines the data type.
func NewTensorData[T dtypes.Supported](device *Device, flat []T, shape Shape) (*TensorData, error) {
	if device == nil || device.h == nil {
		return nil, errors.New("NewTensorData: device is nil or was finalized")
	}
	dtype, err := DataTypeFor(dtypes.FromGenericsType[T]())
	if err != nil {
		return nil, err
	}
	if len(flat) != shape.Size() {
		return nil, errors.Errorf("NewTensorData: got %d values for shape %v (%d elements)",
			len(flat), shape, shape.Size())
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(flat))), len(flat)*dtype.SizeBytes())
	return NewTensorDataBytes(device, data, shape, dtype)
}

// NewTensorDataBytes is the untyped variant of NewTensorData: data is copied
// as-is and reinterpreted as dtype.
func NewTensorDataBytes(device *Device, data []byte, shape Shape, dtype DataType) (td *TensorData, err error) {
	if device == nil || device.h == nil {
		return nil, errors.New("NewTensorDataBytes: device is nil or was finalized")
	}
	if len(data) != shape.Size()*dtype.SizeBytes() {
		return nil, errors.Errorf("NewTensorDataBytes: got %d bytes for shape %v of %s (want %d)",
			len(data), shape, dtype, shape.Size()*dtype.SizeBytes())
	}
	rt := device.rt
	err = bridge.WithPool(rt, func() error {
		shapeList, err := shape.marshal(rt)
		if err != nil {
			return err
		}
		defer shapeList.Release()
		h, err := bridge.AcquireOwned(rt,
			rt.NewTensorData(device.h.Ref(), data, shapeList.Ref(), uint32(dtype)),
			"MPSGraphTensorData initWithDevice:data:shape:dataType:")
		if err != nil {
			return err
		}
		td = &TensorData{rt: rt, h: h}
		return nil
	})
	if err != nil {
		return nil, err
	}
	klog.V(2).Infof("mpsgraph: tensor data %v of %s (%s)", shape, dtype, humanize.Bytes(uint64(len(data))))
	return td, nil
}

// DataType returns the element type.
func (td *TensorData) DataType() DataType {
	return DataType(td.rt.TensorDataDType(td.h.Ref()))
}

// Shape returns the dimensions.
func (td *TensorData) Shape() (shape Shape, err error) {
	err = bridge.WithPool(td.rt, func() error {
		shape, err = shapeFromList(td.rt, td.rt.TensorDataShape(td.h.Ref()))
		return err
	})
	return
}

// Bytes reads the buffer back from the device as raw bytes.
func (td *TensorData) Bytes() ([]byte, error) {
	return td.rt.TensorDataBytes(td.h.Ref())
}

// Values reads the buffer back as a typed slice. The element type must
// match the buffer's data type.
func Values[T dtypes.Supported](td *TensorData) ([]T, error) {
	dtype, err := DataTypeFor(dtypes.FromGenericsType[T]())
	if err != nil {
		return nil, err
	}
	if got := td.DataType(); got != dtype {
		return nil, errors.Errorf("Values: tensor data holds %s, not %s", got, dtype)
	}
	data, err := td.Bytes()
	if err != nil {
		return nil, err
	}
	if len(data)%dtype.SizeBytes() != 0 {
		return nil, errors.Errorf("Values: %d bytes is not a whole number of %s elements", len(data), dtype)
	}
	flat := make([]T, len(data)/dtype.SizeBytes())
	copy(unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(flat))), len(data)), data)
	return flat, nil
}

// Release drops this wrapper's reference. Idempotent.
func (td *TensorData) Release() {
	td.h.Release()
}
