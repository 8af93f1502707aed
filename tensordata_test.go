// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mpsgraph

import (
	"testing"

	"github.com/gomlx/go-mpsgraph/internal/objc/fakeobjc"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func newTestDevice(t *testing.T) (*fakeobjc.Runtime, *Device) {
	rt := fakeobjc.New()
	device, err := NewDevice(withRuntime(rt))
	require.NoError(t, err)
	return rt, device
}

func TestTensorDataFloat32(t *testing.T) {
	rt, device := newTestDevice(t)
	td, err := NewTensorData(device, []float32{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	require.NoError(t, err)
	require.Equal(t, Float32, td.DataType())

	shape, err := td.Shape()
	require.NoError(t, err)
	require.Equal(t, Shape{2, 3}, shape)

	values, err := Values[float32](td)
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3, 4, 5, 6}, values)

	td.Release()
	device.Finalize()
	require.Equal(t, 0, rt.LiveObjects())
}

func TestTensorDataInt32(t *testing.T) {
	_, device := newTestDevice(t)
	defer device.Finalize()
	td, err := NewTensorData(device, []int32{-1, 0, 7}, Shape{3})
	require.NoError(t, err)
	defer td.Release()
	require.Equal(t, Int32, td.DataType())

	values, err := Values[int32](td)
	require.NoError(t, err)
	require.Equal(t, []int32{-1, 0, 7}, values)
}

func TestTensorDataFloat16(t *testing.T) {
	_, device := newTestDevice(t)
	defer device.Finalize()
	flat := []float16.Float16{
		float16.Fromfloat32(0.5),
		float16.Fromfloat32(-2),
	}
	td, err := NewTensorData(device, flat, Shape{2})
	require.NoError(t, err)
	defer td.Release()
	require.Equal(t, Float16, td.DataType())
	require.Equal(t, 2, Float16.SizeBytes())

	values, err := Values[float16.Float16](td)
	require.NoError(t, err)
	require.Equal(t, flat, values)
	require.Equal(t, float32(0.5), values[0].Float32())
}

func TestTensorDataScalar(t *testing.T) {
	_, device := newTestDevice(t)
	defer device.Finalize()

	// Rank-0: one element, foreign shape @[@1].
	td, err := NewTensorData(device, []float32{42}, Shape{})
	require.NoError(t, err)
	defer td.Release()
	values, err := Values[float32](td)
	require.NoError(t, err)
	require.Equal(t, []float32{42}, values)
}

func TestTensorDataSizeMismatch(t *testing.T) {
	_, device := newTestDevice(t)
	defer device.Finalize()
	_, err := NewTensorData(device, []float32{1, 2, 3}, Shape{2, 2})
	require.Error(t, err)
	require.Contains(t, err.Error(), "4 elements")
}

func TestTensorDataTypeMismatch(t *testing.T) {
	_, device := newTestDevice(t)
	defer device.Finalize()
	td, err := NewTensorData(device, []float32{1}, Shape{1})
	require.NoError(t, err)
	defer td.Release()

	_, err = Values[int32](td)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Float32")
}

func TestTensorDataFinalizedDevice(t *testing.T) {
	_, device := newTestDevice(t)
	device.Finalize()
	_, err := NewTensorData(device, []float32{1}, Shape{1})
	require.Error(t, err)
}
