// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mpsgraph

import (
	"github.com/gomlx/go-mpsgraph/internal/bridge"
	"github.com/gomlx/go-mpsgraph/internal/objc"
)

// Device wraps one foreign graph device, bound to the default Metal device
// of the machine. Tensor data objects are allocated against a Device; it
// can be shared by any number of graphs on the same runtime.
type Device struct {
	rt objc.Runtime
	h  *bridge.Handle
}

// NewDevice creates a graph device. It accepts the same options as New;
// WithName is ignored.
func NewDevice(opts ...Option) (*Device, error) {
	var config graphConfig
	for _, opt := range opts {
		opt(&config)
	}
	rt := config.rt
	if rt == nil {
		var err error
		rt, err = objc.New(config.spec)
		if err != nil {
			return nil, err
		}
	}
	h, err := bridge.AcquireOwned(rt, rt.NewDevice(), "MPSGraphDevice deviceWithMTLDevice:")
	if err != nil {
		return nil, err
	}
	return &Device{rt: rt, h: h}, nil
}

// NewDevice returns a Device on the same runtime instance as the graph.
// Tensor data fed to the graph must come from a device of its own runtime.
func (g *Graph) NewDevice() (*Device, error) {
	g.check("MPSGraphDevice deviceWithMTLDevice:")
	return NewDevice(withRuntime(g.rt))
}

// Finalize releases the foreign device immediately. TensorData objects
// allocated against it stay valid: they hold their own references.
func (d *Device) Finalize() {
	if d.h != nil {
		d.h.Release()
		d.h = nil
	}
}
