// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mpsgraph_test

import (
	"fmt"

	mpsgraph "github.com/gomlx/go-mpsgraph"
	"github.com/janpfeifer/must"

	_ "github.com/gomlx/go-mpsgraph/internal/objc/fakeobjc"
)

// Example builds y = a*x+b and runs it. The example executes on the pure Go
// test runtime; on macOS drop WithRuntimeSpec to use the Metal framework.
func Example() {
	g := must.M1(mpsgraph.New(mpsgraph.WithRuntimeSpec("fake")))
	defer g.Finalize()

	x := must.M1(g.Placeholder(mpsgraph.Float32, mpsgraph.Shape{3}, "x"))
	a := must.M1(g.Constant(2, mpsgraph.Float32))
	b := must.M1(g.Constant(1, mpsgraph.Float32))
	y := must.M1(g.Add(must.M1(g.Mul(a, x, "")), b, "y"))

	device := must.M1(g.NewDevice())
	defer device.Finalize()
	xData := must.M1(mpsgraph.NewTensorData(device, []float32{1, 2, 3}, mpsgraph.Shape{3}))
	defer xData.Release()

	results := must.M1(g.Run(mpsgraph.Feeds{x: xData}, []*mpsgraph.Tensor{y}, nil))
	defer results.Release()

	yData, _ := results.Value(y)
	fmt.Println(must.M1(mpsgraph.Values[float32](yData)))

	// Output:
	// [3 5 7]
}
