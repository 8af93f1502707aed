package mpsgraph

import (
	"github.com/gomlx/go-mpsgraph/internal/bridge"
	"github.com/gomlx/go-mpsgraph/internal/objc"
)

// Shape is the list of tensor dimensions. An empty Shape is a scalar.
type Shape []int64

// Size returns the number of elements.
func (s Shape) Size() int {
	size := 1
	for _, dim := range s {
		size *= int(dim)
	}
	return size
}

// marshal builds the foreign number array for the shape. Scalars marshal to
// the foreign shape @[@1], which is what the framework expects for rank-0
// data.
func (s Shape) marshal(rt objc.Runtime) (*bridge.Handle, error) {
	dims := []int64(s)
	if len(dims) == 0 {
		dims = []int64{1}
	}
	return bridge.ToNumberList(rt, dims)
}

// shapeFromList unmarshals a transient foreign number array into a Shape.
func shapeFromList(rt objc.Runtime, ref objc.Ref) (Shape, error) {
	if ref.IsNil() {
		return nil, nil
	}
	list, err := bridge.RetainAndWrap(rt, ref, "shape")
	if err != nil {
		return nil, err
	}
	defer list.Release()
	dims, err := bridge.NumberListValues(list)
	if err != nil {
		return nil, err
	}
	return Shape(dims), nil
}
