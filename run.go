// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mpsgraph

import (
	"github.com/gomlx/go-mpsgraph/internal/bridge"
	"github.com/gomlx/go-mpsgraph/internal/objc"
	"github.com/pkg/errors"
)

// Feeds maps placeholder tensors to the data to bind them to for one run.
type Feeds map[*Tensor]*TensorData

// NullResultPolicy decides what a foreign nil result dictionary means; see
// Graph.RunWithPolicy.
type NullResultPolicy = bridge.NullResultPolicy

const (
	// NullMeansEmpty treats a nil result dictionary as "nothing was
	// requested": an empty RunResults. This is the right reading for runs
	// that only have target operations, which legitimately produce no
	// result tensors.
	NullMeansEmpty = bridge.NullMeansEmpty

	// NullMeansError treats a nil result dictionary as a foreign-side
	// failure and returns an error.
	NullMeansError = bridge.NullMeansError
)

const runOp = "MPSGraph runWithFeeds:targetTensors:targetOperations:"

// RunResults holds the tensor data produced by one run, keyed by the target
// tensors that produced them.
type RunResults struct {
	byTensor map[objc.Ref]*TensorData
}

// Len returns the number of result tensors.
func (r *RunResults) Len() int { return len(r.byTensor) }

// Value returns the data computed for the given target tensor.
func (r *RunResults) Value(t *Tensor) (*TensorData, bool) {
	if t == nil {
		return nil, false
	}
	td, found := r.byTensor[t.h.Ref()]
	return td, found
}

// Release releases every result buffer. Idempotent.
func (r *RunResults) Release() {
	for _, td := range r.byTensor {
		td.Release()
	}
}

// Run executes the graph synchronously: feeds bind placeholders to data,
// targets are the tensors to compute and read back, targetOps operations to
// complete without reading anything back (nil and empty are equivalent). A
// nil result from the foreign side is treated as an empty result set; use
// RunWithPolicy to make it an error instead.
func (g *Graph) Run(feeds Feeds, targets []*Tensor, targetOps []*Operation) (*RunResults, error) {
	return g.RunWithPolicy(feeds, targets, targetOps, NullMeansEmpty)
}

// RunWithPolicy is Run with an explicit reading of a foreign nil result
// dictionary.
func (g *Graph) RunWithPolicy(feeds Feeds, targets []*Tensor, targetOps []*Operation, policy NullResultPolicy) (results *RunResults, err error) {
	g.check(runOp, targets...)
	for t, td := range feeds {
		g.check(runOp, t)
		if td == nil || td.h.IsNil() {
			return nil, errors.Errorf("%s: feed for tensor %v has nil data", runOp, t.h.Ref())
		}
	}
	err = bridge.WithPool(g.rt, func() error {
		feedEntries := make([]bridge.MapEntry, 0, len(feeds))
		for t, td := range feeds {
			feedEntries = append(feedEntries, bridge.MapEntry{Key: t.h, Value: td.h})
		}
		feedsDict, err := bridge.ToMap(g.rt, feedEntries)
		if err != nil {
			return err
		}
		defer feedsDict.Release()

		targetsList, err := bridge.ToList(g.rt, tensorHandles(targets))
		if err != nil {
			return err
		}
		defer targetsList.Release()

		targetOpsList, err := bridge.ToListOrAbsent(g.rt, operationHandles(targetOps))
		if err != nil {
			return err
		}
		defer targetOpsList.Release()

		resultRef := g.rt.Run(g.h.Ref(), feedsDict.Ref(), targetsList.Ref(), targetOpsList.Ref(), objc.Nil)
		entries, err := bridge.AssembleResults(g.rt, resultRef, runOp, policy)
		if err != nil {
			return err
		}
		results = &RunResults{byTensor: make(map[objc.Ref]*TensorData, entries.Len())}
		for _, entry := range entries.Entries() {
			results.byTensor[entry.Key.Ref()] = &TensorData{rt: g.rt, h: entry.Value}
			// The graph keeps the key tensor alive; only its identity is
			// needed for lookups.
			entry.Key.Release()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
