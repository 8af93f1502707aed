// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package mpsgraph builds and runs computation graphs on Apple's Metal
// Performance Shaders Graph framework.
//
// The package is a bridge, not a re-implementation: graphs, tensors and
// tensor data are foreign Objective-C objects, wrapped with explicit
// reference ownership and released deterministically (Finalize/Release),
// not by the garbage collector. Control-flow constructs (If, While,
// ForLoop, ControlDependency) take Go closures and install them as foreign
// blocks for the duration of the construct call.
//
// The real framework backs the package on macOS (build with cgo); it is
// the only runtime shipped, so the package is effectively darwin-only. The
// package's own tests run everywhere against a pure Go runtime (under
// internal/objc/fakeobjc) that emulates the foreign reference-counting and
// execution semantics. The runtime can be selected with WithRuntimeSpec or
// the MPSGRAPH_RUNTIME environment variable.
package mpsgraph
