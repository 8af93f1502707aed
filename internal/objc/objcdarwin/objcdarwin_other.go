//go:build !darwin || !cgo

// Package objcdarwin implements the objc.Runtime interface over the real
// Objective-C runtime on macOS. On other platforms, or with CGO disabled,
// this package is a no-op: the "darwin" runtime is not registered and only
// test runtimes are available.
package objcdarwin

// Name of this runtime in the objc registry.
const Name = "darwin"
