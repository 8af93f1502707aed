//go:build darwin && cgo

package mpsgraph

import (
	// Registers the real framework runtime as the default on macOS.
	_ "github.com/gomlx/go-mpsgraph/internal/objc/objcdarwin"
)
