// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"github.com/gomlx/go-mpsgraph/internal/objc"
	"k8s.io/klog/v2"
)

// Handle owns (or borrows) exactly one foreign-runtime object reference and
// makes the foreign retain/release discipline leak-proof from Go.
//
// A Handle marked owned decrements the foreign retain count exactly once when
// Release is called; Release is idempotent and safe under defer, including
// with a panic in flight. A borrowed Handle never touches the retain count
// and must not outlive the call that produced its underlying owner.
//
// Exactly one Handle owns a given foreign reference at a time. To share a
// foreign object, use Retain to mint an independent owned Handle; never copy
// the raw reference.
//
// Handles are not safe for concurrent mutation; the foreign count itself is
// thread-safe, the Go-side bookkeeping is not.
type Handle struct {
	rt       objc.Runtime
	ref      objc.Ref
	owned    bool
	released bool
}

// AcquireOwned wraps a foreign reference that already carries a +1 retain
// (the "new"/"copy"/"init" convention) without further incrementing.
//
// A nil ref is always a foreign-side failure for this convention and is
// returned as a NullResultError naming op; AcquireOwned never produces a nil
// Handle alongside a nil error.
func AcquireOwned(rt objc.Runtime, ref objc.Ref, op string) (*Handle, error) {
	if ref.IsNil() {
		return nil, errNullResult(op)
	}
	klog.V(2).Infof("bridge: acquire owned %#x (%s)", uintptr(ref), op)
	return &Handle{rt: rt, ref: ref, owned: true}, nil
}

// RetainAndWrap takes a transient (autoreleased) foreign reference, retains
// it once, and wraps it, so the Handle's lifetime no longer depends on the
// foreign runtime's transient-object pool.
//
// A nil ref is returned as a NullResultError naming op.
func RetainAndWrap(rt objc.Runtime, ref objc.Ref, op string) (*Handle, error) {
	if ref.IsNil() {
		return nil, errNullResult(op)
	}
	rt.Retain(ref)
	klog.V(2).Infof("bridge: retain and wrap %#x (%s)", uintptr(ref), op)
	return &Handle{rt: rt, ref: ref, owned: true}, nil
}

// Borrow wraps ref without touching the retain count. It is only legal when
// the caller can prove the foreign owner outlives the Handle -- typically an
// accessor on an object the caller already owns. Borrowed Handles are used
// within the producing call and never returned from exported functions.
//
// Unlike the acquiring constructors, Borrow accepts a nil ref (yielding a
// Handle for which IsNil reports true): a nil borrowed property is not a
// failure, merely absent.
func Borrow(rt objc.Runtime, ref objc.Ref) *Handle {
	return &Handle{rt: rt, ref: ref}
}

// Ref returns the underlying foreign reference, or the foreign nil for a nil
// or released Handle. Nil-safe, so optional Handle arguments marshal
// naturally to the foreign absent value.
func (h *Handle) Ref() objc.Ref {
	if h == nil || h.released {
		return objc.Nil
	}
	return h.ref
}

// IsNil reports whether the Handle holds no foreign object.
func (h *Handle) IsNil() bool { return h.Ref().IsNil() }

// Owned reports whether the Handle owns a retain on its object.
func (h *Handle) Owned() bool { return h != nil && h.owned && !h.released }

// Runtime returns the foreign runtime this Handle belongs to.
func (h *Handle) Runtime() objc.Runtime {
	if h == nil {
		return nil
	}
	return h.rt
}

// Retain mints an independent owned Handle for the same foreign object by
// incrementing its retain count. The two Handles release independently; this
// is the only sanctioned way to share a foreign object across owners.
func (h *Handle) Retain() *Handle {
	if h.IsNil() {
		return Borrow(h.Runtime(), objc.Nil)
	}
	h.rt.Retain(h.ref)
	return &Handle{rt: h.rt, ref: h.ref, owned: true}
}

// Forget transfers ownership of the foreign reference out of the Handle and
// returns it still carrying the +1 the Handle held. Used when a +1 reference
// is handed to a foreign call that consumes it. Calling Forget on a borrowed
// or released Handle just returns the current Ref.
func (h *Handle) Forget() objc.Ref {
	if h == nil || h.released {
		return objc.Nil
	}
	ref := h.ref
	h.owned = false
	h.released = true
	return ref
}

// Release drops the Handle's claim on the foreign object, decrementing the
// foreign retain count iff the Handle is owned. Idempotent: a second Release
// (or a Release racing a deferred one after an early return) never
// double-decrements. Releasing a nil or borrowed Handle is a no-op.
func (h *Handle) Release() {
	if h == nil || h.released {
		return
	}
	h.released = true
	if !h.owned || h.ref.IsNil() {
		return
	}
	klog.V(2).Infof("bridge: release %#x", uintptr(h.ref))
	h.rt.Release(h.ref)
}

// releaseAll releases every Handle in hs. Convenience for deferred cleanup of
// marshaled slices.
func releaseAll(hs []*Handle) {
	for _, h := range hs {
		h.Release()
	}
}
