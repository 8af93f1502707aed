// Package bridge implements the foreign-object ownership and callback core
// of the MPSGraph binding: reference-counted Handles over Objective-C
// objects, marshaling between Go containers and the foreign keyed/ordered
// collections used for graph feeds and results, trampolines that let Go
// closures serve as the bodies of foreign control-flow constructs, assembly
// of run results back into host form, and autorelease scope guards bounding
// transient foreign objects.
//
// This is the one layer where a wrong ownership decision corrupts memory at
// a distance; everything above it (the operation wrappers in the parent
// package) is a typed pass-through. The rules, in short:
//
//   - Wrap every +1 foreign return with AcquireOwned, every autoreleased
//     return with RetainAndWrap, every property of an object you already own
//     with Borrow. Release owned Handles with defer.
//   - Marshal keyed collections in bulk with ToMap; reserve ToMutableMap for
//     destinations mutated in place. Optional list arguments go through
//     ToListOrAbsent so an empty Go slice becomes the foreign absent value.
//   - Wrap control-flow closures immediately before the installing foreign
//     call, defer Close, and check Err (or FirstErr) as soon as the call
//     returns. Closure panics never reach the foreign stack.
//   - Run anything that creates transient foreign objects inside a Pool.
//
// All operations are synchronous on the calling goroutine; the bridge has no
// internal locking beyond the trampoline registry, and no Handle may be
// mutated concurrently.
package bridge
