package bridge

import (
	"github.com/gomlx/go-mpsgraph/internal/objc"
	"github.com/pkg/errors"
)

// NullResultPolicy decides what a foreign nil from a run/encode entry point
// means. The observed foreign entry points are ambiguous -- some use nil as
// a valid "no results requested" outcome, others only return nil on failure
// -- so the policy is an explicit parameter of result assembly rather than a
// behavior silently picked per call site.
type NullResultPolicy int

const (
	// NullMeansEmpty maps a foreign nil result collection to an empty host
	// map. For run-style entry points where nil is a valid non-error
	// outcome.
	NullMeansEmpty NullResultPolicy = iota

	// NullMeansError surfaces a foreign nil as a NullResultError. For entry
	// points that must produce results on success.
	NullMeansError
)

// AssembleResults converts the transient dictionary returned by a graph
// run/compile/encode call into host entries, completing the round trip
// started by the feed marshaling. Conversion is total: every key present in
// the foreign collection yields exactly one entry. The returned entries own
// their keys and values; release them with MapEntries.Release.
//
// op names the foreign entry point, for error reporting.
func AssembleResults(rt objc.Runtime, result objc.Ref, op string, policy NullResultPolicy) (*MapEntries, error) {
	if result.IsNil() {
		if policy == NullMeansError {
			return nil, errNullResult(op)
		}
		return &MapEntries{index: make(map[objc.Ref]int)}, nil
	}
	dict, err := RetainAndWrap(rt, result, op)
	if err != nil {
		return nil, err
	}
	defer dict.Release()
	entries, err := FromMap(dict)
	if err != nil {
		return nil, errors.WithMessagef(err, "assembling results of %q", op)
	}
	return entries, nil
}
