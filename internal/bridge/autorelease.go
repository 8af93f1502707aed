package bridge

import (
	"github.com/gomlx/go-mpsgraph/internal/objc"
	"k8s.io/klog/v2"
)

// Pool bounds the lifetime of transient foreign objects: anything the
// foreign runtime autoreleases between NewPool and Drain is reclaimed at
// Drain unless it was promoted to an owned Handle (RetainAndWrap) first.
//
// Every call sequence that can create transient foreign objects -- graph
// runs, command-buffer encoding, per-entry dictionary construction in long
// construction loops -- must execute inside a Pool, turning the foreign
// runtime's implicit thread-global convention into an explicit lexical
// scope.
type Pool struct {
	rt      objc.Runtime
	token   objc.Ref
	drained bool
}

// NewPool opens an autorelease scope. Pair with a deferred Drain.
func NewPool(rt objc.Runtime) *Pool {
	return &Pool{rt: rt, token: rt.PoolPush()}
}

// Drain closes the scope, releasing the transient objects registered since
// NewPool. Idempotent, so a deferred Drain is safe alongside an early
// explicit one. Pools must drain in reverse order of creation.
func (p *Pool) Drain() {
	if p == nil || p.drained {
		return
	}
	p.drained = true
	p.rt.PoolPop(p.token)
	klog.V(2).Infof("bridge: autorelease pool %#x drained", uintptr(p.token))
}

// WithPool runs fn inside an autorelease scope, draining it on exit even if
// fn panics.
func WithPool(rt objc.Runtime, fn func() error) error {
	pool := NewPool(rt)
	defer pool.Drain()
	return fn()
}
