package machdesc

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sys/cpu"

	"github.com/raymyers/ralph-layout/pkg/platform"
)

// Resolver computes the static and runtime descriptions for one platform key
// at most once each and caches the outcome, failures included.
//
// Returned descriptions are shared and must not be modified.
type Resolver struct {
	os           platform.OSType
	cpu          platform.CPUArch
	littleEndian bool
	loader       Loader
	log          *zap.Logger

	staticMu   sync.Mutex
	staticDone atomic.Bool
	static     *MachineDescription

	// Held for the whole probe; Static does not wait on it.
	runtimeMu   sync.Mutex
	runtimeDone atomic.Bool
	runtime     *MachineDescription
	runtimeErr  error
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLoader sets the probe loader used for the runtime description.
func WithLoader(l Loader) ResolverOption {
	return func(r *Resolver) {
		r.loader = l
	}
}

// WithLogger sets the resolver's logger.
func WithLogger(l *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		r.log = l
	}
}

// NewResolver returns a resolver for the given platform key. Without
// WithLoader the runtime description is unavailable.
func NewResolver(o platform.OSType, a platform.CPUArch, littleEndian bool, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		os:           o,
		cpu:          a,
		littleEndian: littleEndian,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.loader == nil {
		r.loader = func() (Prober, error) { return nil, ErrProbeUnavailable }
	}
	if r.log == nil {
		r.log = Logger()
	}
	return r
}

// Default returns the process-wide resolver for the host, probing through
// HostLoader.
var Default = sync.OnceValue(func() *Resolver {
	o, a := platform.Host()
	return NewResolver(o, a, !cpu.IsBigEndian, WithLoader(HostLoader))
})

// StaticConfig returns the profile selected for the resolver's key.
func (r *Resolver) StaticConfig() StaticConfig {
	return Static(r.os, r.cpu, r.littleEndian)
}

// Static returns the table-derived description. It always succeeds.
func (r *Resolver) Static() *MachineDescription {
	if !r.staticDone.Load() {
		r.staticMu.Lock()
		if !r.staticDone.Load() {
			cfg := r.StaticConfig()
			r.static = cfg.Description()
			r.log.Debug("static machine description",
				zap.Stringer("os", r.os),
				zap.Stringer("cpu", r.cpu),
				zap.Bool("littleEndian", r.littleEndian),
				zap.Stringer("profile", cfg),
				zap.String("description", r.static.ShortString()))
			r.staticDone.Store(true)
		}
		r.staticMu.Unlock()
	}
	return r.static
}

// Runtime returns the probed description. A nil description with a nil error
// means the probe is unavailable; callers fall back to Static.
func (r *Resolver) Runtime() (*MachineDescription, error) {
	if !r.runtimeDone.Load() {
		r.runtimeMu.Lock()
		if !r.runtimeDone.Load() {
			r.runtime, r.runtimeErr = r.probe()
			r.runtimeDone.Store(true)
		}
		r.runtimeMu.Unlock()
	}
	return r.runtime, r.runtimeErr
}

func (r *Resolver) probe() (*MachineDescription, error) {
	p, err := r.loader()
	if errors.Is(err, ErrProbeUnavailable) {
		r.log.Debug("runtime machine description unavailable")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("machdesc: load probe: %w", err)
	}
	md, err := Probe(p)
	if err != nil {
		r.log.Debug("runtime probe failed", zap.Error(err))
		return nil, err
	}
	r.log.Debug("runtime machine description", zap.String("description", md.ShortString()))
	return md, nil
}

// Validate compares the runtime description with the static one. It reports
// false with a nil error when the runtime description is unavailable.
func (r *Resolver) Validate() (bool, error) {
	rt, err := r.Runtime()
	if err != nil || rt == nil {
		return false, err
	}
	st := r.Static()
	if !rt.Compatible(st) {
		return false, fmt.Errorf("%w: profile %s: static %s, runtime %s",
			ErrProfileMismatch, r.StaticConfig(), st, rt)
	}
	return true, nil
}
