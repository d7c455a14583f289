package core

import "sync"

// ── Registry ──────────────────────────────────────────────────────────────────

// DefaultRegistry is a thread-safe implementation of Registry.
type DefaultRegistry struct {
	mu       sync.RWMutex
	decoders map[Format]Decoder
	region   RegionDecoderFactory
}

// NewRegistry returns an empty DefaultRegistry.
func NewRegistry() *DefaultRegistry {
	return &DefaultRegistry{
		decoders: make(map[Format]Decoder),
	}
}

func (r *DefaultRegistry) RegisterDecoder(f Format, d Decoder) {
	r.mu.Lock()
	r.decoders[f] = d
	r.mu.Unlock()
}

func (r *DefaultRegistry) DecoderFor(f Format) (Decoder, bool) {
	r.mu.RLock()
	d, ok := r.decoders[f]
	r.mu.RUnlock()
	return d, ok
}

// SetRegionFactory installs the deployment's region-decode capability.
// A nil factory clears it.
func (r *DefaultRegistry) SetRegionFactory(f RegionDecoderFactory) {
	r.mu.Lock()
	r.region = f
	r.mu.Unlock()
}

func (r *DefaultRegistry) RegionFactory() (RegionDecoderFactory, bool) {
	r.mu.RLock()
	f := r.region
	r.mu.RUnlock()
	return f, f != nil
}
