// Package plugin implements the capability-based extension point: an ordered
// registry of plugins, each implementing any subset of the per-state
// capability interfaces.  The core never assumes a concrete plugin type; it
// asks whether a plugin implements a capability via type assertion and, if
// so, invokes it.
package plugin

import (
	"image"
	"image/color"

	"github.com/argonlabs/imageload/core"
)

// Alignment positions a visual inside its bounds.
type Alignment string

const (
	AlignCenter      Alignment = "center"
	AlignTopStart    Alignment = "top-start"
	AlignBottomEnd   Alignment = "bottom-end"
	AlignCenterStart Alignment = "center-start"
	AlignCenterEnd   Alignment = "center-end"
)

// ScaleMode controls how a visual fills its bounds.
type ScaleMode string

const (
	ScaleFit        ScaleMode = "fit"
	ScaleCrop       ScaleMode = "crop"
	ScaleInside     ScaleMode = "inside"
	ScaleFillBounds ScaleMode = "fill-bounds"
)

// RenderOptions carries the consumer's current layout and paint parameters
// into each plugin invocation.
type RenderOptions struct {
	Bounds      image.Rectangle
	Alignment   Alignment
	Scale       ScaleMode
	Alpha       float64
	ColorFilter *color.NRGBA // nil = no filter
}

// Visual is a replacement rendering description produced by a plugin.  The
// actual painting belongs to the external UI layer.
type Visual struct {
	Bitmap      *core.Bitmap
	Alpha       float64
	Tint        *color.NRGBA
	Description string
}

// Plugin is the marker interface all plugins implement.  Capabilities are the
// optional interfaces below; a concrete plugin implements zero or more.
type Plugin interface {
	PluginName() string
}

// LoadingPlugin observes/replaces rendering while a request is Loading.
type LoadingPlugin interface {
	Plugin
	ComposeLoading(opts RenderOptions, st core.Loading, key uint64) *Visual
}

// SuccessPlugin observes/replaces rendering once a request succeeds.
type SuccessPlugin interface {
	Plugin
	ComposeSuccess(opts RenderOptions, st core.Success, key uint64) *Visual
}

// FailurePlugin observes/replaces rendering once a request fails.  The load
// error is passed alongside the state.
type FailurePlugin interface {
	Plugin
	ComposeFailure(opts RenderOptions, st core.Failure, err error, key uint64) *Visual
}

// PainterPlugin post-processes the decoded bitmap of a successful load.
type PainterPlugin interface {
	Plugin
	Paint(opts RenderOptions, bm *core.Bitmap) *Visual
}

// Composition holds an ordered collection of plugins and fans a state
// snapshot out to every plugin implementing the matching capability, in
// registration order.  Invocation is synchronous and must not block: plugins
// read the snapshot and return a visual (or nil to pass).
type Composition struct {
	plugins []Plugin
}

// NewComposition returns a Composition over the given plugins in order.
func NewComposition(plugins ...Plugin) *Composition {
	return &Composition{plugins: plugins}
}

// Add appends plugins, preserving registration order.
func (c *Composition) Add(plugins ...Plugin) *Composition {
	c.plugins = append(c.plugins, plugins...)
	return c
}

// Plugins returns the registered plugins in order.
func (c *Composition) Plugins() []Plugin { return c.plugins }

// Compose invokes every capability-matching plugin for st and collects the
// visuals they produce.  For Success states, PainterPlugins run after the
// state plugins, against the decoded bitmap.
func (c *Composition) Compose(st core.State, opts RenderOptions, key uint64) []Visual {
	var out []Visual
	switch s := st.(type) {
	case core.Loading:
		for _, p := range c.plugins {
			if lp, ok := p.(LoadingPlugin); ok {
				if v := lp.ComposeLoading(opts, s, key); v != nil {
					out = append(out, *v)
				}
			}
		}
	case core.Success:
		for _, p := range c.plugins {
			if sp, ok := p.(SuccessPlugin); ok {
				if v := sp.ComposeSuccess(opts, s, key); v != nil {
					out = append(out, *v)
				}
			}
		}
		for _, p := range c.plugins {
			if pp, ok := p.(PainterPlugin); ok && s.Result != nil {
				if v := pp.Paint(opts, s.Result.Bitmap); v != nil {
					out = append(out, *v)
				}
			}
		}
	case core.Failure:
		for _, p := range c.plugins {
			if fp, ok := p.(FailurePlugin); ok {
				if v := fp.ComposeFailure(opts, s, s.Err, key); v != nil {
					out = append(out, *v)
				}
			}
		}
	}
	return out
}

/// Observe wires the composition to a request: every transition is composed
// with opts and handed to sink.  sink runs on the transitioning goroutine.
func (c *Composition) Observe(req *core.Request, opts RenderOptions, sink func(core.State, []Visual)) {
	key := req.Key()
	req.OnTransition(func(st core.State) {
		sink(st, c.Compose(st, opts, key))
	})
}
