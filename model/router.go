package model

import (
	"context"
	"errors"
)

// Profile names the kind of backend a request should be served by.
type Profile string

const (
	// ProfileAuto selects ProfileTools when the request carries tool
	// definitions and ProfileReasoning otherwise.
	ProfileAuto      Profile = ""
	ProfileTools     Profile = "tools"
	ProfileReasoning Profile = "reasoning"
)

type profileKey struct{}

// WithProfile overrides the Router's automatic backend choice for calls made
// with ctx.
func WithProfile(ctx context.Context, p Profile) context.Context {
	return context.WithValue(ctx, profileKey{}, p)
}

// ProfileFromContext returns the override stored by WithProfile.
func ProfileFromContext(ctx context.Context) Profile {
	p, _ := ctx.Value(profileKey{}).(Profile)
	return p
}

// RouterOptions configure a Router.
type RouterOptions struct {
	// DefaultEffort is applied to requests that do not set one.
	DefaultEffort Effort
}

// Router dispatches each request to either a tool-calling backend or a general
// reasoning backend. If one of them is nil the other serves every request.
type Router struct {
	tools     Model
	reasoning Model
	opts      RouterOptions
}

// ErrNoBackend is returned when a Router has no backend configured.
var ErrNoBackend = errors.New("model router has no backend")

// NewRouter creates a Router.
func NewRouter(tools, reasoning Model, optFns ...func(o *RouterOptions)) *Router {
	opts := RouterOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Router{tools: tools, reasoning: reasoning, opts: opts}
}

// Select returns the backend serving p for req.
func (r *Router) Select(p Profile, req Request) Model {
	if p == ProfileAuto {
		p = ProfileReasoning
		if len(req.Tools) > 0 {
			p = ProfileTools
		}
	}

	primary, secondary := r.reasoning, r.tools
	if p == ProfileTools {
		primary, secondary = r.tools, r.reasoning
	}

	if primary != nil {
		return primary
	}

	return secondary
}

// Generate implements Model.
func (r *Router) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	if req.Effort == EffortDefault {
		req.Effort = r.opts.DefaultEffort
	}

	m := r.Select(ProfileFromContext(ctx), req)
	if m == nil {
		respCh := make(chan Response)
		errCh := make(chan error, 1)
		errCh <- ErrNoBackend
		close(respCh)
		close(errCh)

		return respCh, errCh
	}

	return m.Generate(ctx, req)
}

// Info implements Model. It reports the tool-calling backend when present.
func (r *Router) Info() Info {
	m := r.tools
	if m == nil {
		m = r.reasoning
	}
	if m == nil {
		return Info{Name: "router", Provider: "router"}
	}

	info := m.Info()
	info.Provider = "router/" + info.Provider

	return info
}
