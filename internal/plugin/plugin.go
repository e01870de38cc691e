package plugin

import "context"

// Plugin is the contract every extension fulfils. Activate is called once
// per activation with a fresh Context; everything it registers through that
// Context is reversed after Deactivate returns.
type Plugin interface {
	Activate(ctx context.Context, pc *Context) error
	Deactivate(ctx context.Context, pc *Context) error
}

// Loadable is implemented by plugins that read code or data before
// activation.
type Loadable interface {
	Load(ctx context.Context) error
}

// Funcs adapts plain functions to Plugin. A nil function is a no-op.
type Funcs struct {
	OnActivate   func(ctx context.Context, pc *Context) error
	OnDeactivate func(ctx context.Context, pc *Context) error
}

// Activate implements Plugin.
func (f Funcs) Activate(ctx context.Context, pc *Context) error {
	if f.OnActivate == nil {
		return nil
	}
	return f.OnActivate(ctx, pc)
}

// Deactivate implements Plugin.
func (f Funcs) Deactivate(ctx context.Context, pc *Context) error {
	if f.OnDeactivate == nil {
		return nil
	}
	return f.OnDeactivate(ctx, pc)
}
