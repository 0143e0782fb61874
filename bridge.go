// Package owinbridge connects an OWIN style hosting environment to an
// [engine.Engine]. A Bridge maps the environment into an engine request,
// waits for the engine to complete asynchronously and writes the engine
// response back into the environment before disposing the request context.
package owinbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iaconlabs/owinbridge/engine"
	"github.com/iaconlabs/owinbridge/owin"
)

// DefaultEnvironmentKey is the Context.Items key holding the environment.
const DefaultEnvironmentKey = "owin.Environment"

// Options configures a Bridge. The zero value is usable.
type Options struct {
	// PerformPassThrough decides, once the engine completed, whether the
	// response is discarded and the next delegate answers instead. Only
	// consulted by Middleware.
	PerformPassThrough func(c *engine.Context) bool
	// EnableClientCertificates forwards the TLS client certificate of the
	// environment to the engine request.
	EnableClientCertificates bool
	// ValidateEnvironment checks the environment with owin.Validate before
	// mapping it.
	ValidateEnvironment bool
	// EnvironmentKey overrides DefaultEnvironmentKey.
	EnvironmentKey string `validate:"omitempty,printascii"`
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Bridge adapts an engine.Engine to the hosting environment.
type Bridge struct {
	engine engine.Engine
	opts   Options
	log    *slog.Logger
	envKey string
}

// New returns a Bridge serving requests with e.
func New(e engine.Engine, opts Options) (*Bridge, error) {
	if e == nil {
		return nil, ErrNilEngine
	}
	if err := owin.GetValidator().Struct(opts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	b := &Bridge{engine: e, opts: opts, log: opts.Logger, envKey: opts.EnvironmentKey}
	if b.log == nil {
		b.log = slog.Default()
	}
	if b.envKey == "" {
		b.envKey = DefaultEnvironmentKey
	}
	return b, nil
}

// Invoke serves env with the engine. It is an owin.AppFunc and never passes
// the request through: the engine response is always written.
func (b *Bridge) Invoke(env owin.Environment) error {
	c, err := b.process(env)
	if err != nil {
		return err
	}
	return b.respond(env, c)
}

// Handle is the asynchronous form of Invoke. The returned channel receives
// exactly one value.
func (b *Bridge) Handle(env owin.Environment) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- b.Invoke(env)
	}()
	return done
}

// Middleware returns the bridge as an owin.Middleware. When
// Options.PerformPassThrough reports true for a completed request the engine
// response is dropped and next is invoked with the environment.
func (b *Bridge) Middleware() owin.Middleware {
	return func(next owin.AppFunc) owin.AppFunc {
		return func(env owin.Environment) error {
			c, err := b.process(env)
			if err != nil {
				return err
			}
			if next != nil && b.opts.PerformPassThrough != nil && b.opts.PerformPassThrough(c) {
				b.log.Debug("owinbridge: passing request through",
					slog.String("method", c.Request.Method),
					slog.String("path", c.Request.URL.Path),
					slog.Int("status", c.Response.StatusCode))
				b.dispose(c)
				return next(env)
			}
			return b.respond(env, c)
		}
	}
}

// EnvironmentFrom returns the environment a Bridge using
// [DefaultEnvironmentKey] attached to c.
func EnvironmentFrom(c *engine.Context) (owin.Environment, bool) {
	return environmentAt(c, DefaultEnvironmentKey)
}

// EnvironmentFrom returns the environment b attached to c under its
// configured key.
func (b *Bridge) EnvironmentFrom(c *engine.Context) (owin.Environment, bool) {
	return environmentAt(c, b.envKey)
}

func environmentAt(c *engine.Context, key string) (owin.Environment, bool) {
	if c == nil {
		return nil, false
	}
	env, ok := c.Items[key].(owin.Environment)
	return env, ok
}

type outcome struct {
	c   *engine.Context
	err error
}

// process maps env, runs the engine and waits for its completion or for the
// cancellation of the call.
func (b *Bridge) process(env owin.Environment) (*engine.Context, error) {
	if b.opts.ValidateEnvironment {
		if err := owin.Validate(env); err != nil {
			return nil, err
		}
	}

	req := b.newRequest(env)
	ctx := env.Context()

	done := make(chan outcome, 1)
	report := func(o outcome) {
		select {
		case done <- o:
		default:
			b.log.Warn("owinbridge: engine reported completion twice",
				slog.String("path", req.URL.Path))
			if o.c != nil {
				b.dispose(o.c)
			}
		}
	}

	pre := func(c *engine.Context) *engine.Context {
		c.Items[b.envKey] = env
		return c
	}

	b.start(ctx, req, pre, report)

	select {
	case o := <-done:
		return b.settle(ctx, o)
	case <-ctx.Done():
		// The engine may still complete; its context must be disposed then.
		go func() {
			if o := <-done; o.c != nil {
				b.dispose(o.c)
			}
		}()
		return nil, ctx.Err()
	}
}

func (b *Bridge) start(ctx context.Context, req *engine.Request, pre engine.PreRequestHook, report func(outcome)) {
	defer recoverEngine(b.log, func(err error) { report(outcome{err: err}) })
	b.engine.HandleRequest(ctx, req, pre,
		func(c *engine.Context) { report(outcome{c: c}) },
		func(err error) { report(outcome{err: err}) },
	)
}

func (b *Bridge) settle(ctx context.Context, o outcome) (*engine.Context, error) {
	switch {
	case o.err == nil && o.c == nil:
		return nil, fmt.Errorf("%w: completed without a context", ErrEngine)
	case o.err == nil:
		return o.c, nil
	case errors.Is(o.err, ErrEnginePanic):
		return nil, o.err
	case errors.Is(o.err, engine.ErrPanic):
		b.log.Error("owinbridge: engine panicked", slog.Any("error", o.err))
		return nil, fmt.Errorf("%w: %w", ErrEnginePanic, o.err)
	case ctx.Err() != nil && errors.Is(o.err, ctx.Err()):
		return nil, o.err
	default:
		return nil, fmt.Errorf("%w: %w", ErrEngine, o.err)
	}
}

func (b *Bridge) dispose(c *engine.Context) {
	if err := c.Dispose(); err != nil {
		b.log.Warn("owinbridge: disposing request context", slog.Any("error", err))
	}
}
