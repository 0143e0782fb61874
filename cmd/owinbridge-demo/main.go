// Command owinbridge-demo hosts a small application behind the bridge. The
// application is registered on the engine backend selected in the
// configuration, and the host exposes Prometheus metrics next to it.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	echoMid "github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/iaconlabs/owinbridge"
	"github.com/iaconlabs/owinbridge/adapter/chiadapter"
	"github.com/iaconlabs/owinbridge/adapter/echoadapter"
	"github.com/iaconlabs/owinbridge/adapter/fiberadapter"
	"github.com/iaconlabs/owinbridge/adapter/ginadapter"
	"github.com/iaconlabs/owinbridge/adapter/gorillaadapter"
	"github.com/iaconlabs/owinbridge/adapter/muxadapter"
	"github.com/iaconlabs/owinbridge/engine"
	"github.com/iaconlabs/owinbridge/hosting"
	"github.com/iaconlabs/owinbridge/internal/config"
	"github.com/iaconlabs/owinbridge/metrics"
	"github.com/iaconlabs/owinbridge/middleware"
	"github.com/iaconlabs/owinbridge/owin"
	"github.com/iaconlabs/owinbridge/router"
	"github.com/iaconlabs/owinbridge/server"
)

func main() {
	var (
		cfgPath = flag.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "path to a YAML configuration file")
		envPath = flag.String("env", ".env", "path to a .env file")
		addr    = flag.String("addr", "", "listen address, overrides the configuration")
		backend = flag.String("backend", "", "engine backend: mux, gorilla, chi, gin, echo or fiber")
	)
	flag.Parse()

	if err := run(*cfgPath, *envPath, *addr, *backend); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfgPath, envPath, addr, backend string) error {
	if err := config.LoadDotEnv(envPath); err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if backend != "" {
		cfg.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := cfg.Logger()
	slog.SetDefault(logger)

	rt, err := newRouter(cfg.Backend)
	if err != nil {
		return err
	}
	registerRoutes(rt)

	bridge, err := owinbridge.New(rt, owinbridge.Options{
		PerformPassThrough: func(c *engine.Context) bool {
			return c.Response.StatusCode == http.StatusNotFound
		},
		EnableClientCertificates: cfg.Bridge.ClientCertificates,
		ValidateEnvironment:      cfg.Bridge.ValidateEnvironment,
		Logger:                   logger,
	})
	if err != nil {
		return err
	}

	app, reg, err := buildApp(cfg, logger, bridge)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	mux.Handle("/", hosting.NewHandler(app, hosting.Options{PathBase: cfg.Server.PathBase, Logger: logger}))

	srv := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, mux)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go printBanner(cfg, srv)
	return srv.Run(ctx)
}

func newRouter(name string) (router.Router, error) {
	switch name {
	case "mux":
		return muxadapter.NewMuxAdapter(nil), nil
	case "gorilla":
		return gorillaadapter.NewGorillaAdapter(), nil
	case "chi":
		return chiadapter.NewChiAdapter(), nil
	case "gin":
		return ginadapter.NewGinAdapter(), nil
	case "echo":
		return echoadapter.NewEchoAdapter(), nil
	case "fiber":
		return fiberadapter.NewFiberAdapter(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

// buildApp wraps the bridge with the host middlewares. Requests the engine
// does not route fall through to notFound.
func buildApp(cfg *config.Config, logger *slog.Logger, bridge *owinbridge.Bridge) (owin.AppFunc, *prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return nil, nil, err
	}

	mws := []owin.Middleware{
		middleware.Recovery(logger, cfg.Level() == slog.LevelDebug),
		m.Instrument(),
		middleware.RequireEnvironment(),
	}
	if cfg.RateLimit.RPS > 0 {
		mws = append(mws, middleware.RateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), max(cfg.RateLimit.Burst, 1))))
	}
	if cfg.Auth.User != "" {
		mws = append(mws, middleware.BasicAuth(cfg.Auth.Realm, cfg.Auth.User, cfg.Auth.PasswordHash))
	}
	mws = append(mws, bridge.Middleware())

	return owin.Chain(notFound, mws...), reg, nil
}

func notFound(env owin.Environment) error {
	env.SetStatusCode(http.StatusNotFound)
	env.ResponseHeaders().Set("Content-Type", "text/plain; charset=utf-8")
	_, err := fmt.Fprintf(env.ResponseBody(), "no route for %s %s\n", env.Method(), env.Path())
	return err
}

func registerRoutes(rt router.Router) {
	rt.Use(ginadapter.FromGin(gin.Recovery()))
	rt.Use(echoadapter.FromEcho(echoMid.CORSWithConfig(echoMid.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	})))

	rt.GET("/hello/:name", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintf(w, "Hello, %s!\n", rt.Param(r, "name"))
	})

	rt.POST("/echo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", r.Header.Get("Content-Type"))
		_, _ = io.Copy(w, r.Body)
	})

	rt.GET("/cookie", func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "visited", Value: "yes", Path: "/"})
		w.WriteHeader(http.StatusNoContent)
	})

	rt.GET("/stream", func(w http.ResponseWriter, _ *http.Request) {
		for i := range 3 {
			_, _ = fmt.Fprintf(w, "chunk %d\n", i)
		}
	})

	rt.GET("/files/*path", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, "file: %s\n", rt.Param(r, "path"))
	})
}

func printBanner(cfg *config.Config, srv *server.Server) {
	addr := srv.Addr()
	if addr == "" {
		return
	}
	title := color.New(color.FgCyan, color.Bold)
	label := color.New(color.FgHiBlack)

	_, _ = title.Println("owinbridge demo")
	_, _ = label.Print("  backend  ")
	fmt.Println(cfg.Backend)
	_, _ = label.Print("  listen   ")
	fmt.Println("http://" + addr + cfg.Server.PathBase)
	if cfg.Metrics.Enabled {
		_, _ = label.Print("  metrics  ")
		fmt.Println("http://" + addr + cfg.Metrics.Path)
	}
	_, _ = color.New(color.FgGreen).Println("  try: curl -i http://" + addr + cfg.Server.PathBase + "/hello/world")
}

