package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/graffiti-garden/implementation-federated/internal/auth"
	"github.com/graffiti-garden/implementation-federated/internal/cache"
	"github.com/graffiti-garden/implementation-federated/internal/config"
	"github.com/graffiti-garden/implementation-federated/internal/engine"
	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
	"github.com/graffiti-garden/implementation-federated/internal/local"
	"github.com/graffiti-garden/implementation-federated/internal/objstore"
	"github.com/graffiti-garden/implementation-federated/internal/remote"
	"github.com/graffiti-garden/implementation-federated/internal/router"
	"github.com/graffiti-garden/implementation-federated/internal/schema"
)

// client is the engine stack a command runs against.
type client struct {
	cfg    *config.Config
	db     *objstore.Store
	engine *engine.Engine
	sess   graffiti.Session
	out    *OutputFormatter
	logger *slog.Logger
}

// loadConfig reads the configured settings and applies flag overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	return cfg, nil
}

// openClient wires the local store and the remote client behind a router,
// with the engine's cache recording the writes of both.
func openClient(opts *RootOptions, cmd *cobra.Command) (*client, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := opts.logger
	if logger == nil {
		logger = slog.Default()
	}

	var dbOpts []objstore.Option
	if opts.Clock != nil {
		dbOpts = append(dbOpts, objstore.WithClock(opts.Clock))
	}
	logger.Debug("opening database", "path", cfg.Database)
	db, err := objstore.Open(cfg.Database, dbOpts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	compiler := schema.NewCompiler()
	c := cache.New(compiler, cache.WithLogger(logger))
	store := local.New(db, compiler, local.WithRecorder(c), local.WithLogger(logger))
	pods := remote.New(compiler,
		remote.WithSources(cfg.Sources...),
		remote.WithRecorder(c),
		remote.WithLogger(logger))

	routerOpts := []router.Option{router.WithLogger(logger)}
	if opts.Names != nil {
		routerOpts = append(routerOpts, router.WithNames(opts.Names))
	}
	r := router.New(store, pods, routerOpts...)

	sess, err := session(cfg)
	if err != nil {
		db.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start session", err)
	}
	logger.Debug("session ready", "actor", sess.Actor, "remote", router.RemoteCapable(sess), "home", sess.Source)

	return &client{
		cfg:    cfg,
		db:     db,
		engine: engine.New(r, c, compiler, engine.WithLogger(logger)),
		sess:   sess,
		out:    newFormatter(opts, cmd),
		logger: logger,
	}, nil
}

// session logs the configured actor in when the config allows reaching
// pods, and returns a local-only session otherwise.
func session(cfg *config.Config) (graffiti.Session, error) {
	if !cfg.RemoteCapable() {
		return graffiti.Session{Actor: cfg.Actor}, nil
	}
	issuer := auth.NewIssuer([]byte(cfg.TokenSecret), auth.WithTTL(cfg.TokenTTL))
	return auth.NewSessions(issuer, nil).Login(cfg.Actor, cfg.PodURL)
}

func (c *client) Close() {
	if err := c.db.Close(); err != nil {
		c.logger.Error("error closing database", "error", err)
	}
}

// withClient runs fn against a freshly opened client and closes it after.
func withClient(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, c *client) error) error {
	c, err := openClient(opts, cmd)
	if err != nil {
		return err
	}
	defer c.Close()
	ctx, stop := commandContext(cmd)
	defer stop()
	return fn(ctx, c)
}

// commandContext is the command's context, cancelled on interrupt.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
