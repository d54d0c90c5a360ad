package cli

import (
	"github.com/spf13/cobra"

	"github.com/graffiti-garden/implementation-federated/internal/auth"
	"github.com/graffiti-garden/implementation-federated/internal/objstore"
	"github.com/graffiti-garden/implementation-federated/internal/pod"
	"github.com/graffiti-garden/implementation-federated/internal/schema"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a reference pod",
		Long: `Run a pod that stores objects in the configured SQLite database and
serves them over HTTP. Bearer tokens are verified with token_secret; the
clients of this pod must be configured with the same secret.

Example:
  graffiti serve --config pod.yaml --listen :8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if cfg.TokenSecret == "" {
		return NewExitError(ExitCommandError, "serve requires token_secret in the config")
	}
	listen := cfg.Listen
	if opts.Listen != "" {
		listen = opts.Listen
	}
	logger := opts.logger

	var dbOpts []objstore.Option
	if opts.Clock != nil {
		dbOpts = append(dbOpts, objstore.WithClock(opts.Clock))
	}
	db, err := objstore.Open(cfg.Database, dbOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	srv := pod.New(db, schema.NewCompiler(), auth.NewVerifier([]byte(cfg.TokenSecret), nil), pod.WithLogger(logger))

	ctx, stop := commandContext(cmd)
	defer stop()
	if err := srv.Serve(ctx, listen); err != nil {
		return WrapExitError(ExitFailure, "pod error", err)
	}
	return nil
}
