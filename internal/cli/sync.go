package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Sources []string
	Follow  bool
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync <location>...",
		Short: "Fetch objects and reconcile them with the local view",
		Long: `Fetch each location and keep the fetched state when it is strictly newer
than what this client has seen. With --source, each location is fetched
from every given pod instead of its own source.

With --follow, a single location is printed and then reprinted on every
change until interrupted.

Example:
  graffiti sync local/alice/n1 https://pod.example/https%3A%2F%2Fpod.example%2Fbob/n2
  graffiti sync --follow local/alice/n1`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, args, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Sources, "source", nil, "pod to fetch every location from (repeatable)")
	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false, "keep printing changes to a single location")

	return cmd
}

func runSync(opts *SyncOptions, args []string, cmd *cobra.Command) error {
	if opts.Follow && len(args) != 1 {
		return NewExitError(ExitCommandError, "--follow takes exactly one location")
	}
	locs := make([]graffiti.Location, len(args))
	for i, arg := range args {
		loc, err := parseLocation(arg)
		if err != nil {
			return err
		}
		locs[i] = loc
	}

	return withClient(opts.RootOptions, cmd, func(ctx context.Context, c *client) error {
		if opts.Follow {
			return drain(c.out, c.engine.SynchronizeGet(ctx, locs[0], c.sess), c.out.Object)
		}

		failures := 0
		for _, res := range c.engine.Synchronize(ctx, locs, opts.Sources, c.sess) {
			if res.Err != nil {
				failures++
			}
			if err := c.out.Synced(res); err != nil {
				return err
			}
		}
		if failures > 0 {
			return NewExitError(ExitFailure, fmt.Sprintf("%d fetch(es) failed", failures))
		}
		return nil
	})
}
