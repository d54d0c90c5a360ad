package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
	"github.com/graffiti-garden/implementation-federated/internal/stream"
)

// QueryOptions holds the flags shared by the discovery commands.
type QueryOptions struct {
	*RootOptions
	Channels []string
	Schema   string
	Sources  []string
	Skip     int
	Limit    int
	Since    int64
}

func (o *QueryOptions) addFlags(cmd *cobra.Command, window bool) {
	cmd.Flags().StringArrayVar(&o.Sources, "source", nil, "pod to query instead of the configured sources (repeatable)")
	cmd.Flags().Int64Var(&o.Since, "since", -1, "only objects modified after this unix millisecond timestamp, tombstones included")
	if window {
		cmd.Flags().IntVar(&o.Skip, "skip", 0, "drop the first n live matches")
		cmd.Flags().IntVar(&o.Limit, "limit", -1, "stop after n live matches")
	}
}

// query builds the query from the flags. Unset modifiers stay nil so the
// stores apply their defaults.
func (o *QueryOptions) query(cmd *cobra.Command) (graffiti.Query, error) {
	schema, err := parseSchema(o.Schema)
	if err != nil {
		return graffiti.Query{}, err
	}
	var qopts []graffiti.QueryOption
	if len(o.Sources) > 0 {
		qopts = append(qopts, graffiti.WithSources(o.Sources...))
	}
	if cmd.Flags().Changed("since") {
		qopts = append(qopts, graffiti.WithIfModifiedSince(o.Since))
	}
	if cmd.Flags().Changed("skip") {
		qopts = append(qopts, graffiti.WithSkip(o.Skip))
	}
	if cmd.Flags().Changed("limit") {
		qopts = append(qopts, graffiti.WithLimit(o.Limit))
	}
	return graffiti.NewQuery(o.Channels, schema, qopts...), nil
}

// NewDiscoverCommand creates the discover command.
func NewDiscoverCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List the objects posted in channels",
		Long: `List the objects in any of the given channels, from the local store first
and then from every pod. Errors from individual pods are reported and do
not stop the listing; the command exits with status 1 if any occurred.

Example:
  graffiti discover --channel general --limit 20
  graffiti discover --channel general --schema '{"required":["text"]}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := opts.query(cmd)
			if err != nil {
				return err
			}
			return withClient(rootOpts, cmd, func(ctx context.Context, c *client) error {
				return drain(c.out, c.engine.Discover(ctx, q, c.sess), c.out.Object)
			})
		},
	}

	cmd.Flags().StringArrayVar(&opts.Channels, "channel", nil, "channel to read (repeatable)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "JSON Schema results must satisfy")
	opts.addFlags(cmd, true)
	return cmd
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the objects posted in channels",
		Long: `Print the objects in the given channels and keep printing every change
until interrupted. A tombstone is printed when a listed object is deleted
or leaves the channels.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := opts.query(cmd)
			if err != nil {
				return err
			}
			return withClient(rootOpts, cmd, func(ctx context.Context, c *client) error {
				return drain(c.out, c.engine.SynchronizeDiscover(ctx, q, c.sess), c.out.Object)
			})
		},
	}

	cmd.Flags().StringArrayVar(&opts.Channels, "channel", nil, "channel to follow (repeatable)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "JSON Schema results must satisfy")
	opts.addFlags(cmd, true)
	return cmd
}

// NewChannelsCommand creates the channels command.
func NewChannelsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List the channels you have posted in",
		Long: `List every channel holding live objects of the configured actor, with
the number of objects and the latest modification.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := opts.query(cmd)
			if err != nil {
				return err
			}
			return withClient(rootOpts, cmd, func(ctx context.Context, c *client) error {
				return drain(c.out, c.engine.ChannelStats(ctx, q, c.sess), c.out.Stat)
			})
		},
	}

	opts.addFlags(cmd, false)
	return cmd
}

// NewOrphansCommand creates the orphans command.
func NewOrphansCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "List your objects that are in no channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := opts.query(cmd)
			if err != nil {
				return err
			}
			return withClient(rootOpts, cmd, func(ctx context.Context, c *client) error {
				return drain(c.out, c.engine.RecoverOrphans(ctx, q, c.sess), c.out.Object)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "JSON Schema results must satisfy")
	opts.addFlags(cmd, true)
	return cmd
}

// drain prints every result of s, errors in-band, and fails with
// ExitFailure when any error occurred.
func drain[T any](out *OutputFormatter, s *stream.Stream[T], emit func(T) error) error {
	defer s.Cancel()
	failures := 0
	for r := range s.All() {
		if r.Err != nil {
			failures++
			if err := out.Failure(r.Err); err != nil {
				return err
			}
			continue
		}
		if err := emit(r.Value); err != nil {
			return err
		}
	}
	if failures > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("stream reported %d error(s)", failures))
	}
	return nil
}
