package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
)

// PutOptions holds flags for the put command.
type PutOptions struct {
	*RootOptions
	Name     string
	Source   string
	Channels []string
	Allowed  []string
	Private  bool
	Schema   string
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put <value>",
		Short: "Store a JSON value as a new object",
		Long: `Store a JSON value at a location owned by the configured actor.

Without --name a fresh name is generated. Without --source the object goes
to your home pod, or to the local store when the session is local-only.
Objects are public unless --allow or --private restricts their readers.

Example:
  graffiti put '{"text":"hello"}' --channel general
  graffiti put '{"draft":true}' --source local --name draft --private`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "object name (generated if empty)")
	cmd.Flags().StringVar(&opts.Source, "source", "", `pod URL or "local" (default: home pod, else local)`)
	cmd.Flags().StringArrayVar(&opts.Channels, "channel", nil, "channel to publish in (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Allowed, "allow", nil, "actor allowed to read the object (repeatable)")
	cmd.Flags().BoolVar(&opts.Private, "private", false, "restrict readers to the owner and --allow actors")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "JSON Schema the value must satisfy, kept for later patches")

	return cmd
}

func runPut(opts *PutOptions, value string, cmd *cobra.Command) error {
	if !json.Valid([]byte(value)) {
		return NewExitError(ExitCommandError, "value is not valid JSON")
	}
	schema, err := parseSchema(opts.Schema)
	if err != nil {
		return err
	}

	obj := graffiti.Object{
		Location: graffiti.Location{Source: opts.Source, Name: opts.Name},
		Value:    json.RawMessage(value),
		Channels: opts.Channels,
	}
	if obj.Channels == nil {
		obj.Channels = []string{}
	}
	if opts.Private || len(opts.Allowed) > 0 {
		obj.Allowed = append([]string{}, opts.Allowed...)
	}

	return withClient(opts.RootOptions, cmd, func(ctx context.Context, c *client) error {
		previous, err := c.engine.Put(ctx, obj, schema, c.sess)
		if err != nil {
			return WrapExitError(ExitFailure, "put failed", err)
		}
		return c.out.Written("put", previous)
	})
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <location>",
		Short: "Print the latest state of an object",
		Long: `Print the latest state at a location, <source>/<actor>/<name> with actor
and name path-escaped. A deleted object prints as its tombstone.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseLocation(args[0])
			if err != nil {
				return err
			}
			return withClient(rootOpts, cmd, func(ctx context.Context, c *client) error {
				obj, err := c.engine.Get(ctx, loc, c.sess)
				if err != nil {
					return WrapExitError(ExitFailure, "get failed", err)
				}
				return c.out.Object(obj)
			})
		},
	}
	return cmd
}

// NewPatchCommand creates the patch command.
func NewPatchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patch <location> <patch>",
		Short: "Apply JSON patches to an object",
		Long: `Apply RFC 6902 operation lists to an object's value, channels and access
list. The patch is an object with any of the keys "value", "channels" and
"allowed". Either every list applies or nothing changes.

Example:
  graffiti patch local/alice/n1 '{"value":[{"op":"replace","path":"/text","value":"hi"}]}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseLocation(args[0])
			if err != nil {
				return err
			}
			var p graffiti.Patch
			if err := json.Unmarshal([]byte(args[1]), &p); err != nil {
				return WrapExitError(ExitCommandError, "invalid patch", err)
			}
			return withClient(rootOpts, cmd, func(ctx context.Context, c *client) error {
				previous, err := c.engine.Patch(ctx, p, loc, c.sess)
				if err != nil {
					return WrapExitError(ExitFailure, "patch failed", err)
				}
				return c.out.Written("patched", previous)
			})
		},
	}
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <location>",
		Short: "Delete an object, leaving a tombstone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseLocation(args[0])
			if err != nil {
				return err
			}
			return withClient(rootOpts, cmd, func(ctx context.Context, c *client) error {
				previous, err := c.engine.Delete(ctx, loc, c.sess)
				if err != nil {
					return WrapExitError(ExitFailure, "delete failed", err)
				}
				return c.out.Written("deleted", previous)
			})
		},
	}
	return cmd
}

func parseLocation(s string) (graffiti.Location, error) {
	loc, err := graffiti.ParseLocation(s)
	if err != nil {
		return graffiti.Location{}, WrapExitError(ExitCommandError, "invalid location", err)
	}
	return loc, nil
}

func parseSchema(s string) (graffiti.Schema, error) {
	if s == "" {
		return nil, nil
	}
	if !json.Valid([]byte(s)) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("schema is not valid JSON: %s", s))
	}
	return graffiti.Schema(s), nil
}
