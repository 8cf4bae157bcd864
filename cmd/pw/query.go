package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// resolveSource returns the source named on the command line, or the
// server's primary source. Over gRPC an empty id already means primary.
func resolveSource(ctx context.Context, args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if transport == "grpc" {
		return "", nil
	}
	srcs, err := httpClient.ListSources(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving primary source: %w", err)
	}
	return srcs.Primary, nil
}

var stateCmd = &cobra.Command{
	Use:     "state [source-id]",
	Short:   "Show whether a source has active notifications",
	GroupID: "query",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		src, err := resolveSource(ctx, args)
		if err != nil {
			return err
		}
		st, err := queryClient.GetState(ctx, src)
		if err != nil {
			return fmt.Errorf("getting state: %w", err)
		}
		if jsonOutput {
			return printJSON(st)
		}
		printState(os.Stdout, src, st)
		return nil
	},
}

var latestCmd = &cobra.Command{
	Use:     "latest [source-id]",
	Short:   "Show the most recent active notification",
	GroupID: "query",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		matching, _ := cmd.Flags().GetBool("matching")
		src, err := resolveSource(ctx, args)
		if err != nil {
			return err
		}
		get := queryClient.GetLatestEvent
		if matching {
			get = queryClient.GetLatestMatchingEvent
		}
		ev, err := get(ctx, src)
		if err != nil {
			return fmt.Errorf("getting latest event: %w", err)
		}
		if jsonOutput {
			return printJSON(ev)
		}
		printEvent(os.Stdout, ev)
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:     "snapshot [source-id]",
	Short:   "List the active notifications, newest first",
	GroupID: "query",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		src, err := resolveSource(ctx, args)
		if err != nil {
			return err
		}
		evs, err := queryClient.GetActiveSnapshot(ctx, src)
		if err != nil {
			return fmt.Errorf("getting snapshot: %w", err)
		}
		if jsonOutput {
			return printJSON(evs)
		}
		printSnapshot(os.Stdout, evs)
		return nil
	},
}

var authorizedCmd = &cobra.Command{
	Use:     "authorized [true|false]",
	Short:   "Show or set whether monitoring is authorized",
	GroupID: "query",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if len(args) == 1 {
			v, err := strconv.ParseBool(args[0])
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[0], err)
			}
			if err := httpClient.SetAuthorized(ctx, v); err != nil {
				return fmt.Errorf("setting authorization: %w", err)
			}
		}
		ok, err := queryClient.IsMonitoringAuthorized(ctx)
		if err != nil {
			return fmt.Errorf("getting authorization: %w", err)
		}
		if jsonOutput {
			return printJSON(map[string]bool{"authorized": ok})
		}
		fmt.Printf("Authorized: %t\n", ok)
		return nil
	},
}

var sourcesCmd = &cobra.Command{
	Use:     "sources",
	Short:   "List the watched sources",
	GroupID: "query",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		srcs, err := httpClient.ListSources(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing sources: %w", err)
		}
		if jsonOutput {
			return printJSON(srcs)
		}
		for _, id := range srcs.Sources {
			marker := " "
			if id == srcs.Primary {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, id)
		}
		return nil
	},
}

func init() {
	latestCmd.Flags().Bool("matching", false, "only consider payment notifications")
}
