package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/paywatch/internal/ingest"
	"github.com/alfredjeanlab/paywatch/internal/model"
)

// readIngestRequest builds a request from --file (or "-" for stdin) when
// given, otherwise from the event flags.
func readIngestRequest(cmd *cobra.Command) (ingest.Request, error) {
	var req ingest.Request
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		var r io.Reader = os.Stdin
		if path != "-" {
			f, err := os.Open(path)
			if err != nil {
				return req, err
			}
			defer f.Close()
			r = f
		}
		if err := json.NewDecoder(r).Decode(&req); err != nil {
			return req, fmt.Errorf("decoding %s: %w", path, err)
		}
		return req, nil
	}

	src, _ := cmd.Flags().GetString("source")
	key, _ := cmd.Flags().GetString("key")
	id, _ := cmd.Flags().GetInt64("id")
	postedAt, _ := cmd.Flags().GetInt64("posted-at")
	if postedAt == 0 {
		postedAt = time.Now().UnixMilli()
	}
	req.Event = model.Event{
		SourceID:   src,
		Key:        key,
		ID:         id,
		PostedAtMs: postedAt,
		WhenMs:     postedAt,
	}
	for flag, dst := range map[string]**string{
		"title":    &req.Event.Title,
		"text":     &req.Event.Text,
		"big-text": &req.Event.BigText,
		"sub-text": &req.Event.SubText,
		"category": &req.Event.Category,
	} {
		if cmd.Flags().Changed(flag) {
			v, _ := cmd.Flags().GetString(flag)
			*dst = model.String(v)
		}
	}
	return req, nil
}

func printIngestResult(res ingest.Result) error {
	if jsonOutput {
		if res.Ignored {
			return printJSON(map[string]bool{"ignored": true})
		}
		return printJSON(res.State)
	}
	if res.Ignored {
		fmt.Println("ignored: source is not watched")
		return nil
	}
	fmt.Printf("%s: active=%t events=%d\n", res.State.SourceID, res.State.HasActive, len(res.State.ActiveSnapshot))
	return nil
}

var postCmd = &cobra.Command{
	Use:     "post",
	Short:   "Report a posted notification",
	GroupID: "ingest",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := readIngestRequest(cmd)
		if err != nil {
			return err
		}
		res, err := httpClient.Posted(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("posting event: %w", err)
		}
		return printIngestResult(res)
	},
}

var removeCmd = &cobra.Command{
	Use:     "remove",
	Short:   "Report a removed notification",
	GroupID: "ingest",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := readIngestRequest(cmd)
		if err != nil {
			return err
		}
		res, err := httpClient.Removed(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("removing event: %w", err)
		}
		return printIngestResult(res)
	},
}

func init() {
	for _, c := range []*cobra.Command{postCmd, removeCmd} {
		c.Flags().StringP("file", "f", "", `read the request body from a JSON file ("-" for stdin)`)
		c.Flags().String("source", "", "source id")
		c.Flags().String("key", "", "notification key")
		c.Flags().Int64("id", 0, "notification id")
		c.Flags().Int64("posted-at", 0, "post time in epoch ms (default now)")
		c.Flags().String("title", "", "title")
		c.Flags().String("text", "", "text")
		c.Flags().String("big-text", "", "expanded text")
		c.Flags().String("sub-text", "", "sub text")
		c.Flags().String("category", "", "category")
	}
}
