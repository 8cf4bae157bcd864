package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/paywatch/internal/config"
	pwsync "github.com/alfredjeanlab/paywatch/internal/sync"
)

var exportCmd = &cobra.Command{
	Use:               "export [file]",
	Short:             "Write every persisted state as JSONL",
	GroupID:           "system",
	Args:              cobra.MaximumNArgs(1),
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		out := os.Stdout
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		return pwsync.ExportJSONL(cmd.Context(), st, out)
	},
}

var importCmd = &cobra.Command{
	Use:               "import <file>",
	Short:             "Restore persisted states from a JSONL export",
	GroupID:           "system",
	Args:              cobra.ExactArgs(1),
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		in := os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		n, err := pwsync.ImportJSONL(cmd.Context(), st, in)
		if err != nil {
			return fmt.Errorf("import stopped after %d states: %w", n, err)
		}
		fmt.Printf("imported %d states\n", n)
		return nil
	},
}
