package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-research/harvest/internal/ingest"
	"github.com/agentic-research/harvest/internal/store"
)

func newFlagCmd() *cobra.Command {
	var (
		rulesPath string
		jsonPath  string
		selector  string
	)
	cmd := &cobra.Command{
		Use:   "flag [image.db]",
		Short: "Record interesting-file hits in an image index",
		Long: `Flag records of an image index as interesting files, either by matching
an HCL rules file against every record or by importing hits from a JSON
document. Each hit names the rule sets its file belongs to.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath := args[0]
			if (rulesPath == "") == (jsonPath == "") {
				return errors.New("exactly one of --rules or --json is required")
			}

			// Confirm this is an image index before the writer adds tables to it.
			st, err := store.OpenSQLiteStore(dbPath)
			if err != nil {
				return err
			}

			var flags []ingest.Flag
			var data []byte
			if rulesPath != "" {
				rules, err := ingest.LoadRules(rulesPath)
				if err != nil {
					_ = st.Close()
					return err
				}
				flags, err = rules.Collect(cmd.Context(), st)
				if err != nil {
					_ = st.Close()
					return err
				}
			} else {
				data, err = os.ReadFile(jsonPath)
				if err != nil {
					_ = st.Close()
					return fmt.Errorf("read hits: %w", err)
				}
			}
			if err := st.Close(); err != nil {
				return err
			}

			writer, err := store.NewSQLiteWriter(dbPath)
			if err != nil {
				return err
			}
			var n int
			if rulesPath != "" {
				err = ingest.WriteFlags(flags, writer)
				n = len(flags)
			} else {
				n, err = ingest.ImportHitsJSON(data, selector, writer)
			}
			if closeErr := writer.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}

			slog.Info("flag: hits recorded", "db", dbPath, "hits", n)
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d hits in %s.\n", n, dbPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&rulesPath, "rules", "", "HCL rules file")
	cmd.Flags().StringVar(&jsonPath, "json", "", "JSON document of hits")
	cmd.Flags().StringVar(&selector, "select", ingest.DefaultHitSelector, "JSONPath selecting hit objects in --json")
	return cmd
}
