package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentic-research/harvest/internal/ingest"
	"github.com/agentic-research/harvest/internal/store"
)

func newIndexCmd() *cobra.Command {
	var (
		exclude []string
		force   bool
	)
	cmd := &cobra.Command{
		Use:   "index [source-dir] [image.db]",
		Short: "Build an image index from a directory",
		Long: `Walk a directory and record every directory and regular file, with its
content and sniffed MIME type, in a new SQLite image index. Ids are assigned
depth-first in name order; the source directory itself is id 1.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, output := args[0], args[1]

			if _, err := os.Stat(output); err == nil {
				if !force {
					return fmt.Errorf("%s already exists (use --force to replace it)", output)
				}
				if err := os.Remove(output); err != nil {
					return fmt.Errorf("remove %s: %w", output, err)
				}
			} else if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("stat %s: %w", output, err)
			}

			writer, err := store.NewSQLiteWriter(output)
			if err != nil {
				return err
			}

			start := time.Now()
			stats, err := ingest.IndexDirectory(cmd.Context(), source, writer, ingest.IndexOptions{
				Exclude: exclude,
				Logger:  slog.Default(),
			})
			if closeErr := writer.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d files and %d directories (%d bytes, %d skipped) into %s in %v.\n",
				stats.Files, stats.Dirs, stats.Bytes, stats.Skipped, output, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&exclude, "exclude", "x", nil, "skip entries whose name matches this glob (can be repeated)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "replace an existing index")
	return cmd
}
