package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentic-research/harvest/api"
	"github.com/agentic-research/harvest/internal/content"
	"github.com/agentic-research/harvest/internal/module"
	"github.com/agentic-research/harvest/internal/store"
)

// errReportFailed is returned when the module finished but not every hit was saved.
var errReportFailed = errors.New("some interesting files could not be saved (see log)")

func newSaveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save [image.db]",
		Short: "Copy every interesting file into an output directory",
		Long: `Run the save-interesting-files module over an image index. File content
comes from the index, or from --carve-dir when content was carved out to
<carve-dir>/<file id>. The command fails when any hit could not be saved;
the hits that could be saved are still written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.OpenSQLiteStore(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			var src content.Source = st
			if dir := viper.GetString(carveDirKey); dir != "" {
				src = content.NewDirSource(dir)
			}

			m := module.New(st, src, slog.Default())
			m.Initialize(viper.GetString(outputKey))
			status := m.Report(cmd.Context())
			if fin := m.Finalize(); fin != api.StatusOK {
				slog.Warn("save: finalize", "status", fin.String())
			}
			if status != api.StatusOK {
				return errReportFailed
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved interesting files to %s.\n", m.OutputRoot())
			return nil
		},
	}
	cmd.Flags().StringP(outputFlagName, "o", viper.GetString(outputKey), "output directory for saved files")
	bindFlagToConfig(cmd.Flags().Lookup(outputFlagName), outputKey)

	cmd.Flags().String(carveDirFlagName, viper.GetString(carveDirKey), "read file content from <dir>/<file id> instead of the index")
	bindFlagToConfig(cmd.Flags().Lookup(carveDirFlagName), carveDirKey)
	return cmd
}
