package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/agentic-research/harvest/api"
	"github.com/agentic-research/harvest/internal/store"
)

func newHitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hits [image.db]",
		Short: "List the interesting-file hits of an image index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.OpenSQLiteStore(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			hits, err := st.HitsOfType(cmd.Context(), api.ArtifactInterestingFileHit)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(hits))
			for _, h := range hits {
				name, kind := "<missing>", ""
				rec, err := st.GetFileRecord(cmd.Context(), h.SubjectID)
				switch {
				case err == nil:
					name, kind = rec.Name, rec.Type.String()
				case !errors.Is(err, store.ErrNotFound):
					return err
				}
				rows = append(rows, []string{
					fmt.Sprintf("%d", h.ArtifactID),
					fmt.Sprintf("%d", h.SubjectID),
					name,
					kind,
					strings.Join(h.SetNames(), ", "),
					comments(h),
				})
			}
			renderHitsTable(cmd.OutOrStdout(), rows)
			return nil
		},
	}
}

func comments(h api.Hit) string {
	var out []string
	for _, a := range h.Attributes {
		if a.Type == api.AttrComment {
			out = append(out, a.Value)
		}
	}
	return strings.Join(out, "; ")
}

func renderHitsTable(w io.Writer, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Artifact", "File", "Name", "Type", "Sets", "Comment"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.AppendBulk(rows)
	table.SetFooter([]string{"", "", "", "", "Total", fmt.Sprintf("%d", len(rows))})
	table.Render()
}
