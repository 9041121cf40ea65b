package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"sales-dashboard/internal/filters"
	"sales-dashboard/internal/storage"
)

func optionsCmd(env *cliEnv) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "options",
		Short: "Print the selectable values of every filter dimension",
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := loadRecords(cmd, env, storage.Scope{})
			if err != nil {
				return err
			}

			options := filters.DeriveAll(records)
			t := newTable([]string{"Dimension", "Values", "Options"}, 1)
			for _, d := range filters.Dimensions {
				values := options[d][1:]
				shown := values
				if limit > 0 && len(shown) > limit {
					shown = shown[:limit]
				}
				list := strings.Join(shown, ", ")
				if len(shown) < len(values) {
					list += ", ..."
				}
				t.Row(string(d), strconv.Itoa(len(values)), list)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, TitleStyle.Render("Filter options"))
			fmt.Fprintln(w, SubtleStyle.Render(fmt.Sprintf("%d records", len(records))))
			fmt.Fprintln(w, t.String())
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 8, "values listed per dimension, 0 for all")
	return cmd
}
