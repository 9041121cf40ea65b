package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sales-dashboard/internal/storage"
)

func importCmd(env *cliEnv) *cobra.Command {
	var assign map[string]string

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Load a CSV export into the SQLite database",
		Long: `Parse a CSV export and append its rows to the SQLite sales table, creating
the schema if needed. --assign links user subjects to sales people so their
sessions only see their own rows.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			records, err := storage.ParseCSV(ctx, f)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			db, err := storage.NewSQLiteSource(env.cfg.Source, env.logger)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.EnsureSchema(ctx); err != nil {
				return err
			}

			n, err := db.Import(ctx, records)
			if err != nil {
				return err
			}

			for subject, salesPerson := range assign {
				if err := db.AssignSalesPerson(ctx, subject, salesPerson); err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, SuccessStyle.Render(fmt.Sprintf("Imported %d records into %s", n, env.cfg.Source.SQLitePath)))
			if len(assign) > 0 {
				fmt.Fprintln(w, SubtleStyle.Render(fmt.Sprintf("Assigned %d users", len(assign))))
			}
			return nil
		},
	}

	cmd.Flags().StringToStringVar(&assign, "assign", nil, "subject=sales person profile, repeatable")
	return cmd
}
