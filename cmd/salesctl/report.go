package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"sales-dashboard/internal/aggregate"
	"sales-dashboard/internal/filters"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/storage"
)

func reportCmd(env *cliEnv) *cobra.Command {
	var (
		selections  map[string]string
		start, end  string
		groups      []string
		top         int
		subject     string
		salesPerson string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print totals and chart groups for the filtered records",
		Example: `  salesctl report -f year=2024 -f airline=Emirates
  salesctl report --start 2024-01-01 --end 2024-03-31 --group TotalRevenueByCity`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			state, err := filters.FromMap(selections, start, end)
			if err != nil {
				return err
			}

			specs, err := selectSpecs(groups)
			if err != nil {
				return err
			}

			records, err := loadRecords(cmd, env, storage.Scope{Subject: subject, SalesPerson: salesPerson})
			if err != nil {
				return err
			}

			summary := aggregate.Summarize(records, state, specs)
			renderSummary(cmd.OutOrStdout(), summary, state, top)
			return nil
		},
	}

	cmd.Flags().StringToStringVarP(&selections, "filter", "f", nil, "dimension=value selection, repeatable (year, month, product, airline, ...)")
	cmd.Flags().StringVar(&start, "start", "", "first day of the date range (2006-01-02)")
	cmd.Flags().StringVar(&end, "end", "", "last day of the date range (2006-01-02)")
	cmd.Flags().StringSliceVarP(&groups, "group", "g", nil, "chart groups to print (default: all)")
	cmd.Flags().IntVar(&top, "top", 10, "rows per chart group, 0 for all")
	cmd.Flags().StringVar(&subject, "subject", "", "user whose profile scopes the records")
	cmd.Flags().StringVar(&salesPerson, "sales-person", "", "only records of this sales person")

	return cmd
}

func selectSpecs(names []string) ([]aggregate.Spec, error) {
	if len(names) == 0 {
		return aggregate.DefaultChartGroups, nil
	}
	specs := make([]aggregate.Spec, 0, len(names))
	for _, name := range names {
		spec, ok := aggregate.FindSpec(aggregate.DefaultChartGroups, name)
		if !ok {
			return nil, fmt.Errorf("unknown chart group %q", name)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func loadRecords(cmd *cobra.Command, env *cliEnv, scope storage.Scope) ([]models.Transaction, error) {
	ctx := cmd.Context()
	src, err := storage.Open(ctx, env.cfg.Source, env.logger)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	if env.cfg.Source.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, env.cfg.Source.LoadTimeout)
		defer cancel()
	}

	records, err := src.Load(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load records from %s: %w", src.Name(), err)
	}
	env.logger.Debug("records loaded", "source", src.Name(), "count", len(records))
	return records, nil
}

func renderSummary(w io.Writer, summary aggregate.Summary, state filters.State, top int) {
	fmt.Fprintln(w, TitleStyle.Render("Sales report"))
	if active := state.Active(); len(active) > 0 {
		parts := make([]string, 0, len(active))
		for _, d := range filters.Dimensions {
			if v, ok := active[d]; ok {
				parts = append(parts, string(d)+"="+v)
			}
		}
		fmt.Fprintln(w, SubtleStyle.Render("Filters: "+strings.Join(parts, ", ")))
	}

	totals := newTable([]string{"Records", "Total Revenue", "Passengers"}, 0, 1, 2).
		Row(strconv.Itoa(summary.Count), formatAmount(summary.TotalRevenue), formatCount(summary.TotalPax))
	fmt.Fprintln(w, totals.String())

	if summary.Count == 0 {
		fmt.Fprintln(w, SubtleStyle.Render("No records match the selected filters."))
		return
	}

	for _, g := range summary.Groups {
		fmt.Fprintln(w, TitleStyle.Render(g.Title))
		t := newTable([]string{g.XKey, g.YKey}, 1)
		for i, p := range g.Data {
			if top > 0 && i == top {
				break
			}
			value := formatAmount(p.Value)
			if g.YKey != string(models.MeasureRevenue) {
				value = formatCount(p.Value)
			}
			t.Row(p.Key, value)
		}
		fmt.Fprintln(w, t.String())
		if top > 0 && len(g.Data) > top {
			fmt.Fprintln(w, SubtleStyle.Render(fmt.Sprintf("%d more not shown", len(g.Data)-top)))
		}
	}
}
