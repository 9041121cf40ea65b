package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"sales-dashboard/internal/forecast"
	"sales-dashboard/internal/models"
)

func forecastCmd(env *cliEnv) *cobra.Command {
	var (
		months         int
		dimension      string
		value          string
		year, category string
		start, end     string
	)

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Fetch a forecast and print its monthly buckets and stats",
		Example: `  FORECAST_TOKEN=... salesctl forecast --months 12
  salesctl forecast --token $TOKEN --dimension Airline --value Emirates`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			query, err := parseQuery(year, category, start, end)
			if err != nil {
				return err
			}

			client := forecast.NewClient(env.cfg.Forecast, env.logger)
			projector := forecast.NewProjector(client, env.logger)

			projection, err := projector.Project(cmd.Context(), env.v.GetString("forecast.token"), forecast.Request{
				Months:    months,
				Dimension: dimension,
				Value:     value,
				Query:     query,
			})
			if err != nil {
				return err
			}

			title := "Overall forecast"
			if dimension != "" && dimension != forecast.Overall {
				title = fmt.Sprintf("Forecast for %s = %s", dimension, value)
			}
			renderProjection(cmd.OutOrStdout(), title, projection)
			return nil
		},
	}

	cmd.Flags().String("token", "", "bearer token for the forecast service (default: $FORECAST_TOKEN)")
	_ = env.v.BindPFlag("forecast.token", cmd.Flags().Lookup("token"))
	cmd.Flags().IntVarP(&months, "months", "m", forecast.DefaultHorizon, "forecast horizon in months")
	cmd.Flags().StringVarP(&dimension, "dimension", "d", "", "split by this dimension (Sector, Airline, Ag Company, ...)")
	cmd.Flags().StringVar(&value, "value", "", "dimension value to forecast")
	cmd.Flags().StringVar(&year, "year", "", "only points of this year")
	cmd.Flags().StringVar(&category, "category", "", "only points of this category")
	cmd.Flags().StringVar(&start, "start", "", "drop points before this day (2006-01-02)")
	cmd.Flags().StringVar(&end, "end", "", "drop historical points after this day (2006-01-02)")

	return cmd
}

func parseQuery(year, category, start, end string) (forecast.Query, error) {
	q := forecast.Query{Year: year, Category: category}
	var err error
	if q.Start, err = parseDay(start); err != nil {
		return q, fmt.Errorf("invalid --start: %w", err)
	}
	if q.End, err = parseDay(end); err != nil {
		return q, fmt.Errorf("invalid --end: %w", err)
	}
	return q, nil
}

func renderProjection(w io.Writer, title string, p models.Projection) {
	fmt.Fprintln(w, TitleStyle.Render(title))

	stats := newTable([]string{"Avg Historical", "Months", "Next Month", "Next Forecast", "Growth"}, 0, 1, 3, 4).
		Row(
			formatAmount(p.Stats.AvgHistorical),
			strconv.Itoa(p.Stats.HistoricalCount),
			p.Stats.NextMonth,
			formatOptional(p.Stats.NextMonthForecast),
			formatPercent(p.Stats.GrowthPercentage),
		)
	fmt.Fprintln(w, stats.String())

	if len(p.Buckets) == 0 {
		fmt.Fprintln(w, SubtleStyle.Render("No forecast data for the selected filters."))
		return
	}

	t := newTable([]string{"Month", "Actual", "Forecast", ""}, 1, 2)
	for _, b := range p.Buckets {
		marker := ""
		if b.IsFuture {
			marker = "forecast"
		}
		t.Row(b.Month, formatOptional(b.Actual), formatOptional(b.Forecast), marker)
	}
	fmt.Fprintln(w, t.String())
}
