package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	primaryColor = lipgloss.Color("#3B5BDB")
	subtleColor  = lipgloss.Color("#868E96")

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginTop(1)

	SubtleStyle = lipgloss.NewStyle().
			Foreground(subtleColor)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#2B8A3E"))

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#C92A2A"))

	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
)

// newTable returns a bordered table; columns listed in numeric are right aligned.
func newTable(headers []string, numeric ...int) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(SubtleStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			for _, c := range numeric {
				if c == col {
					return numberStyle
				}
			}
			return cellStyle
		})
}

func formatAmount(v float64) string {
	return groupThousands(strconv.FormatFloat(v, 'f', 2, 64))
}

func formatCount(v float64) string {
	return groupThousands(strconv.FormatFloat(v, 'f', 0, 64))
}

func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		return sign + b.String() + "." + frac
	}
	return sign + b.String()
}

func formatOptional(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatAmount(*v)
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%+.1f%%", v)
}
