package filters

import (
	"cmp"
	"slices"
	"strconv"

	"sales-dashboard/internal/models"
)

// Options holds the selectable values of every dimension, each led by All.
type Options map[Dimension][]string

// DeriveOptions collects the distinct values of d across records, sorts them
// and prepends All. Years sort newest first, everything else lexicographically.
func DeriveOptions(records []models.Transaction, d Dimension) []string {
	seen := make(map[string]struct{})
	values := make([]string, 0)
	for _, tx := range records {
		v, ok := d.Value(tx)
		if !ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}

	if d == Year {
		slices.SortFunc(values, compareYearsDesc)
	} else {
		slices.Sort(values)
	}

	return append([]string{All}, values...)
}

// DeriveAll derives the option list of every dimension.
func DeriveAll(records []models.Transaction) Options {
	opts := make(Options, len(Dimensions))
	for _, d := range Dimensions {
		opts[d] = DeriveOptions(records, d)
	}
	return opts
}

// Names returns the options keyed by dimension name, for JSON encoding.
func (o Options) Names() map[string][]string {
	out := make(map[string][]string, len(o))
	for d, values := range o {
		out[string(d)] = values
	}
	return out
}

func compareYearsDesc(a, b string) int {
	ai, errA := strconv.Atoi(a)
	bi, errB := strconv.Atoi(b)
	if errA != nil || errB != nil {
		return cmp.Compare(b, a)
	}
	return cmp.Compare(bi, ai)
}
