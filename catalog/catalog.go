// Package catalog builds the list of routes offered for selection.
package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"tidbyt.dev/gtfsmetrics/metrics"
	"tidbyt.dev/gtfsmetrics/model"
)

type Entry struct {
	RouteID   string `json:"route_id"`
	ShortName string `json:"route_short_name"`
	LongName  string `json:"route_long_name"`
	Display   string `json:"display"`
}

type Options struct {
	// Boolean expression over a route row, e.g. `LongName != ""` or
	// `AgencyID == "MTA"`. When route_id is repeated, the first row
	// matching it is used. Without a match (or a rule) the first row
	// is used.
	Prefer string
}

// The variables a preference rule can reference.
type RouteEnv struct {
	ID        string
	AgencyID  string
	ShortName string
	LongName  string
	Desc      string
	Type      int
	URL       string
	Color     string
	TextColor string
}

func envFor(r *model.Route) RouteEnv {
	return RouteEnv{
		ID:        r.ID,
		AgencyID:  r.AgencyID,
		ShortName: r.ShortName,
		LongName:  r.LongName,
		Desc:      r.Desc,
		Type:      int(r.Type),
		URL:       r.URL,
		Color:     r.Color,
		TextColor: r.TextColor,
	}
}

// Compiles a preference rule. An empty rule compiles to nil.
func Compile(rule string) (*vm.Program, error) {
	if strings.TrimSpace(rule) == "" {
		return nil, nil
	}
	program, err := expr.Compile(rule, expr.Env(RouteEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compiling preference rule: %w", err)
	}
	return program, nil
}

// Selectable routes.
//
// Rows are deduplicated by route_id, then by display label
// ("<short> - <long>") keeping the last route with a given label.
// Routes with numeric short names come first in numeric order, the
// rest follow in lexical order.
func Routes(feed *model.Feed, opts Options) ([]Entry, error) {
	if feed == nil || !feed.Has(model.TableRoutes) {
		return nil, &metrics.DataError{Table: model.TableRoutes}
	}

	prefer, err := Compile(opts.Prefer)
	if err != nil {
		return nil, err
	}

	// Position of each route_id in byID, and whether the row kept
	// there matched the rule.
	byID := []*model.Route{}
	pos := map[string]int{}
	matched := map[string]bool{}

	for i := range feed.Routes {
		r := &feed.Routes[i]

		ok := false
		if prefer != nil && !matched[r.ID] {
			out, err := expr.Run(prefer, envFor(r))
			if err != nil {
				return nil, fmt.Errorf("evaluating preference rule on route %s: %w", r.ID, err)
			}
			ok = out.(bool)
		}

		j, seen := pos[r.ID]
		if !seen {
			pos[r.ID] = len(byID)
			byID = append(byID, r)
			matched[r.ID] = ok
			continue
		}
		if ok && !matched[r.ID] {
			byID[j] = r
			matched[r.ID] = true
		}
	}

	all := make([]Entry, 0, len(byID))
	last := map[string]int{}
	for i, r := range byID {
		e := Entry{
			RouteID:   r.ID,
			ShortName: r.ShortName,
			LongName:  r.LongName,
			Display:   r.ShortName + " - " + r.LongName,
		}
		all = append(all, e)
		last[e.Display] = i
	}

	entries := []Entry{}
	for i, e := range all {
		if last[e.Display] == i {
			entries = append(entries, e)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, aErr := strconv.ParseFloat(strings.TrimSpace(entries[i].ShortName), 64)
		b, bErr := strconv.ParseFloat(strings.TrimSpace(entries[j].ShortName), 64)
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		}
		return entries[i].ShortName < entries[j].ShortName
	})

	return entries, nil
}

// The route_id behind a display label.
func Find(entries []Entry, display string) (string, bool) {
	for _, e := range entries {
		if e.Display == display {
			return e.RouteID, true
		}
	}
	return "", false
}
