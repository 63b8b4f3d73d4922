package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/gtfsmetrics/metrics"
	"tidbyt.dev/gtfsmetrics/model"
)

func feedWith(routes ...model.Route) *model.Feed {
	return &model.Feed{Routes: routes}
}

func displays(entries []Entry) []string {
	out := []string{}
	for _, e := range entries {
		out = append(out, e.Display)
	}
	return out
}

func TestRoutesSortsNumericFirst(t *testing.T) {
	entries, err := Routes(feedWith(
		model.Route{ID: "a", ShortName: "10", LongName: "Ten"},
		model.Route{ID: "b", ShortName: "B", LongName: "Bee"},
		model.Route{ID: "c", ShortName: "2", LongName: "Two"},
		model.Route{ID: "d", ShortName: "A", LongName: "Ay"},
		model.Route{ID: "e", ShortName: "1.5", LongName: "Half"},
	), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"1.5 - Half",
		"2 - Two",
		"10 - Ten",
		"A - Ay",
		"B - Bee",
	}, displays(entries))
}

func TestRoutesDuplicateRouteIDKeepsFirst(t *testing.T) {
	entries, err := Routes(feedWith(
		model.Route{ID: "r", ShortName: "1", LongName: "First"},
		model.Route{ID: "r", ShortName: "1", LongName: "Second"},
	), Options{})
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, "1 - First", entries[0].Display)
}

func TestRoutesDuplicateDisplayKeepsLast(t *testing.T) {
	entries, err := Routes(feedWith(
		model.Route{ID: "x", ShortName: "1", LongName: "Main"},
		model.Route{ID: "y", ShortName: "2", LongName: "Other"},
		model.Route{ID: "z", ShortName: "1", LongName: "Main"},
	), Options{})
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "z", entries[0].RouteID)
	assert.Equal(t, "y", entries[1].RouteID)

	id, found := Find(entries, "1 - Main")
	assert.True(t, found)
	assert.Equal(t, "z", id)

	_, found = Find(entries, "3 - Nope")
	assert.False(t, found)
}

func TestRoutesPreferRule(t *testing.T) {
	feed := feedWith(
		model.Route{ID: "r", ShortName: "1", LongName: ""},
		model.Route{ID: "r", ShortName: "1", LongName: "Named", AgencyID: "A"},
		model.Route{ID: "r", ShortName: "1", LongName: "Also named", AgencyID: "B"},
		model.Route{ID: "s", ShortName: "2", LongName: "Only", Type: model.RouteTypeSubway},
	)

	for _, tc := range []struct {
		rule     string
		expected []string
	}{
		{"", []string{"1 - ", "2 - Only"}},
		{`LongName != ""`, []string{"1 - Named", "2 - Only"}},
		{`AgencyID == "B"`, []string{"1 - Also named", "2 - Only"}},
		{`Type == 3`, []string{"1 - ", "2 - Only"}},
	} {
		t.Run(tc.rule, func(t *testing.T) {
			entries, err := Routes(feed, Options{Prefer: tc.rule})
			require.NoError(t, err)
			assert.Equal(t, tc.expected, displays(entries))
		})
	}
}

func TestRoutesBadRule(t *testing.T) {
	feed := feedWith(model.Route{ID: "r"})

	_, err := Routes(feed, Options{Prefer: "LongName +"})
	assert.Error(t, err)

	// Not a boolean
	_, err = Routes(feed, Options{Prefer: "ShortName"})
	assert.Error(t, err)

	// Unknown field
	_, err = Routes(feed, Options{Prefer: "Colour == 'red'"})
	assert.Error(t, err)
}

func TestRoutesMissingTable(t *testing.T) {
	_, err := Routes(&model.Feed{}, Options{})
	var dataErr *metrics.DataError
	require.True(t, errors.As(err, &dataErr))
	assert.Equal(t, model.TableRoutes, dataErr.Table)

	entries, err := Routes(feedWith(), Options{})
	assert.Error(t, err, "nil routes slice means absent")
	assert.Nil(t, entries)

	entries, err = Routes(&model.Feed{Routes: []model.Route{}}, Options{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}
