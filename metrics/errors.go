package metrics

import (
	"fmt"

	"tidbyt.dev/gtfsmetrics/model"
)

// Returned when a table needed by a computation is missing from the
// feed.
type DataError struct {
	Table model.TableName
}

func (e *DataError) Error() string {
	return fmt.Sprintf("missing required table: %s", e.Table)
}

// Returned when a requested route_id has no row in routes.
type NotFoundError struct {
	RouteID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("route %q not found", e.RouteID)
}

func requireTables(feed *model.Feed, tables ...model.TableName) error {
	for _, t := range tables {
		if feed == nil || !feed.Has(t) {
			return &DataError{Table: t}
		}
	}
	return nil
}
