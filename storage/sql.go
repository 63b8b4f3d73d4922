package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"tidbyt.dev/gtfsmetrics/model"
)

// SQL shared by the SQLite and Postgres backends. Every table gets a
// seq column holding the row's position in the feed, so that readers
// can return rows in feed order. When several feeds share a database
// (Postgres), a hash column identifies the feed.

type dialect struct {
	placeholder func(n int) string
	real        string
	timestamp   string
}

var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	real:        "REAL",
	timestamp:   "TIMESTAMP",
}

var postgresDialect = dialect{
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	real:        "DOUBLE PRECISION",
	timestamp:   "TIMESTAMPTZ",
}

func (d dialect) placeholders(start, n int) string {
	ph := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ph = append(ph, d.placeholder(start+i))
	}
	return strings.Join(ph, ", ")
}

type column struct {
	name string
	kind string
}

var schema = map[model.TableName][]column{
	model.TableAgency: {
		{"id", "TEXT"},
		{"name", "TEXT"},
		{"url", "TEXT"},
		{"timezone", "TEXT"},
	},
	model.TableStops: {
		{"id", "TEXT"},
		{"code", "TEXT"},
		{"name", "TEXT"},
		{"description", "TEXT"},
		{"lat", "REAL"},
		{"lon", "REAL"},
		{"url", "TEXT"},
		{"location_type", "INTEGER"},
		{"parent_station", "TEXT"},
		{"platform_code", "TEXT"},
	},
	model.TableRoutes: {
		{"id", "TEXT"},
		{"agency_id", "TEXT"},
		{"short_name", "TEXT"},
		{"long_name", "TEXT"},
		{"description", "TEXT"},
		{"type", "INTEGER"},
		{"url", "TEXT"},
		{"color", "TEXT"},
		{"text_color", "TEXT"},
	},
	model.TableTrips: {
		{"id", "TEXT"},
		{"route_id", "TEXT"},
		{"service_id", "TEXT"},
		{"headsign", "TEXT"},
		{"short_name", "TEXT"},
		{"direction_id", "INTEGER"},
		{"shape_id", "TEXT"},
	},
	model.TableStopTimes: {
		{"trip_id", "TEXT"},
		{"stop_id", "TEXT"},
		{"stop_sequence", "INTEGER"},
		{"arrival_time", "TEXT"},
		{"departure_time", "TEXT"},
		{"headsign", "TEXT"},
	},
	model.TableCalendar: {
		{"service_id", "TEXT"},
		{"start_date", "TEXT"},
		{"end_date", "TEXT"},
		{"monday", "INTEGER"},
		{"tuesday", "INTEGER"},
		{"wednesday", "INTEGER"},
		{"thursday", "INTEGER"},
		{"friday", "INTEGER"},
		{"saturday", "INTEGER"},
		{"sunday", "INTEGER"},
	},
	model.TableCalendarDates: {
		{"service_id", "TEXT"},
		{"date", "TEXT"},
		{"exception_type", "INTEGER"},
	},
	model.TableShapes: {
		{"id", "TEXT"},
		{"lat", "REAL"},
		{"lon", "REAL"},
		{"sequence", "INTEGER"},
		{"dist_traveled", "REAL"},
	},
	model.TableFrequencies: {
		{"trip_id", "TEXT"},
		{"start_time", "TEXT"},
		{"end_time", "TEXT"},
		{"headway_secs", "INTEGER"},
		{"exact_times", "INTEGER"},
	},
	model.TableTransfers: {
		{"from_stop_id", "TEXT"},
		{"to_stop_id", "TEXT"},
		{"transfer_type", "INTEGER"},
		{"min_transfer_time", "INTEGER"},
	},
}

func allTables() []model.TableName {
	return append(append([]model.TableName{}, model.RequiredTables...), model.OptionalTables...)
}

func columnNames(table model.TableName, withHash bool) []string {
	names := []string{}
	if withHash {
		names = append(names, "hash")
	}
	names = append(names, "seq")
	for _, c := range schema[table] {
		names = append(names, c.name)
	}
	return names
}

func createTableSQL(d dialect, table model.TableName, withHash bool) string {
	defs := []string{}
	if withHash {
		defs = append(defs, "    hash TEXT NOT NULL")
	}
	defs = append(defs, "    seq INTEGER NOT NULL")
	for _, c := range schema[table] {
		kind := c.kind
		if kind == "REAL" {
			kind = d.real
		}
		defs = append(defs, fmt.Sprintf("    %s %s NOT NULL", c.name, kind))
	}

	index := "seq"
	if withHash {
		index = "hash, seq"
	}

	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
%s
);
CREATE INDEX IF NOT EXISTS %s_seq ON %s (%s);
`, table, strings.Join(defs, ",\n"), table, table, index)
}

func insertSQL(d dialect, table model.TableName, withHash bool) string {
	names := columnNames(table, withHash)
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(names, ", "),
		d.placeholders(1, len(names)),
	)
}

func selectSQL(d dialect, table model.TableName, withHash bool) string {
	names := []string{}
	for _, c := range schema[table] {
		names = append(names, c.name)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(names, ", "), table)
	if withHash {
		query += " WHERE hash = " + d.placeholder(1)
	}
	return query + " ORDER BY seq"
}

func agencyRow(a *model.Agency) []interface{} {
	return []interface{}{a.ID, a.Name, a.URL, a.Timezone}
}

func stopRow(s *model.Stop) []interface{} {
	return []interface{}{
		s.ID, s.Code, s.Name, s.Desc, s.Lat, s.Lon, s.URL,
		int(s.LocationType), s.ParentStation, s.PlatformCode,
	}
}

func routeRow(r *model.Route) []interface{} {
	return []interface{}{
		r.ID, r.AgencyID, r.ShortName, r.LongName, r.Desc,
		int(r.Type), r.URL, r.Color, r.TextColor,
	}
}

func tripRow(t *model.Trip) []interface{} {
	return []interface{}{
		t.ID, t.RouteID, t.ServiceID, t.Headsign, t.ShortName,
		int(t.DirectionID), t.ShapeID,
	}
}

func stopTimeRow(st *model.StopTime) []interface{} {
	return []interface{}{
		st.TripID, st.StopID, int64(st.StopSequence),
		st.Arrival, st.Departure, st.Headsign,
	}
}

func calendarRow(c *model.Calendar) []interface{} {
	row := []interface{}{c.ServiceID, c.StartDate, c.EndDate}
	for _, v := range weekdayColumns(c.Weekday) {
		row = append(row, v)
	}
	return row
}

func calendarDateRow(cd *model.CalendarDate) []interface{} {
	return []interface{}{cd.ServiceID, cd.Date, int(cd.ExceptionType)}
}

func shapeRow(s *model.Shape) []interface{} {
	return []interface{}{s.ID, s.Lat, s.Lon, int64(s.Sequence), s.DistTraveled}
}

func frequencyRow(f *model.Frequency) []interface{} {
	return []interface{}{f.TripID, f.StartTime, f.EndTime, f.HeadwaySecs, int(f.ExactTimes)}
}

func transferRow(t *model.Transfer) []interface{} {
	return []interface{}{t.FromStopID, t.ToStopID, int(t.TransferType), t.MinTransferTime}
}

// Writes one feed's rows with plain INSERTs. Begin() opens a
// transaction used by all writes until End().
type sqlFeedWriter struct {
	db      *sql.DB
	dialect dialect
	hash    string
	seq     map[model.TableName]int64
	tx      *sql.Tx
	stmts   map[model.TableName]*sql.Stmt
}

func newSQLFeedWriter(db *sql.DB, d dialect, hash string) *sqlFeedWriter {
	return &sqlFeedWriter{
		db:      db,
		dialect: d,
		hash:    hash,
		seq:     map[model.TableName]int64{},
		stmts:   map[model.TableName]*sql.Stmt{},
	}
}

// Prepends hash (if any) and the next seq to a row.
func (w *sqlFeedWriter) args(table model.TableName, row []interface{}) []interface{} {
	args := make([]interface{}, 0, len(row)+2)
	if w.hash != "" {
		args = append(args, w.hash)
	}
	args = append(args, w.seq[table])
	w.seq[table]++
	return append(args, row...)
}

func (w *sqlFeedWriter) insert(table model.TableName, row []interface{}) error {
	args := w.args(table, row)

	if w.tx == nil {
		_, err := w.db.Exec(insertSQL(w.dialect, table, w.hash != ""), args...)
		if err != nil {
			return fmt.Errorf("inserting into %s: %w", table, err)
		}
		return nil
	}

	stmt, found := w.stmts[table]
	if !found {
		var err error
		stmt, err = w.tx.Prepare(insertSQL(w.dialect, table, w.hash != ""))
		if err != nil {
			return fmt.Errorf("preparing %s insert: %w", table, err)
		}
		w.stmts[table] = stmt
	}

	_, err := stmt.Exec(args...)
	if err != nil {
		return fmt.Errorf("inserting into %s: %w", table, err)
	}
	return nil
}

func (w *sqlFeedWriter) WriteAgency(a *model.Agency) error {
	return w.insert(model.TableAgency, agencyRow(a))
}

func (w *sqlFeedWriter) WriteStop(s *model.Stop) error {
	return w.insert(model.TableStops, stopRow(s))
}

func (w *sqlFeedWriter) WriteRoute(r *model.Route) error {
	return w.insert(model.TableRoutes, routeRow(r))
}

func (w *sqlFeedWriter) WriteTrip(t *model.Trip) error {
	return w.insert(model.TableTrips, tripRow(t))
}

func (w *sqlFeedWriter) WriteStopTime(st *model.StopTime) error {
	return w.insert(model.TableStopTimes, stopTimeRow(st))
}

func (w *sqlFeedWriter) WriteCalendar(c *model.Calendar) error {
	return w.insert(model.TableCalendar, calendarRow(c))
}

func (w *sqlFeedWriter) WriteCalendarDate(cd *model.CalendarDate) error {
	return w.insert(model.TableCalendarDates, calendarDateRow(cd))
}

func (w *sqlFeedWriter) WriteShape(s *model.Shape) error {
	return w.insert(model.TableShapes, shapeRow(s))
}

func (w *sqlFeedWriter) WriteFrequency(f *model.Frequency) error {
	return w.insert(model.TableFrequencies, frequencyRow(f))
}

func (w *sqlFeedWriter) WriteTransfer(t *model.Transfer) error {
	return w.insert(model.TableTransfers, transferRow(t))
}

func (w *sqlFeedWriter) Begin(table model.TableName) error {
	if w.tx != nil {
		return nil
	}
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning %s transaction: %w", table, err)
	}
	w.tx = tx
	return nil
}

func (w *sqlFeedWriter) End(table model.TableName) error {
	if w.tx == nil {
		return nil
	}

	for name, stmt := range w.stmts {
		stmt.Close()
		delete(w.stmts, name)
	}

	err := w.tx.Commit()
	w.tx = nil
	if err != nil {
		return fmt.Errorf("committing %s transaction: %w", table, err)
	}
	return nil
}

func (w *sqlFeedWriter) rollback() {
	if w.tx == nil {
		return
	}
	for name, stmt := range w.stmts {
		stmt.Close()
		delete(w.stmts, name)
	}
	w.tx.Rollback()
	w.tx = nil
}

type sqlFeedReader struct {
	db      *sql.DB
	dialect dialect
	hash    string
}

func (r *sqlFeedReader) query(table model.TableName, scan func(rows *sql.Rows) error) error {
	args := []interface{}{}
	if r.hash != "" {
		args = append(args, r.hash)
	}

	rows, err := r.db.Query(selectSQL(r.dialect, table, r.hash != ""), args...)
	if err != nil {
		return fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		err := scan(rows)
		if err != nil {
			return fmt.Errorf("scanning %s: %w", table, err)
		}
	}

	return rows.Err()
}

func (r *sqlFeedReader) Agencies() ([]*model.Agency, error) {
	agencies := []*model.Agency{}
	err := r.query(model.TableAgency, func(rows *sql.Rows) error {
		a := &model.Agency{}
		err := rows.Scan(&a.ID, &a.Name, &a.URL, &a.Timezone)
		agencies = append(agencies, a)
		return err
	})
	if err != nil {
		return nil, err
	}
	return agencies, nil
}

func (r *sqlFeedReader) Stops() ([]*model.Stop, error) {
	stops := []*model.Stop{}
	err := r.query(model.TableStops, func(rows *sql.Rows) error {
		s := &model.Stop{}
		var locationType int
		err := rows.Scan(
			&s.ID, &s.Code, &s.Name, &s.Desc, &s.Lat, &s.Lon, &s.URL,
			&locationType, &s.ParentStation, &s.PlatformCode,
		)
		s.LocationType = model.LocationType(locationType)
		stops = append(stops, s)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stops, nil
}

func (r *sqlFeedReader) Routes() ([]*model.Route, error) {
	routes := []*model.Route{}
	err := r.query(model.TableRoutes, func(rows *sql.Rows) error {
		rt := &model.Route{}
		var routeType int
		err := rows.Scan(
			&rt.ID, &rt.AgencyID, &rt.ShortName, &rt.LongName, &rt.Desc,
			&routeType, &rt.URL, &rt.Color, &rt.TextColor,
		)
		rt.Type = model.RouteType(routeType)
		routes = append(routes, rt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return routes, nil
}

func (r *sqlFeedReader) Trips() ([]*model.Trip, error) {
	trips := []*model.Trip{}
	err := r.query(model.TableTrips, func(rows *sql.Rows) error {
		t := &model.Trip{}
		var directionID int
		err := rows.Scan(
			&t.ID, &t.RouteID, &t.ServiceID, &t.Headsign, &t.ShortName,
			&directionID, &t.ShapeID,
		)
		t.DirectionID = int8(directionID)
		trips = append(trips, t)
		return err
	})
	if err != nil {
		return nil, err
	}
	return trips, nil
}

func (r *sqlFeedReader) StopTimes() ([]*model.StopTime, error) {
	stopTimes := []*model.StopTime{}
	err := r.query(model.TableStopTimes, func(rows *sql.Rows) error {
		var tripID, stopID, arrival, departure, headsign string
		var seq int64
		err := rows.Scan(&tripID, &stopID, &seq, &arrival, &departure, &headsign)
		if err != nil {
			return err
		}
		st := model.NewStopTime(tripID, stopID, uint32(seq), arrival, departure)
		st.Headsign = headsign
		stopTimes = append(stopTimes, &st)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stopTimes, nil
}

func (r *sqlFeedReader) Calendars() ([]*model.Calendar, error) {
	calendars := []*model.Calendar{}
	err := r.query(model.TableCalendar, func(rows *sql.Rows) error {
		c := &model.Calendar{}
		days := [7]int{}
		err := rows.Scan(
			&c.ServiceID, &c.StartDate, &c.EndDate,
			&days[0], &days[1], &days[2], &days[3], &days[4], &days[5], &days[6],
		)
		c.Weekday = weekdayFromColumns(days)
		calendars = append(calendars, c)
		return err
	})
	if err != nil {
		return nil, err
	}
	return calendars, nil
}

func (r *sqlFeedReader) CalendarDates() ([]*model.CalendarDate, error) {
	dates := []*model.CalendarDate{}
	err := r.query(model.TableCalendarDates, func(rows *sql.Rows) error {
		cd := &model.CalendarDate{}
		var exceptionType int
		err := rows.Scan(&cd.ServiceID, &cd.Date, &exceptionType)
		cd.ExceptionType = model.ExceptionType(exceptionType)
		dates = append(dates, cd)
		return err
	})
	if err != nil {
		return nil, err
	}
	return dates, nil
}

func (r *sqlFeedReader) Shapes() ([]*model.Shape, error) {
	shapes := []*model.Shape{}
	err := r.query(model.TableShapes, func(rows *sql.Rows) error {
		s := &model.Shape{}
		var seq int64
		err := rows.Scan(&s.ID, &s.Lat, &s.Lon, &seq, &s.DistTraveled)
		s.Sequence = uint32(seq)
		shapes = append(shapes, s)
		return err
	})
	if err != nil {
		return nil, err
	}
	return shapes, nil
}

func (r *sqlFeedReader) Frequencies() ([]*model.Frequency, error) {
	freqs := []*model.Frequency{}
	err := r.query(model.TableFrequencies, func(rows *sql.Rows) error {
		f := &model.Frequency{}
		var exactTimes int
		err := rows.Scan(&f.TripID, &f.StartTime, &f.EndTime, &f.HeadwaySecs, &exactTimes)
		f.ExactTimes = int8(exactTimes)
		freqs = append(freqs, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	return freqs, nil
}

func (r *sqlFeedReader) Transfers() ([]*model.Transfer, error) {
	transfers := []*model.Transfer{}
	err := r.query(model.TableTransfers, func(rows *sql.Rows) error {
		t := &model.Transfer{}
		var transferType int
		err := rows.Scan(&t.FromStopID, &t.ToStopID, &transferType, &t.MinTransferTime)
		t.TransferType = int8(transferType)
		transfers = append(transfers, t)
		return err
	})
	if err != nil {
		return nil, err
	}
	return transfers, nil
}

// The feed metadata table, shared by both SQL backends.
type sqlMetadata struct {
	db      *sql.DB
	dialect dialect
}

func (m *sqlMetadata) create() error {
	_, err := m.db.Exec(fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS feed (
    hash TEXT NOT NULL,
    url TEXT NOT NULL,
    retrieved_at %s NOT NULL,
    calendar_start TEXT NOT NULL,
    calendar_end TEXT NOT NULL,
    timezone TEXT NOT NULL,
    max_arrival TEXT NOT NULL,
    max_departure TEXT NOT NULL,
    table_names TEXT NOT NULL,
    PRIMARY KEY (hash, url)
);`, m.dialect.timestamp))
	if err != nil {
		return fmt.Errorf("creating feed table: %w", err)
	}
	return nil
}

func (m *sqlMetadata) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
	query := `
SELECT
    hash,
    url,
    retrieved_at,
    calendar_start,
    calendar_end,
    timezone,
    max_arrival,
    max_departure,
    table_names
FROM feed`

	conditions := []string{}
	params := []interface{}{}
	if filter.URL != "" {
		params = append(params, filter.URL)
		conditions = append(conditions, "url = "+m.dialect.placeholder(len(params)))
	}
	if filter.Hash != "" {
		params = append(params, filter.Hash)
		conditions = append(conditions, "hash = "+m.dialect.placeholder(len(params)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY retrieved_at DESC"

	rows, err := m.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}
	defer rows.Close()

	feeds := []*FeedMetadata{}
	for rows.Next() {
		var feed FeedMetadata
		var tables string
		err := rows.Scan(
			&feed.Hash,
			&feed.URL,
			&feed.RetrievedAt,
			&feed.CalendarStartDate,
			&feed.CalendarEndDate,
			&feed.Timezone,
			&feed.MaxArrival,
			&feed.MaxDeparture,
			&tables,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning feed: %w", err)
		}
		feed.Tables = decodeTables(tables)
		feeds = append(feeds, &feed)
	}

	return feeds, rows.Err()
}

func (m *sqlMetadata) WriteFeedMetadata(feed *FeedMetadata) error {
	_, err := m.db.Exec(fmt.Sprintf(`
INSERT INTO feed (
    hash,
    url,
    retrieved_at,
    calendar_start,
    calendar_end,
    timezone,
    max_arrival,
    max_departure,
    table_names
) VALUES (%s)
ON CONFLICT (hash, url) DO UPDATE SET
    retrieved_at = excluded.retrieved_at,
    calendar_start = excluded.calendar_start,
    calendar_end = excluded.calendar_end,
    timezone = excluded.timezone,
    max_arrival = excluded.max_arrival,
    max_departure = excluded.max_departure,
    table_names = excluded.table_names`, m.dialect.placeholders(1, 9)),
		feed.Hash,
		feed.URL,
		feed.RetrievedAt.UTC(),
		feed.CalendarStartDate,
		feed.CalendarEndDate,
		feed.Timezone,
		feed.MaxArrival,
		feed.MaxDeparture,
		encodeTables(feed.Tables),
	)
	if err != nil {
		return fmt.Errorf("writing feed metadata: %w", err)
	}
	return nil
}

func (m *sqlMetadata) DeleteFeedMetadata(url string, hash string) error {
	res, err := m.db.Exec(fmt.Sprintf(
		"DELETE FROM feed WHERE url = %s AND hash = %s",
		m.dialect.placeholder(1),
		m.dialect.placeholder(2),
	), url, hash)
	if err != nil {
		return fmt.Errorf("deleting feed metadata: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting feed metadata: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("feed not found")
	}
	return nil
}
