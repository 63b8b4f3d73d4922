package storage

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"tidbyt.dev/gtfsmetrics/model"
)

const (
	PSQLTripBatchSize     = 10000
	PSQLStopTimeBatchSize = 5000
	PSQLShapeBatchSize    = 10000
)

// All feeds share one set of tables, keyed by hash.
type PSQLStorage struct {
	*sqlMetadata
	db *sql.DB
}

// Inserts small tables row by row. Trips, stop_times and shapes are
// buffered and loaded with COPY.
type PSQLFeedWriter struct {
	*sqlFeedWriter
	buf map[model.TableName][][]interface{}
}

type PSQLFeedReader struct {
	*sqlFeedReader
}

var psqlBatchSize = map[model.TableName]int{
	model.TableTrips:     PSQLTripBatchSize,
	model.TableStopTimes: PSQLStopTimeBatchSize,
	model.TableShapes:    PSQLShapeBatchSize,
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, the database will be cleared on startup. You
// probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if clearDB {
		_, err = db.Exec(`DROP TABLE IF EXISTS feed`)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("clearing db: %w", err)
		}
		for _, table := range allTables() {
			_, err = db.Exec(`DROP TABLE IF EXISTS ` + string(table))
			if err != nil {
				db.Close()
				return nil, fmt.Errorf("clearing db: %w", err)
			}
		}
	}

	metadata := &sqlMetadata{db: db, dialect: postgresDialect}
	err = metadata.create()
	if err != nil {
		db.Close()
		return nil, err
	}

	for _, table := range allTables() {
		_, err = db.Exec(createTableSQL(postgresDialect, table, true))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating %s table: %w", table, err)
		}
	}

	return &PSQLStorage{
		sqlMetadata: metadata,
		db:          db,
	}, nil
}

func (s *PSQLStorage) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close db: %w", err)
	}
	return nil
}

func (s *PSQLStorage) GetReader(hash string) (FeedReader, error) {
	return &PSQLFeedReader{&sqlFeedReader{
		db:      s.db,
		dialect: postgresDialect,
		hash:    hash,
	}}, nil
}

func (s *PSQLStorage) GetWriter(hash string) (FeedWriter, error) {
	// In case feed already exists, delete all records
	for _, table := range allTables() {
		_, err := s.db.Exec(`DELETE FROM `+string(table)+` WHERE hash = $1`, hash)
		if err != nil {
			return nil, fmt.Errorf("deleting %s records: %w", table, err)
		}
	}

	return &PSQLFeedWriter{
		sqlFeedWriter: newSQLFeedWriter(s.db, postgresDialect, hash),
		buf:           map[model.TableName][][]interface{}{},
	}, nil
}

func (w *PSQLFeedWriter) buffer(table model.TableName, row []interface{}) error {
	w.buf[table] = append(w.buf[table], w.args(table, row))

	if len(w.buf[table]) >= psqlBatchSize[table] {
		err := w.flush(table)
		if err != nil {
			return fmt.Errorf("flushing %s: %w", table, err)
		}
	}

	return nil
}

func (w *PSQLFeedWriter) flush(table model.TableName) error {
	if len(w.buf[table]) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyIn(string(table), columnNames(table, true)...))
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, args := range w.buf[table] {
		_, err = stmt.Exec(args...)
		if err != nil {
			return fmt.Errorf("COPY %s: %w", table, err)
		}
	}

	_, err = stmt.Exec()
	if err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	w.buf[table] = nil

	return nil
}

func (w *PSQLFeedWriter) WriteTrip(t *model.Trip) error {
	return w.buffer(model.TableTrips, tripRow(t))
}

func (w *PSQLFeedWriter) WriteStopTime(st *model.StopTime) error {
	return w.buffer(model.TableStopTimes, stopTimeRow(st))
}

func (w *PSQLFeedWriter) WriteShape(s *model.Shape) error {
	return w.buffer(model.TableShapes, shapeRow(s))
}

func (w *PSQLFeedWriter) Begin(table model.TableName) error {
	return nil
}

func (w *PSQLFeedWriter) End(table model.TableName) error {
	return w.flush(table)
}

func (w *PSQLFeedWriter) Close() error {
	for table := range w.buf {
		err := w.flush(table)
		if err != nil {
			return fmt.Errorf("flushing %s: %w", table, err)
		}
	}

	_, err := w.db.Exec(`ANALYZE`)
	if err != nil {
		return fmt.Errorf("analyzing: %w", err)
	}
	return nil
}
