package parse

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"tidbyt.dev/gtfsmetrics/model"
	"tidbyt.dev/gtfsmetrics/storage"
)

var setupCSV sync.Once

// LazyCSVReader required (at least) to survive sloppy use of
// quotes. The BOM reader strips unicode BOMs if present, and the
// header row has surrounding whitespace removed from column names.
func configureCSV() {
	setupCSV.Do(func() {
		gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
			return &headerTrimmer{CSVReader: gocsv.LazyCSVReader(bom.NewReader(in))}
		})
	})
}

type headerTrimmer struct {
	gocsv.CSVReader
	done bool
}

func (r *headerTrimmer) Read() ([]string, error) {
	record, err := r.CSVReader.Read()
	if err == nil && !r.done {
		r.done = true
		trimFields(record)
	}
	return record, err
}

func (r *headerTrimmer) ReadAll() ([][]string, error) {
	records, err := r.CSVReader.ReadAll()
	if err == nil && !r.done && len(records) > 0 {
		r.done = true
		trimFields(records[0])
	}
	return records, err
}

func trimFields(record []string) {
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}
}

// Parses a GTFS static zip archive into the writer.
//
// The five required tables must be present. Optional tables are
// loaded when present. Rows are written in file order, and
// duplicates and dangling references are kept as is. Malformed time
// values are kept raw and read as null downstream.
func ParseStatic(writer storage.FeedWriter, buf []byte) (*storage.FeedMetadata, error) {
	configureCSV()

	r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, fmt.Errorf("unzipping: %w", err)
	}

	file := map[model.TableName][]byte{}
	for _, f := range r.File {
		// There should not be any subdirectories. But, some
		// agencies don't care.
		if f.FileInfo().IsDir() {
			continue
		}
		path := strings.Split(f.Name, "/")
		table, found := model.TableFromFile(path[len(path)-1])
		if !found || !strings.HasSuffix(f.Name, ".txt") {
			continue
		}
		if _, dup := file[table]; dup {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Name, err)
		}

		file[table] = data
	}

	missing := []string{}
	for _, required := range model.RequiredTables {
		if _, found := file[required]; !found {
			missing = append(missing, required.File())
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}

	metadata := &storage.FeedMetadata{
		Tables: []model.TableName{},
	}

	for _, table := range append(append([]model.TableName{}, model.RequiredTables...), model.OptionalTables...) {
		data, found := file[table]
		if !found {
			continue
		}
		metadata.Tables = append(metadata.Tables, table)

		// A zero byte file is a table with no rows.
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}

		err = parseTable(writer, table, bytes.NewReader(data), metadata)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", table.File(), err)
		}
	}

	// All files parsed: close the writer.
	err = writer.Close()
	if err != nil {
		return nil, fmt.Errorf("closing feed writer: %w", err)
	}

	return metadata, nil
}

func parseTable(writer storage.FeedWriter, table model.TableName, data io.Reader, metadata *storage.FeedMetadata) error {
	var err error

	switch table {
	case model.TableAgency:
		metadata.Timezone, err = ParseAgency(writer, data)

	case model.TableStops:
		err = ParseStops(writer, data)

	case model.TableRoutes:
		err = ParseRoutes(writer, data)

	case model.TableTrips:
		err = bracket(writer, table, func() error {
			return ParseTrips(writer, data)
		})

	case model.TableStopTimes:
		err = bracket(writer, table, func() error {
			var err error
			metadata.MaxArrival, metadata.MaxDeparture, err = ParseStopTimes(writer, data)
			return err
		})

	case model.TableCalendar:
		var start, end string
		start, end, err = ParseCalendar(writer, data)
		extendRange(metadata, start, end)

	case model.TableCalendarDates:
		var start, end string
		start, end, err = ParseCalendarDates(writer, data)
		extendRange(metadata, start, end)

	case model.TableShapes:
		err = bracket(writer, table, func() error {
			return ParseShapes(writer, data)
		})

	case model.TableFrequencies:
		err = ParseFrequencies(writer, data)

	case model.TableTransfers:
		err = ParseTransfers(writer, data)
	}

	return err
}

// Runs f between Begin() and End() for the table.
func bracket(writer storage.FeedWriter, table model.TableName, f func() error) error {
	err := writer.Begin(table)
	if err != nil {
		return fmt.Errorf("beginning %s: %w", table, err)
	}

	err = f()
	if err != nil {
		return err
	}

	err = writer.End(table)
	if err != nil {
		return fmt.Errorf("ending %s: %w", table, err)
	}

	return nil
}

func extendRange(metadata *storage.FeedMetadata, start, end string) {
	if start != "" && (metadata.CalendarStartDate == "" || start < metadata.CalendarStartDate) {
		metadata.CalendarStartDate = start
	}
	if end != "" && (metadata.CalendarEndDate == "" || end > metadata.CalendarEndDate) {
		metadata.CalendarEndDate = end
	}
}
