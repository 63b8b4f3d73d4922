package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

// Keeps each feed in a database of its own, in memory or as
// <hash>.db under Directory. Feed metadata goes in a separate
// gtfs.db.
type SQLiteStorage struct {
	SQLiteConfig
	*sqlMetadata

	mutex sync.Mutex
	feeds map[string]*sql.DB
}

type SQLiteFeedWriter struct {
	*sqlFeedWriter
}

type SQLiteFeedReader struct {
	*sqlFeedReader
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	config := SQLiteConfig{}
	if len(cfg) > 0 {
		config = cfg[0]
	}

	sourceName := ":memory:"
	if config.OnDisk {
		sourceName = filepath.Join(config.Directory, "gtfs.db")
	}

	db, err := openSQLite(sourceName)
	if err != nil {
		return nil, err
	}

	metadata := &sqlMetadata{db: db, dialect: sqliteDialect}
	err = metadata.create()
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStorage{
		SQLiteConfig: config,
		sqlMetadata:  metadata,
		feeds:        map[string]*sql.DB{},
	}, nil
}

func openSQLite(sourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every connection to :memory: is a fresh database.
	if sourceName == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	return db, nil
}

func (s *SQLiteStorage) feedPath(feedID string) string {
	return filepath.Join(s.Directory, feedID+".db")
}

func (s *SQLiteStorage) GetReader(feedID string) (FeedReader, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	db, found := s.feeds[feedID]
	if found {
		return &SQLiteFeedReader{&sqlFeedReader{db: db, dialect: sqliteDialect}}, nil
	}
	if !s.OnDisk {
		return nil, fmt.Errorf("feed %s does not exist", feedID)
	}

	sourceName := s.feedPath(feedID)
	if _, err := os.Stat(sourceName); os.IsNotExist(err) {
		return nil, fmt.Errorf("feed %s does not exist at %s", feedID, sourceName)
	}

	db, err := openSQLite(sourceName)
	if err != nil {
		return nil, err
	}

	s.feeds[feedID] = db

	return &SQLiteFeedReader{&sqlFeedReader{db: db, dialect: sqliteDialect}}, nil
}

func (s *SQLiteStorage) GetWriter(feedID string) (FeedWriter, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if db, found := s.feeds[feedID]; found {
		db.Close()
		delete(s.feeds, feedID)
	}

	sourceName := ":memory:"
	if s.OnDisk {
		sourceName = s.feedPath(feedID)
		if _, err := os.Stat(sourceName); err == nil {
			err := os.Remove(sourceName)
			if err != nil {
				return nil, fmt.Errorf("removing existing database: %w", err)
			}
		}
	}

	db, err := openSQLite(sourceName)
	if err != nil {
		return nil, err
	}

	for _, table := range allTables() {
		_, err = db.Exec(createTableSQL(sqliteDialect, table, false))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating %s table: %w", table, err)
		}
	}

	s.feeds[feedID] = db

	return &SQLiteFeedWriter{newSQLFeedWriter(db, sqliteDialect, "")}, nil
}

func (w *SQLiteFeedWriter) Close() error {
	w.rollback()
	return nil
}
