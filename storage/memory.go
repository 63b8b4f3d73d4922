package storage

import (
	"fmt"
	"sort"
	"sync"

	"tidbyt.dev/gtfsmetrics/model"
)

// In memory implementation of Storage below

type memoryMetadataKey struct {
	URL  string
	Hash string
}

type MemoryStorage struct {
	mutex    sync.Mutex
	feeds    map[string]*MemoryStorageFeed
	metadata map[memoryMetadataKey]*FeedMetadata
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		feeds:    map[string]*MemoryStorageFeed{},
		metadata: map[memoryMetadataKey]*FeedMetadata{},
	}
}

func (s *MemoryStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	feeds := []*FeedMetadata{}
	for _, metadata := range s.metadata {
		if filter.URL != "" && metadata.URL != filter.URL {
			continue
		}
		if filter.Hash != "" && metadata.Hash != filter.Hash {
			continue
		}
		copied := *metadata
		feeds = append(feeds, &copied)
	}
	sort.Slice(feeds, func(i, j int) bool {
		return feeds[i].RetrievedAt.After(feeds[j].RetrievedAt)
	})
	return feeds, nil
}

func (s *MemoryStorage) WriteFeedMetadata(feed *FeedMetadata) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	copied := *feed
	s.metadata[memoryMetadataKey{feed.URL, feed.Hash}] = &copied
	return nil
}

func (s *MemoryStorage) DeleteFeedMetadata(url string, hash string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := memoryMetadataKey{url, hash}
	if _, found := s.metadata[key]; !found {
		return fmt.Errorf("feed not found")
	}
	delete(s.metadata, key)
	return nil
}

func (s *MemoryStorage) GetReader(feed string) (FeedReader, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	f, ok := s.feeds[feed]
	if !ok {
		return nil, fmt.Errorf("feed %s not found", feed)
	}
	return f, nil
}

func (s *MemoryStorage) GetWriter(feed string) (FeedWriter, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	f := &MemoryStorageFeed{}
	s.feeds[feed] = f
	return f, nil
}

// Rows of a single feed, in write order.
type MemoryStorageFeed struct {
	agencies      []*model.Agency
	stops         []*model.Stop
	routes        []*model.Route
	trips         []*model.Trip
	stopTimes     []*model.StopTime
	calendars     []*model.Calendar
	calendarDates []*model.CalendarDate
	shapes        []*model.Shape
	frequencies   []*model.Frequency
	transfers     []*model.Transfer
}

func (f *MemoryStorageFeed) WriteAgency(agency *model.Agency) error {
	f.agencies = append(f.agencies, agency)
	return nil
}

func (f *MemoryStorageFeed) WriteStop(stop *model.Stop) error {
	f.stops = append(f.stops, stop)
	return nil
}

func (f *MemoryStorageFeed) WriteRoute(route *model.Route) error {
	f.routes = append(f.routes, route)
	return nil
}

func (f *MemoryStorageFeed) WriteTrip(trip *model.Trip) error {
	f.trips = append(f.trips, trip)
	return nil
}

func (f *MemoryStorageFeed) WriteCalendar(cal *model.Calendar) error {
	f.calendars = append(f.calendars, cal)
	return nil
}

func (f *MemoryStorageFeed) WriteCalendarDate(cd *model.CalendarDate) error {
	f.calendarDates = append(f.calendarDates, cd)
	return nil
}

func (f *MemoryStorageFeed) WriteStopTime(stopTime *model.StopTime) error {
	f.stopTimes = append(f.stopTimes, stopTime)
	return nil
}

func (f *MemoryStorageFeed) WriteShape(shape *model.Shape) error {
	f.shapes = append(f.shapes, shape)
	return nil
}

func (f *MemoryStorageFeed) WriteFrequency(freq *model.Frequency) error {
	f.frequencies = append(f.frequencies, freq)
	return nil
}

func (f *MemoryStorageFeed) WriteTransfer(transfer *model.Transfer) error {
	f.transfers = append(f.transfers, transfer)
	return nil
}

func (f *MemoryStorageFeed) Begin(table model.TableName) error {
	return nil
}

func (f *MemoryStorageFeed) End(table model.TableName) error {
	return nil
}

func (f *MemoryStorageFeed) Close() error {
	return nil
}

func (f *MemoryStorageFeed) Agencies() ([]*model.Agency, error) {
	return append([]*model.Agency{}, f.agencies...), nil
}

func (f *MemoryStorageFeed) Stops() ([]*model.Stop, error) {
	return append([]*model.Stop{}, f.stops...), nil
}

func (f *MemoryStorageFeed) Routes() ([]*model.Route, error) {
	return append([]*model.Route{}, f.routes...), nil
}

func (f *MemoryStorageFeed) Trips() ([]*model.Trip, error) {
	return append([]*model.Trip{}, f.trips...), nil
}

func (f *MemoryStorageFeed) StopTimes() ([]*model.StopTime, error) {
	return append([]*model.StopTime{}, f.stopTimes...), nil
}

func (f *MemoryStorageFeed) Calendars() ([]*model.Calendar, error) {
	return append([]*model.Calendar{}, f.calendars...), nil
}

func (f *MemoryStorageFeed) CalendarDates() ([]*model.CalendarDate, error) {
	return append([]*model.CalendarDate{}, f.calendarDates...), nil
}

func (f *MemoryStorageFeed) Shapes() ([]*model.Shape, error) {
	return append([]*model.Shape{}, f.shapes...), nil
}

func (f *MemoryStorageFeed) Frequencies() ([]*model.Frequency, error) {
	return append([]*model.Frequency{}, f.frequencies...), nil
}

func (f *MemoryStorageFeed) Transfers() ([]*model.Transfer, error) {
	return append([]*model.Transfer{}, f.transfers...), nil
}
