package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"bbsharvest/internal/logger"
	"bbsharvest/internal/models"
)

// historyLayouts are tried in order when reading last_crawl_time. Layouts
// without a zone are read as UTC.
var historyLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// historyFile is the on-disk shape of the history file.
type historyFile struct {
	LastCrawlTime string `json:"last_crawl_time"`
	TotalArticles int    `json:"total_articles"`
}

// HistoryStore reads and writes the resume checkpoint.
type HistoryStore struct {
	path string
	log  *logger.Logger
}

// NewHistoryStore creates a store for the history file at path.
func NewHistoryStore(path string, log *logger.Logger) *HistoryStore {
	return &HistoryStore{path: path, log: log}
}

// Path returns the history file location.
func (s *HistoryStore) Path() string {
	return s.path
}

// Load returns the stored history. A missing, unreadable or malformed file is
// reported as absent (ok == false) and never as an error.
func (s *HistoryStore) Load() (models.CrawlHistory, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Info("no crawl history found, next incremental run is a full crawl", "path", s.path)
		} else {
			s.log.Warn("failed to read crawl history, ignoring it", "path", s.path, "error", err)
		}

		return models.CrawlHistory{}, false
	}

	var raw historyFile
	if err := json.Unmarshal(data, &raw); err != nil {
		s.log.Warn("crawl history is malformed, ignoring it", "path", s.path, "error", err)

		return models.CrawlHistory{}, false
	}

	if strings.TrimSpace(raw.LastCrawlTime) == "" {
		s.log.Warn("crawl history has no last_crawl_time, ignoring it", "path", s.path)

		return models.CrawlHistory{}, false
	}

	ts, err := parseHistoryTime(raw.LastCrawlTime)
	if err != nil {
		s.log.Warn("crawl history has an invalid last_crawl_time, ignoring it", "path", s.path, "value", raw.LastCrawlTime)

		return models.CrawlHistory{}, false
	}

	h := models.CrawlHistory{LastCrawlTime: ts, TotalArticles: raw.TotalArticles}
	s.log.Info("loaded crawl history", "last_crawl_time", ts.Format(time.RFC3339), "total_articles", h.TotalArticles)

	return h, true
}

// Save overwrites the history file atomically.
func (s *HistoryStore) Save(h models.CrawlHistory) error {
	raw := historyFile{
		LastCrawlTime: h.LastCrawlTime.UTC().Format(time.RFC3339Nano),
		TotalArticles: h.TotalArticles,
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode crawl history: %w", err)
	}

	if err := writeFileAtomic(s.path, append(data, '\n')); err != nil {
		return fmt.Errorf("failed to save crawl history: %w", err)
	}

	s.log.Info("crawl history saved", "path", s.path, "last_crawl_time", raw.LastCrawlTime, "total_articles", raw.TotalArticles)

	return nil
}

func parseHistoryTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	var lastErr error

	for _, layout := range historyLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t.UTC(), nil
		}

		lastErr = err
	}

	return time.Time{}, lastErr
}
