package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bbsharvest/internal/logger"
	"bbsharvest/internal/models"
)

// File name suffixes.
const (
	allSuffix         = "all"
	incrementalSuffix = "incremental"
)

// CorpusStore reads and writes the article files of the data directory:
//
//	<base>_<target>.json              one target of a single or batch crawl
//	<base>_all.json                   the combined corpus
//	<base>_<target>_incremental.json  records added by the last incremental run
//
// Every JSON file may be mirrored to a CSV file of the same name.
type CorpusStore struct {
	dir      string
	base     string
	writeCSV bool
	log      *logger.Logger
	now      func() time.Time
}

// NewCorpusStore creates a store rooted at dir.
func NewCorpusStore(dir, base string, writeCSV bool, log *logger.Logger) *CorpusStore {
	if base == "" {
		base = "articles"
	}

	return &CorpusStore{dir: dir, base: base, writeCSV: writeCSV, log: log, now: time.Now}
}

// Dir returns the data directory.
func (s *CorpusStore) Dir() string {
	return s.dir
}

// TargetPath returns the JSON path of one target's corpus.
func (s *CorpusStore) TargetPath(key string) string {
	return s.path(key)
}

// AllPath returns the JSON path of the combined corpus.
func (s *CorpusStore) AllPath() string {
	return s.path(allSuffix)
}

// IncrementalPath returns the JSON path of a target's last incremental delta.
func (s *CorpusStore) IncrementalPath(key string) string {
	return s.path(key + "_" + incrementalSuffix)
}

func (s *CorpusStore) path(suffix string) string {
	return filepath.Join(s.dir, s.base+"_"+suffix+".json")
}

// LoadAll loads the combined corpus. See Load.
func (s *CorpusStore) LoadAll() ([]models.ArticleRecord, error) {
	return s.Load(s.AllPath())
}

// Load reads a corpus file. A missing file yields an empty corpus. A file that
// exists but cannot be read or decoded is renamed to a timestamped .bak next to
// it and also yields an empty corpus, so that a later save never overwrites it.
// The returned error is non-nil only when such a file could not be moved aside.
func (s *CorpusStore) Load(path string) ([]models.ArticleRecord, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Info("corpus file not found, starting empty", "path", path)

		return []models.ArticleRecord{}, nil
	}

	if err == nil {
		var records []models.ArticleRecord
		if err = json.Unmarshal(data, &records); err == nil {
			if records == nil {
				records = []models.ArticleRecord{}
			}

			s.log.Info("loaded corpus", "path", path, "records", len(records))

			return records, nil
		}
	}

	backup, moveErr := setAside(path, s.now())
	if moveErr != nil {
		return nil, fmt.Errorf("corpus %s is unusable (%w) and could not be moved aside: %w", path, err, moveErr)
	}

	s.log.Warn("corpus file is unusable, moved aside and starting empty", "path", path, "backup", backup, "error", err)

	return []models.ArticleRecord{}, nil
}

func setAside(path string, now time.Time) (string, error) {
	backup := path + "." + now.UTC().Format("20060102T150405.000000000Z") + ".bak"
	if err := os.Rename(path, backup); err != nil {
		return "", err
	}

	return backup, nil
}

// SaveTarget writes one target's records.
func (s *CorpusStore) SaveTarget(key string, records []models.ArticleRecord) error {
	return s.Save(s.TargetPath(key), records)
}

// SaveAll writes the combined corpus.
func (s *CorpusStore) SaveAll(records []models.ArticleRecord) error {
	return s.Save(s.AllPath(), records)
}

// SaveIncremental writes the records a target contributed to the last
// incremental run.
func (s *CorpusStore) SaveIncremental(key string, records []models.ArticleRecord) error {
	return s.Save(s.IncrementalPath(key), records)
}

// Save writes records to path as indented JSON and, when enabled, mirrors them
// to the CSV file next to it. An empty set has no CSV mirror. Both writes are
// atomic.
func (s *CorpusStore) Save(path string, records []models.ArticleRecord) error {
	if records == nil {
		records = []models.ArticleRecord{}
	}

	data, err := encodeJSON(records, true)
	if err != nil {
		return fmt.Errorf("failed to encode corpus: %w", err)
	}

	if err := writeFileAtomic(path, data); err != nil {
		return err
	}

	s.log.Info("corpus saved", "path", path, "records", len(records))

	if !s.writeCSV {
		return nil
	}

	csvPath := csvPathFor(path)

	if len(records) == 0 {
		if err := os.Remove(csvPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove stale %s: %w", csvPath, err)
		}

		s.log.Debug("no records, csv mirror not written", "path", csvPath)

		return nil
	}

	var buf bytes.Buffer
	buf.Write(csvBOM)

	if err := WriteCSV(&buf, records); err != nil {
		return fmt.Errorf("failed to encode %s: %w", csvPath, err)
	}

	if err := writeFileAtomic(csvPath, buf.Bytes()); err != nil {
		return err
	}

	s.log.Debug("csv mirror saved", "path", csvPath)

	return nil
}

func csvPathFor(jsonPath string) string {
	return jsonPath[:len(jsonPath)-len(filepath.Ext(jsonPath))] + ".csv"
}

// encodeJSON encodes v without HTML escaping so post bodies stay readable.
func encodeJSON(v any, indent bool) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if indent {
		enc.SetIndent("", "  ")
	}

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
