package store

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bbsharvest/internal/logger"
	"bbsharvest/internal/models"
)

func ids(records []models.ArticleRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}

	return out
}

func TestMerge_KeepsOrderAndDropsKnownIDs(t *testing.T) {
	existing := []models.ArticleRecord{{ID: "1"}, {ID: "2", Title: "old"}}
	incoming := []models.ArticleRecord{{ID: "2", Title: "new"}, {ID: "3"}}

	merged := Merge(existing, incoming)

	assert.Equal(t, []string{"1", "2", "3"}, ids(merged))
	assert.Equal(t, "old", merged[1].Title, "first seen wins")
}

func TestMerge_Idempotent(t *testing.T) {
	x := []models.ArticleRecord{{ID: "1"}, {Title: "anonymous"}, {ID: "2"}}
	y := []models.ArticleRecord{{ID: "2"}, {Title: "another"}, {ID: "3"}, {ID: "3"}}

	once := Merge(x, y)
	twice := Merge(x, once)

	assert.Equal(t, once, twice)
	assert.Equal(t, []string{"1", "", "2", "", "3"}, ids(once))
}

func TestMerge_EmptyIDsAreKept(t *testing.T) {
	incoming := []models.ArticleRecord{{Title: "a"}, {Title: "a"}, {Title: "b"}}

	merged := Merge(nil, incoming)
	assert.Len(t, merged, 3)
}

func TestMerge_Empty(t *testing.T) {
	merged := Merge(nil, nil)
	assert.NotNil(t, merged)
	assert.Empty(t, merged)
}

func TestMergeWithStats(t *testing.T) {
	_, stats := MergeWithStats([]models.ArticleRecord{{ID: "1"}}, []models.ArticleRecord{{ID: "1"}, {ID: "2"}})
	assert.Equal(t, MergeStats{Existing: 1, Incoming: 2, Added: 1, Total: 2}, stats)
}

func TestHistoryStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "crawl_history.json")
	s := NewHistoryStore(path, logger.Nop())

	_, ok := s.Load()
	assert.False(t, ok)

	when := time.Date(2025, 3, 1, 8, 30, 0, 0, time.FixedZone("CST", 8*3600))
	require.NoError(t, s.Save(models.CrawlHistory{LastCrawlTime: when, TotalArticles: 42}))

	h, ok := s.Load()
	require.True(t, ok)
	assert.True(t, when.Equal(h.LastCrawlTime))
	assert.Equal(t, time.UTC, h.LastCrawlTime.Location())
	assert.Equal(t, 42, h.TotalArticles)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "2025-03-01T00:30:00Z", raw["last_crawl_time"])
	assert.EqualValues(t, 42, raw["total_articles"])

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestHistoryStore_AcceptsOtherTimeLayouts(t *testing.T) {
	for value, want := range map[string]time.Time{
		"2024-05-01T10:00:00.123456+00:00": time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC),
		"2024-05-01T10:00:00":              time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		"2024-05-01 18:00:00+08:00":        time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	} {
		path := filepath.Join(t.TempDir(), "h.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"last_crawl_time":"`+value+`","total_articles":1}`), 0o644))

		h, ok := NewHistoryStore(path, logger.Nop()).Load()
		require.True(t, ok, value)
		assert.True(t, want.Equal(h.LastCrawlTime), value)
	}
}

func TestHistoryStore_CorruptIsAbsent(t *testing.T) {
	for _, content := range []string{
		`{not json`,
		`{"total_articles": 3}`,
		`{"last_crawl_time": "yesterday", "total_articles": 3}`,
		`[]`,
	} {
		path := filepath.Join(t.TempDir(), "h.json")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		_, ok := NewHistoryStore(path, logger.Nop()).Load()
		assert.False(t, ok, content)
	}
}

func sampleRecords() []models.ArticleRecord {
	return []models.ArticleRecord{
		{
			ID:               "1",
			Title:            "<b>Ascend</b> 入门",
			UpdateTime:       "1700000000",
			Views:            10,
			IsTop:            true,
			Tags:             []json.RawMessage{json.RawMessage(`{"tagName":"CANN"}`)},
			UploadInfo:       []json.RawMessage{},
			AdditionalOption: json.RawMessage(`{"a": 1}`),
		},
		{ID: "2", Title: "plain, with comma"},
	}
}

func TestCorpusStore_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	s := NewCorpusStore(dir, "articles", true, logger.Nop())

	assert.Equal(t, filepath.Join(dir, "articles_original.json"), s.TargetPath("original"))
	assert.Equal(t, filepath.Join(dir, "articles_all.json"), s.AllPath())
	assert.Equal(t, filepath.Join(dir, "articles_original_incremental.json"), s.IncrementalPath("original"))

	require.NoError(t, s.SaveAll(sampleRecords()))

	loaded, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "<b>Ascend</b> 入门", loaded[0].Title)
	assert.True(t, loaded[0].IsTop)
	require.Len(t, loaded[0].Tags, 1)

	data, err := os.ReadFile(s.AllPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "<b>Ascend</b> 入门", "html and non-ascii are written verbatim")
	assert.Contains(t, string(data), "\n  {\n    \"id\": \"1\"", "two-space indentation")

	_, err = os.Stat(filepath.Join(dir, "articles_all.csv"))
	assert.NoError(t, err)
}

func TestCorpusStore_EmptyWritesJSONOnly(t *testing.T) {
	dir := t.TempDir()
	s := NewCorpusStore(dir, "articles", true, logger.Nop())

	require.NoError(t, s.SaveIncremental("original", nil))

	data, err := os.ReadFile(s.IncrementalPath("original"))
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(string(data)))

	_, err = os.Stat(filepath.Join(dir, "articles_original_incremental.csv"))
	assert.True(t, os.IsNotExist(err))
}

func TestCorpusStore_LoadMissing(t *testing.T) {
	s := NewCorpusStore(t.TempDir(), "", false, logger.Nop())

	records, err := s.LoadAll()
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestCorpusStore_LoadNull(t *testing.T) {
	s := NewCorpusStore(t.TempDir(), "", false, logger.Nop())
	require.NoError(t, os.WriteFile(s.AllPath(), []byte(`null`), 0o644))

	records, err := s.LoadAll()
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestCorpusStore_LoadLooselyTypedRecords(t *testing.T) {
	s := NewCorpusStore(t.TempDir(), "", false, logger.Nop())

	stored := `[
		{"id": 12345, "views": "42", "likes": 3.0, "is_top": 1, "is_digest": "true", "tags": null},
		{"id": "a2", "update_time": 1717228800, "additional_option": {"k": "v"}, "upload_info": []}
	]`
	require.NoError(t, os.WriteFile(s.AllPath(), []byte(stored), 0o644))

	records, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "12345", records[0].ID)
	assert.EqualValues(t, 42, records[0].Views)
	assert.EqualValues(t, 3, records[0].Likes)
	assert.True(t, records[0].IsTop)
	assert.True(t, records[0].IsDigest)
	assert.Nil(t, records[0].Tags)

	assert.Equal(t, "1717228800", records[1].UpdateTime)
	assert.JSONEq(t, `{"k": "v"}`, string(records[1].AdditionalOption))
	assert.NotNil(t, records[1].UploadInfo)
	assert.Empty(t, records[1].UploadInfo)

	backups, err := filepath.Glob(filepath.Join(s.Dir(), "*.bak"))
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestCorpusStore_LoadCorruptMovesFileAside(t *testing.T) {
	s := NewCorpusStore(t.TempDir(), "", false, logger.Nop())
	s.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	for _, body := range []string{`{"oops":`, `{"id":"not a list"}`, `[{"id":"a1"}, "stray"]`} {
		require.NoError(t, os.WriteFile(s.AllPath(), []byte(body), 0o644))

		records, err := s.LoadAll()
		require.NoError(t, err, body)
		assert.Empty(t, records, body)
		assert.NoFileExists(t, s.AllPath(), body)

		backup := s.AllPath() + ".20240601T120000.000000000Z.bak"
		kept, err := os.ReadFile(backup)
		require.NoError(t, err, body)
		assert.Equal(t, body, string(kept))
		require.NoError(t, os.Remove(backup))
	}

	require.NoError(t, s.SaveAll(sampleRecords()))
	assert.FileExists(t, s.AllPath())
}

func TestCorpusStore_LoadFailsWhenFileCannotBeMovedAside(t *testing.T) {
	dir := t.TempDir()
	s := NewCorpusStore(dir, "", false, logger.Nop())

	// A directory at the corpus path cannot be read as a file, and a
	// directory of the same name as the backup blocks the rename.
	require.NoError(t, os.Mkdir(s.AllPath(), 0o755))
	s.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	require.NoError(t, os.Mkdir(s.AllPath()+".20240601T120000.000000000Z.bak", 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.AllPath()+".20240601T120000.000000000Z.bak", "x"), []byte("x"), 0o644))

	_, err := s.LoadAll()
	require.Error(t, err)
}

func TestCorpusStore_SaveFailsOnUnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s := NewCorpusStore(filepath.Join(blocker, "data"), "articles", false, logger.Nop())
	assert.Error(t, s.SaveAll(sampleRecords()))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRecords()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	header := rows[0]
	assert.True(t, sortedStrings(header), "header is sorted")

	col := func(row []string, name string) string {
		for i, h := range header {
			if h == name {
				return row[i]
			}
		}

		t.Fatalf("missing column %s", name)

		return ""
	}

	assert.Equal(t, "1", col(rows[1], "id"))
	assert.Equal(t, "<b>Ascend</b> 入门", col(rows[1], "title"))
	assert.Equal(t, "10", col(rows[1], "views"))
	assert.Equal(t, "true", col(rows[1], "is_top"))
	assert.Equal(t, `[{"tagName":"CANN"}]`, col(rows[1], "tags"))
	assert.Equal(t, `[]`, col(rows[1], "upload_info"))
	assert.Equal(t, `{"a":1}`, col(rows[1], "additional_option"))

	assert.Equal(t, "plain, with comma", col(rows[2], "title"))
	assert.Equal(t, "", col(rows[2], "tags"), "absent lists are empty cells")
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}

	return true
}
