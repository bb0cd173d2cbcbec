package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
)

const (
	originalSection  = "0157117713657966001"
	newTargetSection = "0101178462695499013"
)

// forumServer serves the topic list endpoint. Sections hold either generated
// posts, paged by pageIndex/pageSize, or a fixed first-page fixture.
type forumServer struct {
	srv    *httptest.Server
	cookie string
	hits   atomic.Int64

	mu       sync.Mutex
	posts    map[string][]map[string]any
	fixtures map[string][]byte
}

func newForumServer(t *testing.T, cookie string) *forumServer {
	t.Helper()

	fs := &forumServer{
		cookie:   cookie,
		posts:    map[string][]map[string]any{},
		fixtures: map[string][]byte{},
	}

	fs.srv = httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(fs.srv.Close)

	return fs
}

func (fs *forumServer) URL() string {
	return fs.srv.URL
}

func (fs *forumServer) requests() int {
	return int(fs.hits.Load())
}

func (fs *forumServer) setPosts(section string, posts []map[string]any) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.posts[section] = posts
}

func (fs *forumServer) setFixture(section, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("read fixture %s: %v", path, err))
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.fixtures[section] = data
}

func (fs *forumServer) handle(w http.ResponseWriter, r *http.Request) {
	fs.hits.Add(1)

	if c := r.Header.Get("Cookie"); c != fs.cookie {
		http.Error(w, "forbidden", http.StatusForbidden)

		return
	}

	q := r.URL.Query()
	section := q.Get("sectionId")
	pageIndex, _ := strconv.Atoi(q.Get("pageIndex"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))

	if pageIndex < 1 || pageSize < 1 || q.Get("topicClassId") == "" {
		http.Error(w, "bad paging parameters", http.StatusBadRequest)

		return
	}

	fs.mu.Lock()
	fixture, hasFixture := fs.fixtures[section]
	posts := fs.posts[section]
	fs.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if hasFixture {
		if pageIndex == 1 {
			_, _ = w.Write(fixture)

			return
		}

		writeList(w, 3, nil)

		return
	}

	from := min((pageIndex-1)*pageSize, len(posts))
	to := min(from+pageSize, len(posts))

	writeList(w, len(posts), posts[from:to])
}

func writeList(w http.ResponseWriter, total int, items []map[string]any) {
	if items == nil {
		items = []map[string]any{}
	}

	body := map[string]any{
		"code": "0",
		"msg":  "success",
		"data": map[string]any{
			"totalCount": total,
			"resultList": items,
		},
	}

	_ = json.NewEncoder(w).Encode(body)
}

// postsWithPrefix generates n posts <prefix>-1..<prefix>-n last edited at
// editedSec (epoch seconds).
func postsWithPrefix(prefix string, n int, editedSec int64) []map[string]any {
	posts := make([]map[string]any, 0, n)
	for i := 1; i <= n; i++ {
		posts = append(posts, post(fmt.Sprintf("%s-%d", prefix, i), editedSec*1000))
	}

	return posts
}

func post(id string, editedMs int64) map[string]any {
	return map[string]any{
		"postId":       id,
		"title":        "post " + id,
		"nickName":     "tester",
		"createTime":   strconv.FormatInt(editedMs, 10),
		"lastEditTime": strconv.FormatInt(editedMs, 10),
		"views":        10,
		"digest":       0,
	}
}
