package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bbsharvest/internal/config"
	"bbsharvest/internal/models"
)

func TestPageURL(t *testing.T) {
	target := models.CrawlTarget{Key: "k", SectionID: "s1", TopicClassID: "tc1", BaseURL: "https://forum.example/list?lang=zh"}

	u, err := url.Parse(PageURL(target, 3, 12))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "s1", q.Get("sectionId"))
	assert.Equal(t, "1", q.Get("filterCondition"))
	assert.Equal(t, "3", q.Get("pageIndex"))
	assert.Equal(t, "12", q.Get("pageSize"))
	assert.Equal(t, "tc1", q.Get("topicClassId"))
	assert.Equal(t, "zh", q.Get("lang"), "existing query parameters are kept")
	assert.Equal(t, "/list", u.Path)
}

func TestPageURL_DefaultEndpoint(t *testing.T) {
	u, err := url.Parse(PageURL(models.CrawlTarget{Key: "k"}, 1, 12))
	require.NoError(t, err)
	assert.Equal(t, "www.hiascend.com", u.Host)
}

func TestHTTPFetcher_FetchPage(t *testing.T) {
	var got *http.Request

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"0","data":{"totalCount":1,"resultList":[{"postId":"9"}]}}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5*time.Second, map[string]string{"Referer": "https://forum.example/"}, config.StaticCredentials("SESSION=abc; lang=zh"))
	target := models.CrawlTarget{Key: "k", SectionID: "s1", TopicClassID: "tc1", BaseURL: srv.URL}

	payload, err := f.FetchPage(context.Background(), target, 2, 12)
	require.NoError(t, err)
	require.Contains(t, payload, "data")

	require.NotNil(t, got)
	assert.Equal(t, "2", got.URL.Query().Get("pageIndex"))
	assert.Equal(t, "s1", got.URL.Query().Get("sectionId"))
	assert.Equal(t, "https://forum.example/", got.Header.Get("Referer"))
	assert.NotEmpty(t, got.Header.Get("User-Agent"))

	session, err := got.Cookie("SESSION")
	require.NoError(t, err)
	assert.Equal(t, "abc", session.Value)

	lang, err := got.Cookie("lang")
	require.NoError(t, err)
	assert.Equal(t, "zh", lang.Value)
}

func TestHTTPFetcher_SendsCookieVerbatim(t *testing.T) {
	const credential = `sid=abc def; tok="q\"x"; x=a,b`

	var got []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Values("Cookie")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second, nil, config.StaticCredentials("  "+credential+"\n"))

	_, err := f.FetchPage(context.Background(), models.CrawlTarget{BaseURL: srv.URL}, 1, 12)
	require.NoError(t, err)
	assert.Equal(t, []string{credential}, got)
}

func TestHTTPFetcher_BlankCredentialSendsNoCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Values("Cookie"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second, nil, config.StaticCredentials(" \t"))

	_, err := f.FetchPage(context.Background(), models.CrawlTarget{BaseURL: srv.URL}, 1, 12)
	require.NoError(t, err)
}

func TestHTTPFetcher_WithHTTPClient(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"resultList":[]}}`))
	}))
	defer srv.Close()

	target := models.CrawlTarget{BaseURL: srv.URL}

	_, err := NewHTTPFetcher(time.Second, nil, nil).FetchPage(context.Background(), target, 1, 12)
	require.Error(t, err, "the default client does not trust the test certificate")

	payload, err := NewHTTPFetcher(time.Second, nil, nil).WithHTTPClient(srv.Client()).FetchPage(context.Background(), target, 1, 12)
	require.NoError(t, err)
	assert.Contains(t, payload, "data")
}

func TestHTTPFetcher_NoCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Cookies())
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(time.Second, nil, nil).FetchPage(context.Background(), models.CrawlTarget{BaseURL: srv.URL}, 1, 12)
	require.NoError(t, err)
}

func TestHTTPFetcher_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"data":{"resultList":[]}}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second, nil, nil)

	res, err := f.FetchWithMetrics(context.Background(), models.CrawlTarget{BaseURL: srv.URL}, 1, 12)
	require.ErrorIs(t, err, ErrUnexpectedStatusCode)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Nil(t, res.Payload)
}

func TestHTTPFetcher_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>login required</html>`))
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(time.Second, nil, nil).FetchPage(context.Background(), models.CrawlTarget{BaseURL: srv.URL}, 1, 12)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestHTTPFetcher_Timeout(t *testing.T) {
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewHTTPFetcher(50*time.Millisecond, nil, nil).FetchPage(context.Background(), models.CrawlTarget{BaseURL: srv.URL}, 1, 12)
	require.Error(t, err)
}
