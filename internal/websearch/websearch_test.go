package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eqerrors "eventqual/internal/errors"
)

type stubProvider struct {
	raw   any
	err   error
	panic bool
	delay time.Duration
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Search(ctx context.Context, query string) (any, error) {
	if s.panic {
		panic("provider exploded")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.raw, s.err
}

func TestConnector(t *testing.T) {
	ctx := context.Background()

	t.Run("success forwards raw untouched", func(t *testing.T) {
		raw := map[string]any{"organic": []any{}}
		res := NewConnector(&stubProvider{raw: raw}, time.Second).Search(ctx, "jane doe")
		assert.True(t, res.Success)
		assert.Equal(t, "jane doe", res.Query)
		assert.Equal(t, raw, res.Raw)
		assert.Empty(t, res.Error)
		assert.False(t, res.Timestamp.IsZero())
	})

	t.Run("error becomes failed result", func(t *testing.T) {
		res := NewConnector(&stubProvider{err: errors.New("quota exceeded")}, 0).Search(ctx, "q")
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "quota exceeded")
		assert.Nil(t, res.Raw)
	})

	t.Run("panic is recovered", func(t *testing.T) {
		res := NewConnector(&stubProvider{panic: true}, 0).Search(ctx, "q")
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "provider exploded")
	})

	t.Run("timeout applies", func(t *testing.T) {
		res := NewConnector(&stubProvider{delay: time.Second}, 10*time.Millisecond).Search(ctx, "q")
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, context.DeadlineExceeded.Error())
	})
}

func TestBrightDataProvider(t *testing.T) {
	var got brightDataRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/request", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"organic":[{"title":"Jane Doe - Acme","link":"https://acme.example/jane","description":"CTO"}]}`)
	}))
	defer srv.Close()

	p, err := NewBrightDataProvider(BrightDataConfig{Endpoint: srv.URL + "/", Token: "tok", Zone: "serp_zone"})
	require.NoError(t, err)
	assert.Equal(t, "brightdata_serp", p.Name())

	raw, err := p.Search(context.Background(), "Jane Doe CTO")
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, "serp_zone", got.Zone)
	assert.Equal(t, "raw", got.Format)
	assert.True(t, strings.HasPrefix(got.URL, "https://www.google.com/search?q=Jane+Doe+CTO"))
	assert.Contains(t, got.URL, "brd_json=1")

	m, ok := raw.(map[string]any)
	require.True(t, ok)
	organic := m["organic"].([]any)
	require.Len(t, organic, 1)
	assert.Equal(t, "https://acme.example/jane", organic[0].(map[string]any)["link"])
}

func TestBrightDataProviderNonJSONAndErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		_, _ = io.WriteString(w, "<html>not json</html>")
	}))
	defer srv.Close()

	p, err := NewBrightDataProvider(BrightDataConfig{Endpoint: srv.URL, Token: "tok"})
	require.NoError(t, err)

	raw, err := p.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "<html>not json</html>", raw)

	status.Store(http.StatusUnauthorized)
	_, err = p.Search(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, eqerrors.Is(err, eqerrors.EExternalUnavailable))

	status.Store(http.StatusBadRequest)
	_, err = p.Search(context.Background(), "q")
	assert.True(t, eqerrors.Is(err, eqerrors.ESearchFailed))

	_, err = NewBrightDataProvider(BrightDataConfig{})
	assert.True(t, eqerrors.Is(err, eqerrors.EInvalidInput))
}

const ddgPage = `<html><body>
<div class="result results_links results_links_deep web-result">
  <h2><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Facme.example%2Fteam&amp;rut=abc">Jane <b>Doe</b> - Acme</a></h2>
  <a class="result__snippet" href="#">CTO of <b>Acme</b>, speaker.</a>
</div>
<div class="result results_links web-result">
  <h2><a class="result__a" href="https://conf.example/2024">Conf 2024</a></h2>
</div>
<div class="result results_links web-result">
  <a class="result__snippet">orphan snippet without link</a>
</div>
</body></html>`

func TestParseDuckDuckGoResults(t *testing.T) {
	results, err := parseDuckDuckGoResults(ddgPage, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Jane Doe - Acme", results[0].title)
	assert.Equal(t, "https://acme.example/team", results[0].url)
	assert.Equal(t, "CTO of Acme , speaker.", results[0].snippet)
	assert.Equal(t, "https://conf.example/2024", results[1].url)

	limited, err := parseDuckDuckGoResults(ddgPage, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDuckDuckGoProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Jane Doe", r.URL.Query().Get("q"))
		_, _ = io.WriteString(w, ddgPage)
	}))
	defer srv.Close()

	p := NewDuckDuckGoProvider()
	p.Endpoint = srv.URL + "/html/"

	raw, err := p.Search(context.Background(), "Jane Doe")
	require.NoError(t, err)
	list := raw.([]any)
	require.Len(t, list, 2)
	first := list[0].(map[string]any)
	assert.Equal(t, "https://acme.example/team", first["url"])
	assert.Equal(t, "Jane Doe - Acme", first["title"])
}

const newsFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Google News</title>
<item>
  <title>Jane Doe named keynote at DevConf</title>
  <link>https://news.example/devconf-keynote</link>
  <description>&lt;a href="https://news.example/devconf-keynote"&gt;Jane Doe named keynote&lt;/a&gt; &lt;font&gt;News Example&lt;/font&gt;</description>
</item>
<item>
  <title>Acme raises Series B</title>
  <link>https://news.example/acme-series-b</link>
  <description>Plain text description</description>
</item>
</channel></rss>`

func TestNewsProvider(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = io.WriteString(w, newsFeed)
	}))
	defer srv.Close()

	p := NewNewsProvider()
	p.Endpoint = srv.URL

	raw, err := p.Search(context.Background(), "Jane Doe")
	require.NoError(t, err)
	assert.Contains(t, query, "ceid=US%3Aen")

	list := raw.([]any)
	require.Len(t, list, 2)
	first := list[0].(map[string]any)
	assert.Equal(t, "Jane Doe named keynote at DevConf", first["title"])
	assert.Equal(t, "https://news.example/devconf-keynote", first["link"])
	assert.Equal(t, "Jane Doe named keynote News Example", first["description"])
	assert.Equal(t, "Plain text description", list[1].(map[string]any)["description"])
}
