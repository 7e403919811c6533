package htmlsearch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpclient "github.com/kosarica/deal-service/internal/http"
	"github.com/kosarica/deal-service/internal/http/ratelimit"
)

const page1 = `<html><body>
<div class="grid">
  <div class="product">
    <a class="title" href="/p/laptop-1"><span class="name">Laptop One</span></a>
    <span class="price">S/ 1,200.00</span>
    <img class="thumb" src="/img/1.jpg">
    <span class="off">-15%</span>
  </div>
  <div class="product">
    <a class="title" href="/p/laptop-2"><span class="name">Laptop Two</span></a>
    <span class="price">S/ 900.00</span>
  </div>
  <div class="product">
    <a class="title" href="/p/no-price"><span class="name">No Price</span></a>
    <span class="price">Agotado</span>
  </div>
</div>
<a class="next" href="/search?q=laptop&page=2">Siguiente</a>
</body></html>`

const page2 = `<html><body>
<div class="product">
  <a class="title" href="/p/laptop-3"><span class="name">Laptop Three</span></a>
  <span class="price">S/ 700.00</span>
</div>
</body></html>`

func newServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, page2)
			return
		}
		fmt.Fprint(w, page1)
	}))
}

func testConfig(base string) Config {
	return Config{
		Name:             "shop",
		SearchURL:        base + "/search?q={query}",
		ItemSelector:     "div.product",
		NameSelector:     ".name",
		PriceSelector:    ".price",
		LinkSelector:     "a.title",
		ImageSelector:    "img.thumb",
		DiscountSelector: ".off",
	}
}

func testClient() *httpclient.Client {
	return httpclient.NewClient(ratelimit.Config{MaxRetries: 0})
}

func TestSearch_ExtractsListings(t *testing.T) {
	srv := newServer()
	defer srv.Close()

	p, err := New(testConfig(srv.URL), testClient())
	require.NoError(t, err)

	listings, err := p.Search(context.Background(), "laptop")
	require.NoError(t, err)
	require.Len(t, listings, 2)

	assert.Equal(t, "Laptop One", listings[0].Name)
	assert.Equal(t, "1200", listings[0].Price.String())
	assert.Equal(t, srv.URL+"/p/laptop-1", listings[0].URL)
	require.NotNil(t, listings[0].Image)
	assert.Equal(t, srv.URL+"/img/1.jpg", *listings[0].Image)
	require.NotNil(t, listings[0].DiscountPercent)
	assert.Equal(t, 15, *listings[0].DiscountPercent)

	assert.Equal(t, "Laptop Two", listings[1].Name)
	assert.Nil(t, listings[1].DiscountPercent)
}

func TestSearch_FollowsPagination(t *testing.T) {
	srv := newServer()
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.NextSelector = "a.next"
	cfg.MaxPages = 2

	p, err := New(cfg, testClient())
	require.NoError(t, err)

	listings, err := p.Search(context.Background(), "laptop")
	require.NoError(t, err)
	require.Len(t, listings, 3)
	assert.Equal(t, "Laptop Three", listings[2].Name)
}

func TestSearch_MaxItems(t *testing.T) {
	srv := newServer()
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxItems = 1

	p, err := New(cfg, testClient())
	require.NoError(t, err)

	listings, err := p.Search(context.Background(), "laptop")
	require.NoError(t, err)
	assert.Len(t, listings, 1)
}

func TestSearch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := New(testConfig(srv.URL), testClient())
	require.NoError(t, err)

	_, err = p.Search(context.Background(), "laptop")
	assert.Error(t, err)
}

func TestSearch_HonoursContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p, err := New(testConfig(srv.URL), testClient())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = p.Search(ctx, "laptop")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSearch_RateLimitPastDeadlineIsTimeout(t *testing.T) {
	srv := newServer()
	defer srv.Close()

	client := httpclient.NewClient(ratelimit.Config{RequestsPerSecond: 0.5, Burst: 1})
	p, err := New(testConfig(srv.URL), client)
	require.NoError(t, err)

	_, err = p.Search(context.Background(), "laptop")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = p.Search(ctx, "laptop")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
