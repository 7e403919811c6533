package jsonapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpclient "github.com/kosarica/deal-service/internal/http"
	"github.com/kosarica/deal-service/internal/http/ratelimit"
)

const searchResponse = `{
  "data": {
    "products": [
      {"title": "Laptop Pro 14", "pricing": {"sale": "S/ 1,299.00"}, "href": "/p/laptop-pro-14", "img": "https://cdn.example/1.jpg", "badge": "-20%"},
      {"title": "Laptop Air", "pricing": {"sale": 899.5}, "href": "https://shop.example/p/laptop-air"},
      {"title": "Broken", "pricing": {"sale": "consultar"}, "href": "/p/broken"},
      "not-an-object"
    ]
  }
}`

func testConfig(url string) Config {
	return Config{
		Name:         "shop",
		SearchURL:    url + "/api/search?q={query}",
		ItemsPath:    "data.products",
		NamePath:     "title",
		PricePath:    "pricing.sale",
		URLPath:      "href",
		ImagePath:    "img",
		DiscountPath: "badge",
	}
}

func testClient() *httpclient.Client {
	return httpclient.NewClient(ratelimit.Config{MaxRetries: 0, InitialBackoffMs: 1, MaxBackoffMs: 1})
}

func TestSearch_ParsesProducts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "laptop", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchResponse))
	}))
	defer srv.Close()

	p, err := New(testConfig(srv.URL), testClient())
	require.NoError(t, err)

	listings, err := p.Search(context.Background(), "laptop")
	require.NoError(t, err)
	require.Len(t, listings, 2)

	assert.Equal(t, "Laptop Pro 14", listings[0].Name)
	assert.Equal(t, "1299", listings[0].Price.String())
	assert.Equal(t, srv.URL+"/p/laptop-pro-14", listings[0].URL)
	require.NotNil(t, listings[0].Image)
	require.NotNil(t, listings[0].DiscountPercent)
	assert.Equal(t, 20, *listings[0].DiscountPercent)

	assert.Equal(t, "899.5", listings[1].Price.String())
	assert.Nil(t, listings[1].Image)
}

func TestSearch_MissingItemsPathIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": {}}`))
	}))
	defer srv.Close()

	p, err := New(testConfig(srv.URL), testClient())
	require.NoError(t, err)

	listings, err := p.Search(context.Background(), "laptop")
	require.NoError(t, err)
	assert.Empty(t, listings)
}

func TestSearch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p, err := New(testConfig(srv.URL), testClient())
	require.NoError(t, err)

	_, err = p.Search(context.Background(), "laptop")
	assert.Error(t, err)
}

func TestNew_RequiresPaths(t *testing.T) {
	_, err := New(Config{Name: "shop"}, nil)
	assert.Error(t, err)
}
