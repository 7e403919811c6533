package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchURL(t *testing.T) {
	got := SearchURL("https://shop.example/search?q={query}&page=1", " gaming laptop ")
	assert.Equal(t, "https://shop.example/search?q=gaming+laptop&page=1", got)
}

func TestResolveURL(t *testing.T) {
	assert.Equal(t, "https://shop.example/p/1", ResolveURL("https://shop.example/search?q=x", "/p/1"))
	assert.Equal(t, "https://other.example/p/2", ResolveURL("https://shop.example/", "https://other.example/p/2"))
	assert.Equal(t, "", ResolveURL("https://shop.example/", "  "))
}

func TestDiscount(t *testing.T) {
	d := Discount("-20%")
	require.NotNil(t, d)
	assert.Equal(t, 20, *d)

	d = Discount("35")
	require.NotNil(t, d)
	assert.Equal(t, 35, *d)

	assert.Nil(t, Discount(""))
	assert.Nil(t, Discount("150"))
	assert.Nil(t, Discount("oferta"))
}

func TestPath(t *testing.T) {
	assert.Nil(t, Path(""))
	assert.Equal(t, []string{"data", "items"}, Path("data.items"))
}
