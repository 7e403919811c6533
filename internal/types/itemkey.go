package types

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
)

// urlFlags keeps the normalization to rewrites that cannot merge two
// different products: case of scheme and host, default ports, dot segments,
// fragments, trailing slashes and query ordering.
const urlFlags = purell.FlagsSafe |
	purell.FlagRemoveDotSegments |
	purell.FlagRemoveFragment |
	purell.FlagRemoveTrailingSlash |
	purell.FlagSortQuery

// trackingParams are query parameters that never identify a product
var trackingParams = []string{"gclid", "fbclid", "msclkid", "_ga", "mc_eid", "mc_cid"}

// ItemKey uniquely identifies a trackable item across time
type ItemKey struct {
	Store string `json:"store"`
	URL   string `json:"url"`
}

// NewItemKey builds a key from a store identifier and a raw item URL
func NewItemKey(store, rawURL string) ItemKey {
	return ItemKey{
		Store: CanonicalStore(store),
		URL:   NormalizeURL(rawURL),
	}
}

// NormalizeURL strips tracking parameters and applies purell's safe
// normalizations. Unparseable URLs are returned trimmed but otherwise untouched.
func NormalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}

	if u.RawQuery != "" {
		q := u.Query()
		for param := range q {
			if isTrackingParam(param) {
				q.Del(param)
			}
		}
		u.RawQuery = q.Encode()
	}

	return purell.NormalizeURL(u, urlFlags)
}

func isTrackingParam(param string) bool {
	p := strings.ToLower(param)
	if strings.HasPrefix(p, "utm_") {
		return true
	}
	for _, t := range trackingParams {
		if p == t {
			return true
		}
	}
	return false
}

// storeEscaper keeps the "store|url" text form unambiguous: the store is the
// part before the first separator, so a separator inside it is escaped.
var (
	storeEscaper   = strings.NewReplacer("%", "%25", "|", "%7C")
	storeUnescaper = strings.NewReplacer("%25", "%", "%7C", "|", "%7c", "|")
)

// String returns a stable "store|url" representation. A "|" or "%" in the
// store is percent-escaped.
func (k ItemKey) String() string {
	return storeEscaper.Replace(k.Store) + "|" + k.URL
}

// MarshalText lets ItemKey be used as a JSON object key
func (k ItemKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the "store|url" representation
func (k *ItemKey) UnmarshalText(text []byte) error {
	store, u, ok := strings.Cut(string(text), "|")
	if !ok {
		return fmt.Errorf("invalid item key %q", string(text))
	}
	k.Store = storeUnescaper.Replace(store)
	k.URL = u
	return nil
}
