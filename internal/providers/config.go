package providers

import (
	"fmt"

	httpclient "github.com/kosarica/deal-service/internal/http"
	"github.com/kosarica/deal-service/internal/http/ratelimit"
	"github.com/kosarica/deal-service/internal/providers/htmlsearch"
	"github.com/kosarica/deal-service/internal/providers/jsonapi"
)

// Kind selects the adapter used for a retailer
type Kind string

const (
	KindJSON Kind = "json"
	KindHTML Kind = "html"
)

// Config describes one retailer. SearchURL contains a {query} placeholder.
type Config struct {
	Name      string            `mapstructure:"name" json:"name"`
	Kind      Kind              `mapstructure:"kind" json:"kind"`
	SearchURL string            `mapstructure:"search_url" json:"searchUrl"`
	Headers   map[string]string `mapstructure:"headers" json:"headers,omitempty"`
	MaxItems  int               `mapstructure:"max_items" json:"maxItems,omitempty"`
	RateLimit *ratelimit.Config `mapstructure:"rate_limit" json:"rateLimit,omitempty"`

	// JSON adapter field paths, dot separated
	ItemsPath    string `mapstructure:"items_path" json:"itemsPath,omitempty"`
	NamePath     string `mapstructure:"name_path" json:"namePath,omitempty"`
	PricePath    string `mapstructure:"price_path" json:"pricePath,omitempty"`
	URLPath      string `mapstructure:"url_path" json:"urlPath,omitempty"`
	ImagePath    string `mapstructure:"image_path" json:"imagePath,omitempty"`
	DiscountPath string `mapstructure:"discount_path" json:"discountPath,omitempty"`
	StorePath    string `mapstructure:"store_path" json:"storePath,omitempty"`

	// HTML adapter CSS selectors
	ItemSelector     string `mapstructure:"item_selector" json:"itemSelector,omitempty"`
	NameSelector     string `mapstructure:"name_selector" json:"nameSelector,omitempty"`
	PriceSelector    string `mapstructure:"price_selector" json:"priceSelector,omitempty"`
	LinkSelector     string `mapstructure:"link_selector" json:"linkSelector,omitempty"`
	ImageSelector    string `mapstructure:"image_selector" json:"imageSelector,omitempty"`
	DiscountSelector string `mapstructure:"discount_selector" json:"discountSelector,omitempty"`
	NextSelector     string `mapstructure:"next_selector" json:"nextSelector,omitempty"`
	MaxPages         int    `mapstructure:"max_pages" json:"maxPages,omitempty"`
}

// New builds the adapter described by cfg
func New(cfg Config) (Provider, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("provider config: name is required")
	}
	if cfg.SearchURL == "" {
		return nil, fmt.Errorf("provider %s: search_url is required", cfg.Name)
	}

	rl := ratelimit.DefaultConfig()
	if cfg.RateLimit != nil {
		rl = *cfg.RateLimit
	}
	client := httpclient.NewClient(rl)

	switch cfg.Kind {
	case KindJSON:
		return jsonapi.New(jsonapi.Config{
			Name:         cfg.Name,
			SearchURL:    cfg.SearchURL,
			Headers:      cfg.Headers,
			MaxItems:     cfg.MaxItems,
			ItemsPath:    cfg.ItemsPath,
			NamePath:     cfg.NamePath,
			PricePath:    cfg.PricePath,
			URLPath:      cfg.URLPath,
			ImagePath:    cfg.ImagePath,
			DiscountPath: cfg.DiscountPath,
			StorePath:    cfg.StorePath,
		}, client)
	case KindHTML:
		return htmlsearch.New(htmlsearch.Config{
			Name:             cfg.Name,
			SearchURL:        cfg.SearchURL,
			Headers:          cfg.Headers,
			MaxItems:         cfg.MaxItems,
			ItemSelector:     cfg.ItemSelector,
			NameSelector:     cfg.NameSelector,
			PriceSelector:    cfg.PriceSelector,
			LinkSelector:     cfg.LinkSelector,
			ImageSelector:    cfg.ImageSelector,
			DiscountSelector: cfg.DiscountSelector,
			NextSelector:     cfg.NextSelector,
			MaxPages:         cfg.MaxPages,
		}, client)
	default:
		return nil, fmt.Errorf("provider %s: unknown kind %q", cfg.Name, cfg.Kind)
	}
}

// Build creates a registry from provider configs, preserving their order
func Build(cfgs []Config) (*Registry, error) {
	r, _ := NewRegistry()
	for _, cfg := range cfgs {
		p, err := New(cfg)
		if err != nil {
			return nil, err
		}
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}
