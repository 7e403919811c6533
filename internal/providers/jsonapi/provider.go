// Package jsonapi adapts retailers that expose a JSON search endpoint.
package jsonapi

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/shopspring/decimal"

	httpclient "github.com/kosarica/deal-service/internal/http"
	"github.com/kosarica/deal-service/internal/pricing"
	"github.com/kosarica/deal-service/internal/providers/extract"
	"github.com/kosarica/deal-service/internal/types"
)

// Config maps a retailer's JSON search response onto listings.
// Paths are dot separated; an empty ItemsPath means the response is an array.
type Config struct {
	Name         string
	SearchURL    string
	Headers      map[string]string
	MaxItems     int
	ItemsPath    string
	NamePath     string
	PricePath    string
	URLPath      string
	ImagePath    string
	DiscountPath string
	StorePath    string
}

// Provider searches a JSON API
type Provider struct {
	cfg    Config
	client *httpclient.Client
}

// New creates a JSON API provider
func New(cfg Config, client *httpclient.Client) (*Provider, error) {
	if cfg.NamePath == "" || cfg.PricePath == "" || cfg.URLPath == "" {
		return nil, fmt.Errorf("jsonapi %s: name_path, price_path and url_path are required", cfg.Name)
	}
	if client == nil {
		client = httpclient.NewClientDefault()
	}
	return &Provider{cfg: cfg, client: client}, nil
}

// Name returns the retailer name
func (p *Provider) Name() string {
	return p.cfg.Name
}

// Search fetches the search endpoint and extracts listings.
// Items that cannot be parsed are skipped.
func (p *Provider) Search(ctx context.Context, query string) ([]types.Listing, error) {
	searchURL := extract.SearchURL(p.cfg.SearchURL, query)
	headers := map[string]string{"Accept": "application/json"}
	for k, v := range p.cfg.Headers {
		headers[k] = v
	}

	body, err := p.client.GetBytes(ctx, searchURL, headers)
	if err != nil {
		return nil, err
	}
	return p.parse(body, searchURL)
}

func (p *Provider) parse(body []byte, searchURL string) ([]types.Listing, error) {
	listings := make([]types.Listing, 0)

	_, err := jsonparser.ArrayEach(body, func(item []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if dataType != jsonparser.Object {
			return
		}
		if p.cfg.MaxItems > 0 && len(listings) >= p.cfg.MaxItems {
			return
		}
		if l, ok := p.parseItem(item, searchURL); ok {
			listings = append(listings, l)
		}
	}, extract.Path(p.cfg.ItemsPath)...)
	if errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return listings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", p.cfg.Name, err)
	}
	return listings, nil
}

func (p *Provider) parseItem(item []byte, searchURL string) (types.Listing, bool) {
	name := getString(item, p.cfg.NamePath)
	link := extract.ResolveURL(searchURL, getString(item, p.cfg.URLPath))
	price, ok := getPrice(item, p.cfg.PricePath)
	if !ok {
		return types.Listing{}, false
	}

	l := types.Listing{
		Name:  name,
		Price: price,
		Store: getString(item, p.cfg.StorePath),
		URL:   link,
	}
	if img := getString(item, p.cfg.ImagePath); img != "" {
		l.Image = types.StringPtr(extract.ResolveURL(searchURL, img))
	}
	if d := getString(item, p.cfg.DiscountPath); d != "" {
		l.DiscountPercent = extract.Discount(d)
	}
	return l, true
}

func getString(item []byte, path string) string {
	if path == "" {
		return ""
	}
	value, dataType, _, err := jsonparser.Get(item, extract.Path(path)...)
	if err != nil {
		return ""
	}
	switch dataType {
	case jsonparser.String:
		s, err := jsonparser.ParseString(value)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case jsonparser.Number:
		return string(value)
	default:
		return ""
	}
}

func getPrice(item []byte, path string) (decimal.Decimal, bool) {
	value, dataType, _, err := jsonparser.Get(item, extract.Path(path)...)
	if err != nil {
		return decimal.Zero, false
	}
	switch dataType {
	case jsonparser.Number:
		d, err := decimal.NewFromString(string(value))
		return d, err == nil
	case jsonparser.String:
		s, err := jsonparser.ParseString(value)
		if err != nil {
			return decimal.Zero, false
		}
		d, err := pricing.ParsePrice(s)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}
