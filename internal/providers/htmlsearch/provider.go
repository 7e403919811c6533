// Package htmlsearch adapts retailers whose search results are server-rendered
// HTML, using CSS selectors.
package htmlsearch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	httpclient "github.com/kosarica/deal-service/internal/http"
	"github.com/kosarica/deal-service/internal/pricing"
	"github.com/kosarica/deal-service/internal/providers/extract"
	"github.com/kosarica/deal-service/internal/types"
)

// Config maps a search results page onto listings
type Config struct {
	Name             string
	SearchURL        string
	Headers          map[string]string
	MaxItems         int
	ItemSelector     string
	NameSelector     string
	PriceSelector    string
	LinkSelector     string
	ImageSelector    string
	DiscountSelector string
	NextSelector     string
	MaxPages         int
	RequestTimeout   time.Duration
}

// Provider scrapes a search results page with colly
type Provider struct {
	cfg       Config
	client    *httpclient.Client
	transport http.RoundTripper
}

// New creates an HTML search provider
func New(cfg Config, client *httpclient.Client) (*Provider, error) {
	if cfg.ItemSelector == "" || cfg.NameSelector == "" || cfg.PriceSelector == "" {
		return nil, fmt.Errorf("htmlsearch %s: item, name and price selectors are required", cfg.Name)
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if client == nil {
		client = httpclient.NewClientDefault()
	}
	return &Provider{cfg: cfg, client: client, transport: client.Transport()}, nil
}

// Name returns the retailer name
func (p *Provider) Name() string {
	return p.cfg.Name
}

// Search visits the search page (and up to MaxPages-1 follow-up pages) and
// collects the listings found by the item selector
func (p *Provider) Search(ctx context.Context, query string) ([]types.Listing, error) {
	c := colly.NewCollector(
		colly.UserAgent(httpclient.UserAgent),
		colly.StdlibContext(ctx),
	)
	c.WithTransport(p.transport)
	c.SetRequestTimeout(p.cfg.RequestTimeout)

	var (
		mu       sync.Mutex
		listings = make([]types.Listing, 0)
		pages    int
		waitErr  error
	)

	c.OnRequest(func(r *colly.Request) {
		for k, v := range p.cfg.Headers {
			r.Headers.Set(k, v)
		}
	})

	c.OnHTML(p.cfg.ItemSelector, func(e *colly.HTMLElement) {
		mu.Lock()
		defer mu.Unlock()
		if p.cfg.MaxItems > 0 && len(listings) >= p.cfg.MaxItems {
			return
		}
		if l, ok := p.parseItem(e); ok {
			listings = append(listings, l)
		}
	})

	if p.cfg.NextSelector != "" {
		c.OnHTML(p.cfg.NextSelector, func(e *colly.HTMLElement) {
			mu.Lock()
			pages++
			more := pages < p.cfg.MaxPages
			mu.Unlock()
			if !more {
				return
			}
			if next := e.Request.AbsoluteURL(e.Attr("href")); next != "" {
				_ = e.Request.Visit(next)
			}
		})
	}

	// Respect the per-retailer limiter on every page, including pagination
	c.OnRequest(func(r *colly.Request) {
		if err := p.client.Wait(ctx); err != nil {
			mu.Lock()
			if waitErr == nil {
				waitErr = err
			}
			mu.Unlock()
			r.Abort()
		}
	})

	if err := c.Visit(extract.SearchURL(p.cfg.SearchURL, query)); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("visit %s search page: %w", p.cfg.Name, err)
	}
	c.Wait()

	// a page cut short by the limiter still yields what was already parsed
	if waitErr != nil && len(listings) == 0 {
		return nil, fmt.Errorf("%s rate limiter: %w", p.cfg.Name, waitErr)
	}
	return listings, nil
}

func (p *Provider) parseItem(e *colly.HTMLElement) (types.Listing, bool) {
	price, err := pricing.ParsePrice(e.ChildText(p.cfg.PriceSelector))
	if err != nil {
		return types.Listing{}, false
	}

	l := types.Listing{
		Name:  strings.TrimSpace(e.ChildText(p.cfg.NameSelector)),
		Price: price,
	}

	linkSel := p.cfg.LinkSelector
	if linkSel == "" {
		linkSel = "a"
	}
	l.URL = e.Request.AbsoluteURL(e.ChildAttr(linkSel, "href"))

	if p.cfg.ImageSelector != "" {
		src := e.ChildAttr(p.cfg.ImageSelector, "src")
		if src == "" {
			src = e.ChildAttr(p.cfg.ImageSelector, "data-src")
		}
		if src != "" {
			l.Image = types.StringPtr(e.Request.AbsoluteURL(src))
		}
	}
	if p.cfg.DiscountSelector != "" {
		l.DiscountPercent = extract.Discount(e.ChildText(p.cfg.DiscountSelector))
	}
	return l, true
}
