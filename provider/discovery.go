package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// ErrDiscovery is returned when a discovery document cannot be fetched or
// lacks a required endpoint.
var ErrDiscovery = errors.New("openid discovery failed")

const maxDiscoveryBytes = 1 << 20

// Discovery is the subset of an OpenID discovery document the exchange needs.
type Discovery struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
}

func (d Discovery) validate() error {
	if d.AuthorizationEndpoint == "" || d.TokenEndpoint == "" {
		return fmt.Errorf("%w: authorization_endpoint and token_endpoint are required", ErrDiscovery)
	}
	return nil
}

// Discover fetches and validates the discovery document at url.
func Discover(ctx context.Context, client *http.Client, url string) (*Discovery, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscovery, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscovery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrDiscovery, resp.StatusCode)
	}

	var doc Discovery
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDiscoveryBytes)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscovery, err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DiscoveryCache memoizes discovery documents per URL. Failed fetches are
// not cached.
type DiscoveryCache struct {
	client *http.Client

	mu   sync.Mutex
	docs map[string]*Discovery
}

// NewDiscoveryCache returns an empty cache that fetches with client.
func NewDiscoveryCache(client *http.Client) *DiscoveryCache {
	return &DiscoveryCache{client: client, docs: make(map[string]*Discovery)}
}

// Get returns the cached document for url, fetching it on first use.
func (c *DiscoveryCache) Get(ctx context.Context, url string) (*Discovery, error) {
	c.mu.Lock()
	doc, ok := c.docs[url]
	c.mu.Unlock()
	if ok {
		return doc, nil
	}

	doc, err := Discover(ctx, c.client, url)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if cached, ok := c.docs[url]; ok {
		doc = cached
	} else {
		c.docs[url] = doc
	}
	c.mu.Unlock()
	return doc, nil
}
