// Package ipfsmeta is a thin, optional collaborator: spec.md §1 names
// the IPFS metadata resolver as an external system out of this
// indexer's core scope, so this package never sits on the write path
// and nothing here is required for correctness. It exists only so
// `producer status --address` can optionally decorate a
// campaign's CID with a human-readable title fetched over a gateway,
// grounded on
// original_source/backend/core/services/metadata_resolver.py's
// fetch-and-cache shape (reimplemented against a plain HTTP gateway
// instead of Django's ORM-backed cache).
package ipfsmeta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ipfs/go-cid"
)

// Metadata is the subset of off-chain campaign metadata this resolver
// surfaces — a minimal projection of metadata_resolver.py's
// CampaignMetadata model fields.
type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageCID    string `json:"image_cid"`
}

// Resolver fetches metadata JSON from an IPFS HTTP gateway and caches
// it in memory for CacheDuration.
type Resolver struct {
	GatewayURL    string
	CacheDuration time.Duration
	httpClient    *http.Client

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	metadata  Metadata
	fetchedAt time.Time
}

func New(gatewayURL string, cacheDuration time.Duration) *Resolver {
	if cacheDuration <= 0 {
		cacheDuration = 24 * time.Hour
	}
	return &Resolver{
		GatewayURL:    gatewayURL,
		CacheDuration: cacheDuration,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		cache:         make(map[string]cacheEntry),
	}
}

// Resolve returns cached metadata for cidStr if still fresh,
// otherwise fetches it from the gateway. cidStr is validated as a
// well-formed CID before any network call.
func (r *Resolver) Resolve(ctx context.Context, cidStr string) (Metadata, error) {
	if _, err := cid.Decode(cidStr); err != nil {
		return Metadata{}, fmt.Errorf("ipfsmeta: invalid cid %q: %w", cidStr, err)
	}

	r.mu.Lock()
	entry, ok := r.cache[cidStr]
	r.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < r.CacheDuration {
		return entry.metadata, nil
	}

	md, err := r.fetch(ctx, cidStr)
	if err != nil {
		return Metadata{}, err
	}

	r.mu.Lock()
	r.cache[cidStr] = cacheEntry{metadata: md, fetchedAt: time.Now()}
	r.mu.Unlock()
	return md, nil
}

func (r *Resolver) fetch(ctx context.Context, cidStr string) (Metadata, error) {
	url := fmt.Sprintf("%s/ipfs/%s", r.GatewayURL, cidStr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("ipfsmeta: build request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("ipfsmeta: fetch %s: %w", cidStr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Metadata{}, fmt.Errorf("ipfsmeta: gateway returned %d for %s", resp.StatusCode, cidStr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Metadata{}, fmt.Errorf("ipfsmeta: read body: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return Metadata{}, fmt.Errorf("ipfsmeta: parse json: %w", err)
	}

	return Metadata{
		Name:        firstString(raw, "name", "title"),
		Description: firstString(raw, "description"),
		ImageCID:    firstString(raw, "image", "image_cid", "imageCid"),
	}, nil
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
