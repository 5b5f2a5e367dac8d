package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ascension-labs/govcore/internal/port/cache"
	"github.com/ascension-labs/govcore/internal/port/reasoning"
)

// CachedProvider memoizes provider responses keyed by the full request.
// Only deterministic requests (temperature 0) are cached; sampled requests
// always reach the wrapped provider. Cache failures never fail a call.
type CachedProvider struct {
	inner reasoning.Provider
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedProvider wraps inner with c.
func NewCachedProvider(inner reasoning.Provider, c cache.Cache, ttl time.Duration) *CachedProvider {
	return &CachedProvider{inner: inner, cache: c, ttl: ttl}
}

// Generate returns a cached response when one exists, otherwise calls the
// wrapped provider and stores a successful response.
func (p *CachedProvider) Generate(ctx context.Context, req reasoning.Request) (*reasoning.Response, error) {
	if req.Temperature > 0 {
		return p.inner.Generate(ctx, req)
	}
	key, err := requestKey(req)
	if err != nil {
		return p.inner.Generate(ctx, req)
	}

	if data, ok, err := p.cache.Get(ctx, key); err != nil {
		slog.WarnContext(ctx, "provider cache get failed", "error", err)
	} else if ok {
		var resp reasoning.Response
		if err := json.Unmarshal(data, &resp); err == nil {
			return &resp, nil
		}
		slog.WarnContext(ctx, "provider cache entry corrupt, dropping", "key", key)
		_ = p.cache.Delete(ctx, key)
	}

	resp, err := p.inner.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(resp); err == nil {
		if err := p.cache.Set(ctx, key, data, p.ttl); err != nil {
			slog.WarnContext(ctx, "provider cache set failed", "error", err)
		}
	}
	return resp, nil
}

// requestKey is a hex sha256 of the request's canonical JSON. Hex keeps
// it valid as a NATS KV key.
func requestKey(req reasoning.Request) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
