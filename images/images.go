// ABOUTME: Image search for generated pages across Unsplash and Pexels, with an LRU cache.
// ABOUTME: Search never fails: missing keys, provider errors, and empty results degrade to deterministic placeholders.

package images

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/http"
	"regexp"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

const (
	DefaultCount = 6
	MaxCount     = 30
	cacheSize    = 1024

	SourceUnsplash    = "unsplash"
	SourcePexels      = "pexels"
	SourcePlaceholder = "placeholder"
)

// Image is one search hit in the shape the page generator embeds.
type Image struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail"`
	Alt       string `json:"alt"`
	Credit    string `json:"credit"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Result is a search response. Source names where the images came from.
type Result struct {
	Images []Image `json:"images"`
	Source string  `json:"source"`
}

// Provider searches one image service.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, count int) ([]Image, error)
}

// Service routes searches to providers and caches results.
type Service struct {
	providers map[string]Provider
	cache     *lru.Cache[string, Result]
	logger    zerolog.Logger
}

// NewService creates a Service over the given providers.
func NewService(logger zerolog.Logger, providers ...Provider) (*Service, error) {
	cache, err := lru.New[string, Result](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create image cache: %w", err)
	}
	s := &Service{providers: make(map[string]Provider), cache: cache, logger: logger}
	for _, p := range providers {
		s.providers[p.Name()] = p
	}
	return s, nil
}

// Search looks up count images for query on the named source.
func (s *Service) Search(ctx context.Context, source, query string, count int) Result {
	count = clampCount(count)
	query = strings.TrimSpace(query)
	key := source + "|" + strings.ToLower(query) + "|" + fmt.Sprint(count)
	if r, ok := s.cache.Get(key); ok {
		return r
	}

	p, ok := s.providers[source]
	if !ok || query == "" {
		return Result{Images: Placeholders(query, count), Source: SourcePlaceholder}
	}
	imgs, err := p.Search(ctx, query, count)
	if err != nil {
		s.logger.Warn().Err(err).Str("source", source).Str("query", query).Msg("image search failed, using placeholders")
		return Result{Images: Placeholders(query, count), Source: SourcePlaceholder}
	}
	if len(imgs) == 0 {
		return Result{Images: Placeholders(query, count), Source: SourcePlaceholder}
	}
	r := Result{Images: imgs, Source: source}
	s.cache.Add(key, r)
	return r
}

func clampCount(n int) int {
	switch {
	case n <= 0:
		return DefaultCount
	case n > MaxCount:
		return MaxCount
	default:
		return n
	}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Placeholders returns count stable stand-in images for query. The same
// query always yields the same URLs.
func Placeholders(query string, count int) []Image {
	count = clampCount(count)
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(query), "-"), "-")
	if slug == "" {
		slug = "buildr"
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(slug))
	base := h.Sum32()

	alt := strings.TrimSpace(query)
	if alt == "" {
		alt = "Placeholder image"
	}
	imgs := make([]Image, count)
	for i := range imgs {
		seed := fmt.Sprintf("%s-%08x-%d", slug, base, i+1)
		imgs[i] = Image{
			ID:        "placeholder-" + seed,
			URL:       "https://picsum.photos/seed/" + seed + "/1200/800",
			Thumbnail: "https://picsum.photos/seed/" + seed + "/400/300",
			Alt:       alt,
			Credit:    "Picsum",
			Width:     1200,
			Height:    800,
		}
	}
	return imgs
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
