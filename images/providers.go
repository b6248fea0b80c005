// ABOUTME: Unsplash and Pexels search clients mapping each API's JSON into Image values.
// ABOUTME: Providers builds only the clients that have keys, so unconfigured sources fall back to placeholders.

package images

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// Unsplash searches api.unsplash.com.
type Unsplash struct {
	key     string
	baseURL string
	client  *http.Client
}

// NewUnsplash creates a client. An empty baseURL targets the public API.
func NewUnsplash(accessKey, baseURL string) *Unsplash {
	if baseURL == "" {
		baseURL = "https://api.unsplash.com"
	}
	return &Unsplash{key: accessKey, baseURL: baseURL, client: newHTTPClient()}
}

// Name returns "unsplash".
func (u *Unsplash) Name() string { return SourceUnsplash }

// Search implements Provider.
func (u *Unsplash) Search(ctx context.Context, query string, count int) ([]Image, error) {
	q := url.Values{"query": {query}, "per_page": {strconv.Itoa(count)}, "orientation": {"landscape"}}
	var body struct {
		Results []struct {
			ID             string `json:"id"`
			Width          int    `json:"width"`
			Height         int    `json:"height"`
			AltDescription string `json:"alt_description"`
			Description    string `json:"description"`
			URLs           struct {
				Regular string `json:"regular"`
				Small   string `json:"small"`
			} `json:"urls"`
			User struct {
				Name string `json:"name"`
			} `json:"user"`
		} `json:"results"`
	}
	if err := getJSON(ctx, u.client, u.baseURL+"/search/photos?"+q.Encode(), "Client-ID "+u.key, &body); err != nil {
		return nil, fmt.Errorf("unsplash: %w", err)
	}
	imgs := make([]Image, 0, len(body.Results))
	for _, r := range body.Results {
		alt := r.AltDescription
		if alt == "" {
			alt = r.Description
		}
		if alt == "" {
			alt = query
		}
		imgs = append(imgs, Image{
			ID:        r.ID,
			URL:       r.URLs.Regular,
			Thumbnail: r.URLs.Small,
			Alt:       alt,
			Credit:    "Photo by " + r.User.Name + " on Unsplash",
			Width:     r.Width,
			Height:    r.Height,
		})
	}
	return imgs, nil
}

// Pexels searches api.pexels.com.
type Pexels struct {
	key     string
	baseURL string
	client  *http.Client
}

// NewPexels creates a client. An empty baseURL targets the public API.
func NewPexels(apiKey, baseURL string) *Pexels {
	if baseURL == "" {
		baseURL = "https://api.pexels.com"
	}
	return &Pexels{key: apiKey, baseURL: baseURL, client: newHTTPClient()}
}

// Name returns "pexels".
func (p *Pexels) Name() string { return SourcePexels }

// Search implements Provider.
func (p *Pexels) Search(ctx context.Context, query string, count int) ([]Image, error) {
	q := url.Values{"query": {query}, "per_page": {strconv.Itoa(count)}}
	var body struct {
		Photos []struct {
			ID           int64  `json:"id"`
			Width        int    `json:"width"`
			Height       int    `json:"height"`
			Alt          string `json:"alt"`
			Photographer string `json:"photographer"`
			Src          struct {
				Large  string `json:"large"`
				Medium string `json:"medium"`
			} `json:"src"`
		} `json:"photos"`
	}
	if err := getJSON(ctx, p.client, p.baseURL+"/v1/search?"+q.Encode(), p.key, &body); err != nil {
		return nil, fmt.Errorf("pexels: %w", err)
	}
	imgs := make([]Image, 0, len(body.Photos))
	for _, ph := range body.Photos {
		alt := ph.Alt
		if alt == "" {
			alt = query
		}
		imgs = append(imgs, Image{
			ID:        strconv.FormatInt(ph.ID, 10),
			URL:       ph.Src.Large,
			Thumbnail: ph.Src.Medium,
			Alt:       alt,
			Credit:    "Photo by " + ph.Photographer + " on Pexels",
			Width:     ph.Width,
			Height:    ph.Height,
		})
	}
	return imgs, nil
}

// Providers returns a client for each source that has a key.
func Providers(unsplashKey, pexelsKey string) []Provider {
	var ps []Provider
	if unsplashKey != "" {
		ps = append(ps, NewUnsplash(unsplashKey, ""))
	}
	if pexelsKey != "" {
		ps = append(ps, NewPexels(pexelsKey, ""))
	}
	return ps
}

func getJSON(ctx context.Context, client *http.Client, endpoint, auth string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
