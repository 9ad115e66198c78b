package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"yad2watch/internal/core"
	"yad2watch/internal/features/vehicles/models"
)

// ErrBlocked is returned when the site serves an anti-bot challenge page
// instead of real content. It is a content classification, not a network
// failure: the caller must abort the remaining pages and escalate backoff.
var ErrBlocked = errors.New("anti-bot challenge detected")

// nextDataMarker identifies a real listing page. Challenge pages never
// carry it.
const nextDataMarker = `id="__NEXT_DATA__"`

var challengeMarkers = []string{"ShieldSquare", "Captcha"}

// userAgents is the identity pool rotated between cycles. Desktop Chrome
// agents, matching what the site expects from a browser session.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
}

var defaultHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
	"Accept-Language":           "he-IL,he;q=0.9,en-US;q=0.8,en;q=0.7",
	"Cache-Control":             "max-age=0",
	"Connection":                "keep-alive",
	"DNT":                       "1",
	"Referer":                   "https://www.yad2.co.il/",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "same-origin",
	"Sec-Fetch-User":            "?1",
	"Upgrade-Insecure-Requests": "1",
	"sec-ch-ua-mobile":          "?0",
	"sec-ch-ua-platform":        `"Linux"`,
}

var defaultCookies = map[string]string{
	"__ssds":             "3",
	"y2018-2-cohort":     "88",
	"use_elastic_search": "1",
	"abTestKey":          "2",
	"cohortGroup":        "D",
}

// FetcherConfig holds configuration for the feed fetcher.
type FetcherConfig struct {
	BaseURL   string
	Timeout   time.Duration
	Retries   int
	RetryWait time.Duration
}

// Fetcher issues paginated search requests against the Yad2 search
// endpoint with a reusable browser-like session: persistent cookie jar
// plus a rotated User-Agent.
type Fetcher struct {
	logger *core.Logger
	config FetcherConfig
	client *http.Client
	ua     string
	secCH  string
}

// NewFetcher creates a fetcher with a fresh session.
func NewFetcher(logger *core.Logger, config FetcherConfig) *Fetcher {
	if config.BaseURL == "" {
		config.BaseURL = "https://www.yad2.co.il/vehicles/cars"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Retries == 0 {
		config.Retries = 3
	}

	f := &Fetcher{
		logger: logger,
		config: config,
	}
	f.ResetSession()
	return f
}

// ResetSession discards the cookie jar and identity header. A session that
// was served a challenge is never reused.
func (f *Fetcher) ResetSession() {
	jar, _ := cookiejar.New(nil)
	f.client = &http.Client{
		Jar:     jar,
		Timeout: f.config.Timeout,
	}
	f.seedCookies()
	f.RotateIdentity()
}

// RotateIdentity picks a new User-Agent and the matching sec-ch-ua hint.
func (f *Fetcher) RotateIdentity() {
	f.ua = userAgents[rand.Intn(len(userAgents))]
	f.secCH = secCHFromUserAgent(f.ua)
}

func secCHFromUserAgent(agent string) string {
	idx := strings.Index(agent, "Chrome/")
	if idx < 0 {
		return ""
	}
	ver := agent[idx+len("Chrome/"):]
	if dot := strings.IndexByte(ver, '.'); dot > 0 {
		ver = ver[:dot]
	}
	return fmt.Sprintf(`"Chromium";v="%s", "Not_A Brand";v="24"`, ver)
}

func (f *Fetcher) seedCookies() {
	base, err := url.Parse(f.config.BaseURL)
	if err != nil {
		return
	}
	cookies := make([]*http.Cookie, 0, len(defaultCookies))
	for name, value := range defaultCookies {
		cookies = append(cookies, &http.Cookie{Name: name, Value: value})
	}
	f.client.Jar.SetCookies(&url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}, cookies)
}

// BuildURL renders the search URL for a page. Page 1 carries no page
// parameter, matching what the site itself links to.
func (f *Fetcher) BuildURL(params models.SearchParams, page int) string {
	u := f.config.BaseURL + "?" + params.Encode()
	if page > 1 {
		u += fmt.Sprintf("&page=%d", page)
	}
	return u
}

// FetchPage fetches one result page. It returns the raw body, ErrBlocked
// when the response is an anti-bot challenge, or a transport error after
// exhausting retries. It never mutates shared state beyond its own session.
func (f *Fetcher) FetchPage(ctx context.Context, params models.SearchParams, page int) (string, error) {
	pageURL := f.BuildURL(params, page)

	var lastErr error
	for attempt := 1; attempt <= f.config.Retries; attempt++ {
		body, err := f.get(ctx, pageURL)
		if err == nil {
			if isChallengePage(body) {
				return "", ErrBlocked
			}
			return body, nil
		}
		if errors.Is(err, ErrBlocked) {
			// A challenge is a classification, not a transport failure.
			// The session is burned; re-requesting with it only feeds the
			// anti-bot system more signal.
			return "", err
		}

		lastErr = err
		f.logger.Warn("Fetch attempt failed", "attempt", attempt, "retries", f.config.Retries, "url", pageURL, "error", err)

		if attempt < f.config.Retries && f.config.RetryWait > 0 {
			timer := time.NewTimer(f.config.RetryWait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	return "", fmt.Errorf("all %d fetch attempts failed: %w", f.config.Retries, lastErr)
}

func (f *Fetcher) get(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	for name, value := range defaultHeaders {
		req.Header.Set(name, value)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("sec-ch-ua", f.secCH)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// A challenge can arrive with a 403 as well as a 200.
		if isChallengePage(string(body)) {
			return "", ErrBlocked
		}
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return string(body), nil
}

// isChallengePage is the single classification rule for anti-bot blocks:
// a page without the embedded data block that carries a known
// challenge-provider marker.
func isChallengePage(body string) bool {
	if strings.Contains(body, nextDataMarker) {
		return false
	}
	for _, marker := range challengeMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}
