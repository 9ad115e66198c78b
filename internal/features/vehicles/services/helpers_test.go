package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"yad2watch/internal/core"
	"yad2watch/internal/features/vehicles/models"
)

// feedEntry describes one listing in a synthetic feed page.
type feedEntry struct {
	token  string
	agency string
	price  int
}

// feedHTML renders a page body with an embedded __NEXT_DATA__ block in
// the shape the extractor expects. Group order in the payload follows
// the site's tiers.
func feedHTML(t *testing.T, pages int, groups map[string][]feedEntry) string {
	t.Helper()

	data := map[string]any{
		"pagination": map[string]any{"pages": pages},
	}
	for group, entries := range groups {
		items := make([]map[string]any, 0, len(entries))
		for _, entry := range entries {
			item := map[string]any{
				"token":        entry.token,
				"price":        entry.price,
				"km":           32000,
				"hand":         map[string]any{"text": "יד 1"},
				"manufacturer": map[string]any{"text": "יונדאי"},
				"model":        map[string]any{"text": "איוניק"},
				"subModel":     map[string]any{"text": "Premium"},
				"vehicleDates": map[string]any{"yearOfProduction": 2022},
				"address":      map[string]any{"city": map[string]any{"text": "תל אביב"}},
				"images":       []any{map[string]any{"src": "https://img.example/" + entry.token + ".jpg"}},
			}
			customer := map[string]any{}
			if entry.agency != "" {
				customer["agencyName"] = entry.agency
			}
			item["customer"] = customer
			items = append(items, item)
		}
		data[group] = items
	}

	return wrapNextData(t, data)
}

// wrapNextData embeds arbitrary feed data in a full page body.
func wrapNextData(t *testing.T, data any) string {
	t.Helper()

	payload := map[string]any{
		"props": map[string]any{
			"pageProps": map[string]any{
				"dehydratedState": map[string]any{
					"queries": []any{
						map[string]any{"state": map[string]any{"data": data}},
					},
				},
			},
		},
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal fixture: %v", err)
	}

	return fmt.Sprintf(
		`<!DOCTYPE html><html><head><title>search</title></head><body><div id="__next"></div><script id="__NEXT_DATA__" type="application/json">%s</script></body></html>`,
		raw,
	)
}

// fakeClock advances instantly on Sleep so loop tests run without
// real waiting.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) bool {
	c.mu.Lock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	c.mu.Unlock()
	return ctx.Err() == nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fetchResult scripts one page fetch.
type fetchResult struct {
	body string
	err  error
}

// scriptedFetcher serves pre-scripted cycles. RotateIdentity advances to
// the next cycle, matching the monitor's one-rotation-per-cycle contract.
type scriptedFetcher struct {
	mu      sync.Mutex
	cycles  [][]fetchResult
	cycle   int
	fetches []int
	resets  int
}

func (f *scriptedFetcher) FetchPage(ctx context.Context, params models.SearchParams, page int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetches = append(f.fetches, page)
	if f.cycle == 0 || f.cycle > len(f.cycles) {
		return "", fmt.Errorf("unscripted cycle %d", f.cycle)
	}
	script := f.cycles[f.cycle-1]
	if page > len(script) {
		return "", fmt.Errorf("unscripted page %d in cycle %d", page, f.cycle)
	}
	result := script[page-1]
	return result.body, result.err
}

func (f *scriptedFetcher) ResetSession() {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
}

func (f *scriptedFetcher) RotateIdentity() {
	f.mu.Lock()
	f.cycle++
	f.mu.Unlock()
}

func (f *scriptedFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}

// recordingTransport captures notified listings.
type recordingTransport struct {
	mu   sync.Mutex
	sent []models.Listing
	fail bool
}

func (r *recordingTransport) Name() string { return "recording" }

func (r *recordingTransport) Send(ctx context.Context, listing models.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return fmt.Errorf("transport down")
	}
	r.sent = append(r.sent, listing)
	return nil
}

func (r *recordingTransport) tokens() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, l := range r.sent {
		out = append(out, l.Token)
	}
	return out
}

func newTestLogger() *core.Logger {
	return core.NewLogger()
}
