package models

import (
	"net/url"
	"sort"
	"time"
)

// SearchParams holds the Yad2 search query parameters as sent on the wire.
type SearchParams map[string]string

// LockedParams are search keys the API refuses to update: changing the
// vehicle identity invalidates the display-name mapping.
var LockedParams = map[string]bool{
	"manufacturer": true,
	"model":        true,
	"subModel":     true,
}

// DisplayNames maps coded param values to human-readable names for the UI.
var DisplayNames = map[string]map[string]string{
	"manufacturer": {"21": "יונדאי"},
	"model":        {"10279": "איוניק"},
	"subModel":     {"104856": "Premium FL היברידי אוט׳ 1.6 (141 כ״ס)"},
}

// DefaultSearchParams returns the built-in saved search.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		"manufacturer": "21",
		"model":        "10279",
		"year":         "2021-2026",
		"price":        "-1-120000",
		"km":           "-1-50000",
		"hand":         "0-1",
		"subModel":     "104856",
		"priceOnly":    "1",
		"imgOnly":      "1",
		"ownerID":      "1",
	}
}

// Clone returns an independent copy of the params.
func (p SearchParams) Clone() SearchParams {
	out := make(SearchParams, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Encode renders the params as a stable query string.
func (p SearchParams) Encode() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := url.Values{}
	for _, k := range keys {
		values.Set(k, p[k])
	}
	return values.Encode()
}

// SearchConfig is the immutable-per-cycle search definition. The monitor
// loop snapshots it at the start of every cycle; the UI may rewrite it
// between cycles.
type SearchConfig struct {
	Params        SearchParams  `json:"params"`
	CheckInterval time.Duration `json:"-"`

	// CheckIntervalSeconds is the wire form of CheckInterval.
	CheckIntervalSeconds int `json:"checkInterval"`
}

// Normalize fills the derived fields after decode and enforces the
// minimum interval.
func (c *SearchConfig) Normalize() {
	if c.CheckIntervalSeconds < 5 {
		c.CheckIntervalSeconds = 5
	}
	c.CheckInterval = time.Duration(c.CheckIntervalSeconds) * time.Second
	if c.Params == nil {
		c.Params = SearchParams{}
	}
}

// Clone returns an independent copy of the config.
func (c SearchConfig) Clone() SearchConfig {
	out := c
	out.Params = c.Params.Clone()
	return out
}
