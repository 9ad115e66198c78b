package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"yad2watch/internal/features/vehicles/models"
)

func TestExtractAcrossGroups(t *testing.T) {
	body := feedHTML(t, 3, map[string][]feedEntry{
		"private":    {{token: "aaa111", price: 95000}, {token: "bbb222", agency: "מוטורס בע\"מ", price: 99000}},
		"commercial": {{token: "ccc333", agency: "טרייד אין", price: 102000}},
		"solo":       {{token: "ddd444", price: 88000}},
	})

	page, err := Extract(body)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if len(page.Listings) != 4 {
		t.Fatalf("Expected 4 listings, got %d", len(page.Listings))
	}
	if page.TotalPages != 3 {
		t.Errorf("Expected 3 total pages, got %d", page.TotalPages)
	}

	sellers := map[string]models.SellerType{}
	for _, listing := range page.Listings {
		sellers[listing.Token] = listing.Seller
	}
	if sellers["aaa111"] != models.SellerPrivate || sellers["ddd444"] != models.SellerPrivate {
		t.Errorf("Expected listings without an agency to be private, got %v", sellers)
	}
	if sellers["bbb222"] != models.SellerDealer || sellers["ccc333"] != models.SellerDealer {
		t.Errorf("Expected listings with an agency to be dealer, got %v", sellers)
	}

	// The private group comes before solo in the site's order.
	if page.Listings[0].Token != "aaa111" {
		t.Errorf("Expected site order to be preserved, first token was %s", page.Listings[0].Token)
	}
}

func TestExtractMapsListingFields(t *testing.T) {
	body := feedHTML(t, 1, map[string][]feedEntry{
		"private": {{token: "tok1", price: 107000}},
	})

	page, err := Extract(body)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(page.Listings) != 1 {
		t.Fatalf("Expected 1 listing, got %d", len(page.Listings))
	}

	listing := page.Listings[0]
	if listing.Price != 107000 {
		t.Errorf("Expected price 107000, got %d", listing.Price)
	}
	if listing.Manufacturer != "יונדאי" || listing.Model != "איוניק" {
		t.Errorf("Unexpected vehicle identity: %s %s", listing.Manufacturer, listing.Model)
	}
	if listing.Year != 2022 {
		t.Errorf("Expected year 2022, got %d", listing.Year)
	}
	if listing.Mileage != 32000 {
		t.Errorf("Expected 32000 km, got %d", listing.Mileage)
	}
	if listing.Area != "תל אביב" {
		t.Errorf("Expected area from city field, got %q", listing.Area)
	}
	if listing.URL != "https://www.yad2.co.il/vehicles/item/tok1" {
		t.Errorf("Unexpected listing URL: %s", listing.URL)
	}
	if listing.ImageURL != "https://img.example/tok1.jpg" {
		t.Errorf("Unexpected image URL: %s", listing.ImageURL)
	}
}

func TestExtractDropsUnusableItems(t *testing.T) {
	data := map[string]any{
		"pagination": map[string]any{"pages": 1},
		"private": []any{
			map[string]any{"token": "good", "price": 90000, "customer": map[string]any{}},
			// No token, cannot be deduplicated.
			map[string]any{"price": 80000, "customer": map[string]any{}},
			// Price has the wrong type, drops the item but not the page.
			map[string]any{"token": "badprice", "price": "cheap", "customer": map[string]any{}},
		},
	}

	page, err := Extract(wrapNextData(t, data))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(page.Listings) != 1 {
		t.Fatalf("Expected 1 listing after dropping unusable items, got %d", len(page.Listings))
	}
	if page.Listings[0].Token != "good" {
		t.Errorf("Expected surviving token %q, got %q", "good", page.Listings[0].Token)
	}
}

func TestExtractMissingDataBlock(t *testing.T) {
	_, err := Extract("<html><body><h1>Not a search page</h1></body></html>")
	if !errors.Is(err, ErrParse) {
		t.Fatalf("Expected ErrParse for missing data block, got %v", err)
	}
}

func TestExtractMalformedJSON(t *testing.T) {
	body := `<html><body><script id="__NEXT_DATA__" type="application/json">{not json</script></body></html>`
	_, err := Extract(body)
	if !errors.Is(err, ErrParse) {
		t.Fatalf("Expected ErrParse for malformed JSON, got %v", err)
	}
}

func TestExtractEmptyQueries(t *testing.T) {
	payload := `{"props":{"pageProps":{"dehydratedState":{"queries":[]}}}}`
	body := fmt.Sprintf(`<html><body><script id="__NEXT_DATA__" type="application/json">%s</script></body></html>`, payload)
	_, err := Extract(body)
	if !errors.Is(err, ErrParse) {
		t.Fatalf("Expected ErrParse for empty queries, got %v", err)
	}
}

func TestExtractEmptyFeed(t *testing.T) {
	page, err := Extract(feedHTML(t, 1, map[string][]feedEntry{}))
	if err != nil {
		t.Fatalf("Extract failed on empty feed: %v", err)
	}
	if len(page.Listings) != 0 {
		t.Fatalf("Expected no listings, got %d", len(page.Listings))
	}
}

func TestExtractIsRestartable(t *testing.T) {
	body := feedHTML(t, 2, map[string][]feedEntry{
		"private":  {{token: "one", price: 91000}, {token: "two", agency: "סוכנות", price: 92000}},
		"platinum": {{token: "three", price: 93000}},
	})

	first, err := Extract(body)
	if err != nil {
		t.Fatalf("First extract failed: %v", err)
	}
	second, err := Extract(body)
	if err != nil {
		t.Fatalf("Second extract failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("Expected identical results from repeated extraction of the same body")
	}
}

func TestTextFieldToleratesScalars(t *testing.T) {
	data := map[string]any{
		"pagination": map[string]any{"pages": 1},
		"private": []any{
			map[string]any{
				"token":    "scalar",
				"price":    85000,
				"customer": map[string]any{},
				"hand":     2,
				"address":  map[string]any{"city": "חיפה"},
			},
		},
	}

	page, err := Extract(wrapNextData(t, data))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(page.Listings) != 1 {
		t.Fatalf("Expected 1 listing, got %d", len(page.Listings))
	}
	if page.Listings[0].Hand != "2" {
		t.Errorf("Expected numeric hand to decode as %q, got %q", "2", page.Listings[0].Hand)
	}
	if page.Listings[0].Area != "חיפה" {
		t.Errorf("Expected bare-string city to decode, got %q", page.Listings[0].Area)
	}
}

func TestIsChallengePage(t *testing.T) {
	cases := []struct {
		name string
		body string
		want bool
	}{
		{"real page", `<script id="__NEXT_DATA__">{}</script>`, false},
		{"shieldsquare", `<html>Access blocked by ShieldSquare</html>`, true},
		{"captcha", `<html>Please solve this Captcha</html>`, true},
		{"plain error page", `<html>404 not found</html>`, false},
		{"marker wins over challenge text", `<html>Captcha <script id="__NEXT_DATA__">{}</script></html>`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isChallengePage(tc.body); got != tc.want {
				t.Errorf("isChallengePage(%q) = %v, want %v", tc.body, got, tc.want)
			}
		})
	}
}

func TestFeedHTMLFixtureIsNotAChallenge(t *testing.T) {
	body := feedHTML(t, 1, map[string][]feedEntry{"private": {{token: "x", price: 1}}})
	if !strings.Contains(body, nextDataMarker) {
		t.Fatal("Fixture must carry the data block marker")
	}
	if isChallengePage(body) {
		t.Fatal("Fixture must not classify as a challenge page")
	}
}
