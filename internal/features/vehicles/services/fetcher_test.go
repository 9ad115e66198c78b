package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"yad2watch/internal/features/vehicles/models"
)

const realPageBody = `<html><body><script id="__NEXT_DATA__" type="application/json">{}</script></body></html>`

func newTestFetcher(t *testing.T, handler http.Handler) (*Fetcher, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	f := NewFetcher(newTestLogger(), FetcherConfig{
		BaseURL:   srv.URL + "/vehicles/cars",
		Timeout:   5 * time.Second,
		Retries:   2,
		RetryWait: time.Millisecond,
	})
	return f, srv
}

func TestFetchPageReturnsBody(t *testing.T) {
	f, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(realPageBody))
	}))

	body, err := f.FetchPage(context.Background(), models.DefaultSearchParams(), 1)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if body != realPageBody {
		t.Errorf("Unexpected body: %q", body)
	}
}

func TestFetchPageSendsBrowserHeaders(t *testing.T) {
	var gotUA, gotReferer, gotLang string
	f, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		gotLang = r.Header.Get("Accept-Language")
		w.Write([]byte(realPageBody))
	}))

	if _, err := f.FetchPage(context.Background(), models.SearchParams{"manufacturer": "21"}, 1); err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	found := false
	for _, agent := range userAgents {
		if agent == gotUA {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("User-Agent %q is not from the rotation pool", gotUA)
	}
	if gotReferer != "https://www.yad2.co.il/" {
		t.Errorf("Unexpected Referer: %q", gotReferer)
	}
	if !strings.HasPrefix(gotLang, "he-IL") {
		t.Errorf("Expected Hebrew Accept-Language, got %q", gotLang)
	}
}

func TestFetchPageDetectsChallenge(t *testing.T) {
	f, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>Verified by ShieldSquare</body></html>`))
	}))

	_, err := f.FetchPage(context.Background(), models.DefaultSearchParams(), 1)
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("Expected ErrBlocked for a challenge body, got %v", err)
	}
}

func TestFetchPageDetectsChallengeOnErrorStatus(t *testing.T) {
	var calls int32
	f, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`<html><body>Please solve this Captcha to continue</body></html>`))
	}))

	_, err := f.FetchPage(context.Background(), models.DefaultSearchParams(), 1)
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("Expected ErrBlocked for a 403 challenge, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("A challenged session must not be retried, got %d requests", got)
	}
}

func TestFetchPageRetriesServerErrors(t *testing.T) {
	var calls int32
	f, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := f.FetchPage(context.Background(), models.DefaultSearchParams(), 1)
	if err == nil {
		t.Fatal("Expected an error after exhausting retries")
	}
	if errors.Is(err, ErrBlocked) {
		t.Fatal("A server error must not classify as a block")
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("Expected 2 attempts, got %d", got)
	}
}

func TestFetchPageHonorsContextCancel(t *testing.T) {
	f, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.FetchPage(ctx, models.DefaultSearchParams(), 1)
	if err == nil {
		t.Fatal("Expected an error with a canceled context")
	}
}

func TestBuildURL(t *testing.T) {
	f := NewFetcher(newTestLogger(), FetcherConfig{BaseURL: "https://www.yad2.co.il/vehicles/cars"})
	params := models.SearchParams{"manufacturer": "21", "model": "10279"}

	first := f.BuildURL(params, 1)
	if strings.Contains(first, "page=") {
		t.Errorf("Page 1 URL must not carry a page parameter: %s", first)
	}
	if !strings.Contains(first, "manufacturer=21") || !strings.Contains(first, "model=10279") {
		t.Errorf("URL missing search params: %s", first)
	}

	third := f.BuildURL(params, 3)
	if !strings.Contains(third, "page=3") {
		t.Errorf("Page 3 URL must carry page=3: %s", third)
	}
}

func TestRotateIdentityMatchesSecCH(t *testing.T) {
	f := NewFetcher(newTestLogger(), FetcherConfig{BaseURL: "https://www.yad2.co.il/vehicles/cars"})

	for i := 0; i < 20; i++ {
		f.RotateIdentity()
		if strings.Contains(f.ua, "Chrome/") {
			if !strings.Contains(f.secCH, "Chromium") {
				t.Errorf("Chrome agent %q must carry a Chromium sec-ch-ua hint, got %q", f.ua, f.secCH)
			}
		} else if f.secCH != "" {
			t.Errorf("Non-Chrome agent %q must not carry a sec-ch-ua hint, got %q", f.ua, f.secCH)
		}
	}
}

func TestSecCHFromUserAgent(t *testing.T) {
	got := secCHFromUserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	want := `"Chromium";v="131", "Not_A Brand";v="24"`
	if got != want {
		t.Errorf("secCHFromUserAgent = %q, want %q", got, want)
	}

	if got := secCHFromUserAgent("Mozilla/5.0 Firefox/133.0"); got != "" {
		t.Errorf("Expected empty hint for non-Chrome agent, got %q", got)
	}
}

func TestResetSessionSeedsCookies(t *testing.T) {
	var cookieNames []string
	f, _ := newTestFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookieNames = nil
		for _, c := range r.Cookies() {
			cookieNames = append(cookieNames, c.Name)
		}
		w.Write([]byte(realPageBody))
	}))

	if _, err := f.FetchPage(context.Background(), models.SearchParams{}, 1); err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	seen := map[string]bool{}
	for _, name := range cookieNames {
		seen[name] = true
	}
	for name := range defaultCookies {
		if !seen[name] {
			t.Errorf("Expected seeded cookie %q on the request", name)
		}
	}
}
