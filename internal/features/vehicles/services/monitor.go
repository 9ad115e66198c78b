package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"yad2watch/internal/core"
	"yad2watch/internal/features/vehicles/models"
)

// PageFetcher is the fetcher surface the monitor drives. Satisfied by
// *Fetcher; tests substitute a scripted implementation.
type PageFetcher interface {
	FetchPage(ctx context.Context, params models.SearchParams, page int) (string, error)
	ResetSession()
	RotateIdentity()
}

// MonitorConfig holds the per-process loop parameters. The check interval
// lives in SearchConfig and is re-read every cycle.
type MonitorConfig struct {
	MaxPages  int
	PageDelay time.Duration
}

// Monitor runs the fetch → extract → filter → dedup → notify → persist
// cycle on a fixed cadence. One long-lived goroutine; page fetches within
// a cycle are strictly sequential.
type Monitor struct {
	logger   *core.Logger
	fetcher  PageFetcher
	store    *Store
	configs  *ConfigStore
	notifier *Notifier
	backoff  *BackoffController
	clock    Clock
	config   MonitorConfig

	mu          sync.Mutex
	running     bool
	fetchedOnce bool
	cancel      context.CancelFunc
	done        chan struct{}
	checksCount int
	foundTotal  int
	lastCheck   *time.Time
	nextCheck   *time.Time
}

// NewMonitor wires the loop together. All collaborators are passed in
// explicitly so tests can run cycles against fakes.
func NewMonitor(
	logger *core.Logger,
	fetcher PageFetcher,
	store *Store,
	configs *ConfigStore,
	notifier *Notifier,
	backoff *BackoffController,
	clock Clock,
	config MonitorConfig,
) *Monitor {
	if config.MaxPages == 0 {
		config.MaxPages = 5
	}
	return &Monitor{
		logger:   logger,
		fetcher:  fetcher,
		store:    store,
		configs:  configs,
		notifier: notifier,
		backoff:  backoff,
		clock:    clock,
		config:   config,
	}
}

// Start launches the monitor goroutine. Returns an error when already
// running.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("monitor already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.running = true

	go m.run(ctx, done)
	return nil
}

// Stop cancels the loop and waits for the current cycle to unwind.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done

	m.mu.Lock()
	m.running = false
	m.nextCheck = nil
	m.mu.Unlock()
}

// Running reports whether the loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Status returns a snapshot for the UI.
func (m *Monitor) Status() models.Status {
	m.mu.Lock()
	status := models.Status{
		Running:     m.running,
		ChecksCount: m.checksCount,
		FoundTotal:  m.foundTotal,
		LastCheckAt: m.lastCheck,
		NextCheckAt: m.nextCheck,
	}
	m.mu.Unlock()

	if until := m.backoff.Until(); until != nil && m.clock.Now().Before(*until) {
		status.Blocked = true
		status.BackoffUntil = until
	}
	return status
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	m.logger.Info("Starting vehicle monitor", "max_pages", m.config.MaxPages, "page_delay", m.config.PageDelay)

	for {
		// Honor an active backoff window before touching the site, and
		// never reuse a session that was served a challenge.
		if wait := m.backoff.Remaining(m.clock.Now()); wait > 0 {
			m.logger.Warn("Backoff active, delaying next fetch", "wait", wait, "level", m.backoff.Level())
			if !m.clock.Sleep(ctx, wait) {
				return
			}
			m.fetcher.ResetSession()
		}

		start := m.clock.Now()
		interval := m.runCycle(ctx)
		if ctx.Err() != nil {
			return
		}

		now := m.clock.Now()
		next := start.Add(interval)

		m.mu.Lock()
		m.checksCount++
		last := now
		m.lastCheck = &last
		m.nextCheck = &next
		m.mu.Unlock()

		m.logger.Info("Waiting until next check", "next_check_at", next.Format(time.RFC3339))
		if !m.clock.Sleep(ctx, next.Sub(now)) {
			return
		}
	}
}

// runCycle performs one full pass and returns the check interval that was
// active for it.
func (m *Monitor) runCycle(ctx context.Context) time.Duration {
	cfg := m.configs.Current()

	m.mu.Lock()
	firstCycle := !m.fetchedOnce
	m.mu.Unlock()
	storeWasEmpty := m.store.Empty()

	m.fetcher.RotateIdentity()

	var listings []models.Listing
	blocked := false
	maxPages := m.config.MaxPages
	pagesFetched := 0

	for page := 1; page <= maxPages; page++ {
		if page > 1 {
			if !m.clock.Sleep(ctx, m.config.PageDelay) {
				return cfg.CheckInterval
			}
		}

		body, err := m.fetcher.FetchPage(ctx, cfg.Params, page)
		if errors.Is(err, ErrBlocked) {
			delay := m.backoff.OnBlocked(m.clock.Now())
			m.logger.Warn("Anti-bot challenge detected, backing off", "page", page, "level", m.backoff.Level(), "delay", delay)
			blocked = true
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return cfg.CheckInterval
			}
			// Transient network trouble is not a block: no backoff
			// escalation, just abort the remaining pages.
			m.logger.Warn("Page fetch failed, aborting remaining pages", "page", page, "error", err)
			break
		}

		feedPage, err := Extract(body)
		if err != nil {
			m.logger.Warn("Listing extraction failed, aborting remaining pages", "page", page, "error", err)
			break
		}

		pagesFetched++
		listings = append(listings, feedPage.Listings...)

		if page == 1 && feedPage.TotalPages > 0 && feedPage.TotalPages < maxPages {
			maxPages = feedPage.TotalPages
		}
	}

	if pagesFetched > 0 {
		m.mu.Lock()
		m.fetchedOnce = true
		m.mu.Unlock()
	}

	if !blocked {
		m.backoff.OnSuccess()
	}

	private := filterNewCyclePrivate(listings)
	m.logger.Info("Cycle fetch complete", "pages", pagesFetched, "listings", len(listings), "private", len(private), "blocked", blocked)

	now := m.clock.Now()

	// On the first cycle that manages to fetch anything with the store
	// still empty, seed it with everything currently listed and send
	// nothing, so a fresh install does not flood the transports with old
	// listings. Cycles that fetched no pages do not consume the exception.
	if firstCycle && storeWasEmpty {
		if len(private) > 0 {
			m.store.RecordSeen(private, now)
			m.persist(now)
			m.logger.Info("First run with empty store, seeded without notifications", "listings", len(private))
		}
		return cfg.CheckInterval
	}

	var fresh []models.Listing
	for _, listing := range private {
		if m.store.IsNew(listing.Token) {
			fresh = append(fresh, listing)
		}
	}

	if len(fresh) == 0 {
		m.logger.Info("No new listings found")
		return cfg.CheckInterval
	}

	m.logger.Info("New listings found", "count", len(fresh))
	for _, listing := range fresh {
		m.logger.Info("New listing",
			"token", listing.Token,
			"manufacturer", listing.Manufacturer,
			"model", listing.Model,
			"price", listing.Price,
			"year", listing.Year,
			"km", listing.Mileage,
			"hand", listing.Hand,
			"area", listing.Area,
		)
		m.notifier.Notify(ctx, listing)
	}

	m.store.RecordSeen(fresh, now)
	m.persist(now)

	m.mu.Lock()
	m.foundTotal += len(fresh)
	m.mu.Unlock()

	return cfg.CheckInterval
}

func (m *Monitor) persist(now time.Time) {
	if err := m.store.Save(now); err != nil {
		// Persistence trouble degrades dedup across restarts but never
		// stops the loop.
		m.logger.Error("Failed to persist found listings", "error", err)
	}
}

// filterNewCyclePrivate keeps private-seller listings, dropping duplicate
// tokens while preserving the site's order.
func filterNewCyclePrivate(listings []models.Listing) []models.Listing {
	seen := make(map[string]bool, len(listings))
	var out []models.Listing
	for _, listing := range listings {
		if !listing.IsPrivate() || seen[listing.Token] {
			continue
		}
		seen[listing.Token] = true
		out = append(out, listing)
	}
	return out
}
