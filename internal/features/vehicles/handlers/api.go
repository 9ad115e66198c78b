package handlers

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"yad2watch/internal/core"
	"yad2watch/internal/features/vehicles/models"
	"yad2watch/internal/features/vehicles/services"
)

const logTailLines = 80

// APIHandler serves the JSON interface the configuration UI consumes.
type APIHandler struct {
	logger    *core.Logger
	monitor   *services.Monitor
	store     *services.Store
	configs   *services.ConfigStore
	logPath   string
	autoStart bool
}

// NewAPIHandler creates the handler set for the vehicles feature.
func NewAPIHandler(logger *core.Logger, monitor *services.Monitor, store *services.Store, configs *services.ConfigStore, logPath string, autoStart bool) *APIHandler {
	return &APIHandler{
		logger:    logger,
		monitor:   monitor,
		store:     store,
		configs:   configs,
		logPath:   logPath,
		autoStart: autoStart,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// GetParams returns the active search parameters plus display names for
// the locked vehicle-identity keys.
func (h *APIHandler) GetParams(w http.ResponseWriter, r *http.Request) {
	cfg := h.configs.Current()

	display := map[string]string{}
	for key := range models.LockedParams {
		if value, ok := cfg.Params[key]; ok {
			if name, ok := models.DisplayNames[key][value]; ok {
				display[key] = name
			} else {
				display[key] = value
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"params":        cfg.Params,
		"display":       display,
		"checkInterval": cfg.CheckIntervalSeconds,
		"autoStart":     h.autoStart,
	})
}

// SetParams updates the active search parameters and interval. Takes
// effect on the next cycle.
func (h *APIHandler) SetParams(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Params        map[string]any `json:"params"`
		CheckInterval *int           `json:"checkInterval"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		core.HandleError(w, core.NewValidationError("invalid JSON body", err))
		return
	}

	params := models.SearchParams{}
	for key, value := range body.Params {
		switch v := value.(type) {
		case string:
			params[key] = v
		case float64:
			params[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			if v {
				params[key] = "1"
			} else {
				params[key] = "0"
			}
		}
	}

	if err := h.configs.Update(params, body.CheckInterval); err != nil {
		h.logger.Error("Failed to update search params", "error", err)
		core.HandleError(w, core.NewPersistenceError("failed to persist search params", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// StartMonitor launches the monitor loop.
func (h *APIHandler) StartMonitor(w http.ResponseWriter, r *http.Request) {
	if err := h.monitor.Start(); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "already running"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// StopMonitor stops the monitor loop and waits for the cycle to unwind.
func (h *APIHandler) StopMonitor(w http.ResponseWriter, r *http.Request) {
	if !h.monitor.Running() {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "not running"})
		return
	}
	h.monitor.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// MonitorStatus returns the monitor state snapshot.
func (h *APIHandler) MonitorStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Status())
}

// ListListings returns the non-dismissed found listings.
func (h *APIHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"listings": h.store.Snapshot()})
}

// DismissListing hides one listing from the UI while keeping it deduped.
func (h *APIHandler) DismissListing(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	removed := h.store.Dismiss(token, time.Now())
	writeJSON(w, http.StatusOK, map[string]any{"ok": removed})
}

// ClearListings removes every found listing, dedup state included.
func (h *APIHandler) ClearListings(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(time.Now()); err != nil {
		h.logger.Error("Failed to clear found listings", "error", err)
		core.HandleError(w, core.NewPersistenceError("failed to clear listings", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ClearSeen resets the dedup store; identical to ClearListings since the
// found-listings file is the seen set.
func (h *APIHandler) ClearSeen(w http.ResponseWriter, r *http.Request) {
	h.ClearListings(w, r)
}

// ExportListings streams the visible listings as CSV.
func (h *APIHandler) ExportListings(w http.ResponseWriter, r *http.Request) {
	items := h.store.Snapshot()
	if len(items) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=listings.csv")

	writer := csv.NewWriter(w)
	writer.Write([]string{"token", "manufacturer", "model", "sub_model", "price", "year", "km", "hand", "area", "link", "found_at"})
	for _, item := range items {
		writer.Write([]string{
			item.Token,
			item.Manufacturer,
			item.Model,
			item.SubModel,
			strconv.Itoa(item.Price),
			strconv.Itoa(item.Year),
			strconv.Itoa(item.Mileage),
			item.Hand,
			item.Area,
			item.URL,
			item.FoundAt.Format("2006-01-02 15:04:05"),
		})
	}
	writer.Flush()
}

// GetLogs returns the last lines of the monitor log.
func (h *APIHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(h.logPath)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"lines": []string{}})
		return
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > logTailLines {
		lines = lines[len(lines)-logTailLines:]
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

// ClearLogs truncates the monitor log file.
func (h *APIHandler) ClearLogs(w http.ResponseWriter, r *http.Request) {
	if err := os.Truncate(h.logPath, 0); err != nil && !os.IsNotExist(err) {
		h.logger.Error("Failed to truncate log file", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ListProfiles returns the named saved searches.
func (h *APIHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.configs.Profiles())
}

// SaveProfile stores the active config under a name.
func (h *APIHandler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		core.HandleError(w, core.NewValidationError("invalid JSON body", err))
		return
	}

	name := strings.TrimSpace(body.Name)
	if name == "" {
		core.HandleError(w, core.NewValidationError("missing profile name", nil))
		return
	}

	if err := h.configs.SaveProfile(name); err != nil {
		h.logger.Error("Failed to save profile", "name", name, "error", err)
		core.HandleError(w, core.NewPersistenceError("failed to save profile", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// LoadProfile activates a named profile.
func (h *APIHandler) LoadProfile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.configs.LoadProfile(name); err != nil {
		core.HandleError(w, core.NewNotFoundError("profile not found", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// DeleteProfile removes a named profile.
func (h *APIHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.configs.DeleteProfile(name); err != nil {
		core.HandleError(w, core.NewNotFoundError("profile not found", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
