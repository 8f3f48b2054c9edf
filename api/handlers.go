package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"logwarden/core"
	"logwarden/detect"
	"logwarden/service"
	"logwarden/storage"

	"github.com/gorilla/mux"
)

// respondJSON writes a JSON response with proper error handling.
func (a *API) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Errorw("Failed to encode JSON response",
			"error", err,
			"data_type", fmt.Sprintf("%T", data))
	}
}

// respondError maps service and storage errors onto status codes.
func (a *API) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, storage.ErrInvalidBucket):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrLogNotFound),
		errors.Is(err, storage.ErrEventNotFound),
		errors.Is(err, storage.ErrRuleNotFound),
		errors.Is(err, storage.ErrChannelNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrEventResolved):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		a.logger.Errorw("Request failed", "error", err)
	}
	a.respondJSON(w, map[string]string{"error": err.Error()}, status)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid id", service.ErrInvalidInput)
	}
	return id, nil
}

func (a *API) ingestLog(w http.ResponseWriter, r *http.Request) {
	var entry core.LogEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		a.respondError(w, fmt.Errorf("%w: %v", service.ErrInvalidInput, err))
		return
	}
	result, err := a.logs.Ingest(r.Context(), &entry)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, result, http.StatusCreated)
}

// filtersFromQuery reads listing filters from query parameters. Timestamps
// accept RFC 3339.
func filtersFromQuery(r *http.Request) (core.LogFilters, error) {
	q := r.URL.Query()
	f := core.LogFilters{
		Severity: q.Get("severity"),
		Category: q.Get("category"),
		ActorID:  q.Get("actor_id"),
		Action:   q.Get("action"),
		Query:    q.Get("q"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("%w: invalid limit", service.ErrInvalidInput)
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("%w: invalid offset", service.ErrInvalidInput)
		}
		f.Offset = n
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("%w: invalid from timestamp", service.ErrInvalidInput)
		}
		f.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("%w: invalid to timestamp", service.ErrInvalidInput)
		}
		f.To = &t
	}
	return f, nil
}

func (a *API) listLogs(w http.ResponseWriter, r *http.Request) {
	f, err := filtersFromQuery(r)
	if err != nil {
		a.respondError(w, err)
		return
	}
	page, err := a.logs.Search(r.Context(), f)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, page, http.StatusOK)
}

func (a *API) searchLogs(w http.ResponseWriter, r *http.Request) {
	var f core.LogFilters
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		a.respondError(w, fmt.Errorf("%w: %v", service.ErrInvalidInput, err))
		return
	}
	page, err := a.logs.Search(r.Context(), f)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, page, http.StatusOK)
}

func (a *API) exportLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			a.respondError(w, fmt.Errorf("%w: invalid limit", service.ErrInvalidInput))
			return
		}
		limit = n
	}

	format := r.URL.Query().Get("format")
	switch format {
	case "", "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="logs.csv"`)
		if err := a.logs.ExportCSV(r.Context(), limit, w); err != nil {
			a.logger.Errorw("CSV export failed", "error", err)
		}
	case "json":
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="logs.json"`)
		if err := a.logs.ExportJSON(r.Context(), limit, w); err != nil {
			a.logger.Errorw("JSON export failed", "error", err)
		}
	default:
		a.respondError(w, fmt.Errorf("%w: unknown export format %q", service.ErrInvalidInput, format))
	}
}

func (a *API) logStats(w http.ResponseWriter, r *http.Request) {
	f, err := filtersFromQuery(r)
	if err != nil {
		a.respondError(w, err)
		return
	}
	stats, err := a.logs.Stats(r.Context(), f)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, stats, http.StatusOK)
}

func (a *API) logTrends(w http.ResponseWriter, r *http.Request) {
	f, err := filtersFromQuery(r)
	if err != nil {
		a.respondError(w, err)
		return
	}
	bucket := r.URL.Query().Get("bucket")
	if bucket == "" {
		bucket = core.BucketDay
	}
	buckets, err := a.logs.Trends(r.Context(), f, bucket)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, buckets, http.StatusOK)
}

func (a *API) correlationTimeline(w http.ResponseWriter, r *http.Request) {
	correlationID := mux.Vars(r)["id"]
	items, err := a.logs.Timeline(r.Context(), correlationID)
	if err != nil {
		a.respondError(w, err)
		return
	}
	if items == nil {
		items = []core.TimelineItem{}
	}
	a.respondJSON(w, map[string]interface{}{
		"correlation_id": correlationID,
		"timeline":       items,
	}, http.StatusOK)
}

func (a *API) listSecurityEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	unresolvedOnly := q.Get("unresolved") == "true"
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	page, err := a.logs.ListEvents(r.Context(), unresolvedOnly, limit, offset)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, page, http.StatusOK)
}

func (a *API) resolveSecurityEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.respondError(w, err)
		return
	}
	var body struct {
		Resolution    string `json:"resolution"`
		FalsePositive bool   `json:"false_positive"`
		ResolvedBy    string `json:"resolved_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, fmt.Errorf("%w: %v", service.ErrInvalidInput, err))
		return
	}
	ev, err := a.logs.ResolveEvent(r.Context(), id, body.Resolution, body.FalsePositive, body.ResolvedBy)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, ev, http.StatusOK)
}

func (a *API) listAlertRules(w http.ResponseWriter, r *http.Request) {
	rules, err := a.rules.ListRules(r.Context())
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, rules, http.StatusOK)
}

func (a *API) createAlertRule(w http.ResponseWriter, r *http.Request) {
	var in service.RuleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		a.respondError(w, fmt.Errorf("%w: %v", service.ErrInvalidInput, err))
		return
	}
	rule, err := a.rules.CreateRule(r.Context(), &in)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, rule, http.StatusCreated)
}

func (a *API) getAlertRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.respondError(w, err)
		return
	}
	rule, err := a.rules.GetRule(r.Context(), id)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, rule, http.StatusOK)
}

func (a *API) updateAlertRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.respondError(w, err)
		return
	}
	var in service.RuleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		a.respondError(w, fmt.Errorf("%w: %v", service.ErrInvalidInput, err))
		return
	}
	rule, err := a.rules.UpdateRule(r.Context(), id, &in)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, rule, http.StatusOK)
}

func (a *API) deleteAlertRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.respondError(w, err)
		return
	}
	if err := a.rules.DeleteRule(r.Context(), id); err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, map[string]string{"status": "deleted"}, http.StatusOK)
}

func (a *API) testAlertRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.respondError(w, err)
		return
	}
	result, err := a.rules.TestRule(r.Context(), id)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, result, http.StatusOK)
}

func (a *API) listChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := a.rules.ListChannels(r.Context())
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, channels, http.StatusOK)
}

func (a *API) createChannel(w http.ResponseWriter, r *http.Request) {
	var in service.ChannelInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		a.respondError(w, fmt.Errorf("%w: %v", service.ErrInvalidInput, err))
		return
	}
	ch, err := a.rules.CreateChannel(r.Context(), &in)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, ch, http.StatusCreated)
}

func (a *API) getChannel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.respondError(w, err)
		return
	}
	ch, err := a.rules.GetChannel(r.Context(), id)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, ch, http.StatusOK)
}

func (a *API) updateChannel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.respondError(w, err)
		return
	}
	var in service.ChannelInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		a.respondError(w, fmt.Errorf("%w: %v", service.ErrInvalidInput, err))
		return
	}
	ch, err := a.rules.UpdateChannel(r.Context(), id, &in)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, ch, http.StatusOK)
}

func (a *API) deleteChannel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.respondError(w, err)
		return
	}
	if err := a.rules.DeleteChannel(r.Context(), id); err != nil {
		a.respondError(w, err)
		return
	}
	a.respondJSON(w, map[string]string{"status": "deleted"}, http.StatusOK)
}

// threatRuleView is the JSON shape of a static detector rule.
type threatRuleView struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ThreatLevel string `json:"threat_level"`
}

func (a *API) listThreatRules(w http.ResponseWriter, r *http.Request) {
	rules := detect.ThreatRules()
	views := make([]threatRuleView, 0, len(rules))
	for _, rule := range rules {
		views = append(views, threatRuleView{
			Name:        rule.Name,
			Description: rule.Description,
			ThreatLevel: rule.ThreatLevel,
		})
	}
	a.respondJSON(w, views, http.StatusOK)
}

func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":     "ok",
		"ws_clients": a.hub.ClientCount(),
	}
	if a.health != nil {
		resp["queue_depth"] = a.health.QueueLen()
	}
	a.respondJSON(w, resp, http.StatusOK)
}
