package notifier

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/justinhartfield/protein-empire-cms/pkg/telemetry"
)

// DefaultModels are the content types whose changes trigger a rebuild.
var DefaultModels = []string{"recipe", "recipe-pack", "category", "site"}

const maxWebhookBody = 1 << 20

// Observer consumes lifecycle events.
type Observer interface {
	Observe(evt LifecycleEvent) bool
}

// ReceiverConfig configures the webhook receiver.
type ReceiverConfig struct {
	// Secret, when set, must be presented as a bearer token.
	Secret string

	// Models limits the observed content types. Empty means DefaultModels.
	Models []string

	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
}

// Receiver accepts the content store's entry webhooks and feeds them to an
// Observer.
type Receiver struct {
	observer Observer
	secret   string
	models   map[string]bool
	logger   *telemetry.Logger
	metrics  *telemetry.Metrics
}

// NewReceiver creates a receiver feeding o.
func NewReceiver(o Observer, cfg ReceiverConfig) *Receiver {
	models := cfg.Models
	if len(models) == 0 {
		models = DefaultModels
	}
	r := &Receiver{
		observer: o,
		secret:   cfg.Secret,
		models:   make(map[string]bool, len(models)),
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
	for _, m := range models {
		r.models[m] = true
	}
	if r.logger == nil {
		r.logger = telemetry.NopLogger()
	}
	r.logger = r.logger.NewComponentLogger("webhook-receiver")
	return r
}

type webhookBody struct {
	Event string          `json:"event"`
	Model string          `json:"model"`
	Entry json.RawMessage `json:"entry"`
}

type webhookEntry struct {
	Domain      string          `json:"domain"`
	PublishedAt *string         `json:"publishedAt"`
	IsPublished *bool           `json:"isPublished"`
	Site        json.RawMessage `json:"site"`
}

type receiverResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, receiverResponse{Status: "rejected", Reason: "method not allowed"})
		return
	}
	if !r.authorized(req) {
		r.metrics.RecordLifecycleEvent("unknown", "unauthorized")
		r.logger.WithField("remote", req.RemoteAddr).Warn("Rejected webhook with bad credentials")
		writeJSON(w, http.StatusUnauthorized, receiverResponse{Status: "rejected", Reason: "unauthorized"})
		return
	}

	var body webhookBody
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxWebhookBody)).Decode(&body); err != nil {
		r.metrics.RecordLifecycleEvent("unknown", "invalid")
		writeJSON(w, http.StatusBadRequest, receiverResponse{Status: "rejected", Reason: "invalid JSON body"})
		return
	}

	evt, reason := r.toEvent(body)
	if reason != "" {
		action := string(evt.Action)
		if action == "" {
			action = "unknown"
		}
		r.metrics.RecordLifecycleEvent(action, "ignored")
		r.logger.WithFields(map[string]interface{}{
			"event":  body.Event,
			"model":  body.Model,
			"reason": reason,
		}).Debug("Ignoring webhook")
		writeJSON(w, http.StatusAccepted, receiverResponse{Status: "ignored", Reason: reason})
		return
	}

	if !r.observer.Observe(evt) {
		r.metrics.RecordLifecycleEvent(string(evt.Action), "ignored")
		writeJSON(w, http.StatusAccepted, receiverResponse{Status: "ignored", Reason: "entry not published"})
		return
	}

	r.metrics.RecordLifecycleEvent(string(evt.Action), "observed")
	r.logger.WithFields(map[string]interface{}{
		"action": string(evt.Action),
		"model":  evt.Model,
		"site":   evt.Site,
	}).Info("Content change observed")
	writeJSON(w, http.StatusAccepted, receiverResponse{Status: "observed"})
}

func (r *Receiver) authorized(req *http.Request) bool {
	if r.secret == "" {
		return true
	}
	got := req.Header.Get("Authorization")
	want := "Bearer " + r.secret
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// toEvent maps a webhook body onto a lifecycle event. A non-empty reason
// means the webhook is not about an observed entry.
func (r *Receiver) toEvent(body webhookBody) (LifecycleEvent, string) {
	action, ok := strings.CutPrefix(body.Event, "entry.")
	if !ok {
		return LifecycleEvent{}, "not an entry event"
	}
	evt := LifecycleEvent{Action: Action(action), Model: body.Model}
	switch evt.Action {
	case ActionCreate, ActionUpdate, ActionDelete, ActionPublish, ActionUnpublish:
	default:
		return LifecycleEvent{}, "unknown action"
	}
	if !r.models[body.Model] {
		return evt, "model not observed"
	}

	var entry webhookEntry
	if len(body.Entry) > 0 {
		// entries that do not decode are treated as unpublished and unscoped
		_ = json.Unmarshal(body.Entry, &entry)
	}
	evt.Published = (entry.PublishedAt != nil && *entry.PublishedAt != "") ||
		(entry.IsPublished != nil && *entry.IsPublished)
	if body.Model == "site" {
		evt.Site = entry.Domain
	} else {
		evt.Site = siteDomain(entry.Site)
	}
	return evt, ""
}

// siteDomain extracts the domain from a populated site relation. Relations
// that are not populated arrive as an id or null.
func siteDomain(raw json.RawMessage) string {
	var site struct {
		Domain string `json:"domain"`
	}
	if len(raw) == 0 || raw[0] != '{' {
		return ""
	}
	if err := json.Unmarshal(raw, &site); err != nil {
		return ""
	}
	return site.Domain
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
