package app

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nexuscore/nexus/reqctx"
)

// registerObservability mounts /__nexus/metrics and /__nexus/health if an
// ObservabilityProvider was installed via WithObservability, refusing to
// register either endpoint if an application route already binds the
// same (method, path). The core's only responsibility here is that
// conflict check and the draining-aware 503 on /health; actual
// metrics/health rendering is the collaborator's job.
func (a *Application) registerObservability() {
	if a.observability == nil {
		return
	}

	if _, exists := a.router.Match(http.MethodGet, a.metricsPath); !exists {
		_ = a.router.Insert(http.MethodGet, a.metricsPath, a.metricsHandler(), nil)
	}
	if _, exists := a.router.Match(http.MethodGet, a.healthPath); !exists {
		_ = a.router.Insert(http.MethodGet, a.healthPath, a.healthHandler(), nil)
	}
}

func (a *Application) metricsHandler() func(*reqctx.Context) {
	return func(c *reqctx.Context) {
		a.observability.Metrics(c.ResponseWriter(), c.Request())
	}
}

type healthBody struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Checks    map[string]any `json:"checks,omitempty"`
}

// healthHandler reports 200 when up, 503 when the collaborator reports
// unhealthy, and 503 when draining — checked before the collaborator
// even runs, so a draining process never reports healthy.
func (a *Application) healthHandler() func(*reqctx.Context) {
	return func(c *reqctx.Context) {
		w := c.ResponseWriter()
		w.Header().Set("Content-Type", "application/json")

		if a.shutdown != nil && a.shutdown.IsDraining() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(healthBody{Status: "draining", Timestamp: nowRFC3339()})
			return
		}

		healthy, checks := a.observability.Health(c.Request())
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(healthBody{Status: "down", Timestamp: nowRFC3339(), Checks: checks})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(healthBody{Status: "up", Timestamp: nowRFC3339(), Checks: checks})
	}
}

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }
