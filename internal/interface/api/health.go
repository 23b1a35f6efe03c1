package api

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
)

// healthResponse はヘルスチェックのレスポンス
type healthResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Environment string            `json:"environment"`
	Checks      map[string]string `json:"checks"`
}

// healthHandler はKubernetesのliveness / readinessプローブに応答する
type healthHandler struct {
	version     string
	environment string
	pool        *pgxpool.Pool // nilの場合はDBチェックを省略
}

// live は liveness プローブ。プロセスが生きていれば常に200を返す
func (h *healthHandler) live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "healthy",
		Version:     h.version,
		Environment: h.environment,
		Checks:      map[string]string{"app": "ok"},
	})
}

// ready は readiness プローブ。依存先の疎通を確認する
func (h *healthHandler) ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"app": "ok"}
	healthy := true

	if h.pool != nil {
		if err := h.pool.Ping(r.Context()); err != nil {
			checks["database"] = "error: " + err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}

	status := http.StatusOK
	state := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}

	writeJSON(w, status, healthResponse{
		Status:      state,
		Version:     h.version,
		Environment: h.environment,
		Checks:      checks,
	})
}
