package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Check tests one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

const checkTimeout = 3 * time.Second

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthCheckHandler runs every check concurrently and answers 200 when all pass
// and 503 otherwise.
func HealthCheckHandler(checks map[string]Check) http.Handler {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}

	sort.Strings(names)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		resp := report{Status: "ok", Checks: make(map[string]string, len(names))}

		mu := new(sync.Mutex)
		wg := new(sync.WaitGroup)

		for _, name := range names {
			wg.Add(1)

			go func(name string) {
				defer wg.Done()

				result := "ok"
				if err := checks[name](ctx); err != nil {
					log.WithError(err).WithField("check", name).Warn("health check failed")

					result = err.Error()
				}

				mu.Lock()
				resp.Checks[name] = result
				if result != "ok" {
					resp.Status = "degraded"
				}
				mu.Unlock()
			}(name)
		}

		wg.Wait()

		w.Header().Set("Content-Type", "application/json")

		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.WithError(err).Error("failed to write health response")
		}
	})
}
