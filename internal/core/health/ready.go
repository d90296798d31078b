package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// ReadinessReporter is satisfied by stream.Runner.
type ReadinessReporter interface {
	Readiness() (ready bool, partitions []int32)
}

// Pinger is a backing dependency, e.g. the catalog store.
type Pinger interface {
	Ping(ctx context.Context) error
}

const pingTimeout = 2 * time.Second

// Readiness reports ready when the consumer (if any) holds partitions and every
// dependency answers a ping.
func Readiness(rr ReadinessReporter, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type resp struct {
			Status     string            `json:"status"`
			Partitions []int32           `json:"partitions,omitempty"`
			Deps       map[string]string `json:"deps,omitempty"`
		}

		ready := true
		var parts []int32
		if rr != nil {
			ready, parts = rr.Readiness()
		}

		out := resp{}
		if len(deps) > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
			defer cancel()

			names := make([]string, 0, len(deps))
			for name := range deps {
				names = append(names, name)
			}
			sort.Strings(names)

			out.Deps = make(map[string]string, len(deps))
			for _, name := range names {
				if err := deps[name].Ping(ctx); err != nil {
					out.Deps[name] = err.Error()
					ready = false
					continue
				}
				out.Deps[name] = "ok"
			}
		}

		out.Status = "not_ready"
		if ready {
			out.Status = "ready"
			out.Partitions = parts
		}
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
