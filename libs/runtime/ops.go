package runtime

import (
	"context"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

const probeTimeout = 2 * time.Second

// Probe is one named dependency check run by the readiness endpoint.
type Probe struct {
	Name  string
	Check func(context.Context) error
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// OpsMux serves /healthz (process up) and /readyz (dependencies reachable).
// Readiness reports every failing probe, not just the first.
func OpsMux(probes ...Probe) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if failures := runProbes(r.Context(), probes); len(failures) > 0 {
			writeText(w, http.StatusServiceUnavailable, strings.Join(failures, "; "))
			return
		}
		writeText(w, http.StatusOK, "ok")
	})
	return mux
}

func runProbes(ctx context.Context, probes []Probe) []string {
	var failures []string
	for _, p := range probes {
		if p.Check == nil {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := p.Check(probeCtx)
		cancel()
		if err != nil {
			name := p.Name
			if name == "" {
				name = "dependency"
			}
			failures = append(failures, name+": "+err.Error())
		}
	}
	return failures
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
