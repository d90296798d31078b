package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammed-shakir/raster-intake/internal/core/observability"
)

func scrape(t *testing.T, p *Provider) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	return rr.Body.String()
}

func TestProvider_RegistersStandardCollectors_AndBuildInfo(t *testing.T) {
	p := Init(Config{Build: BuildInfo{Version: "test", Revision: "r", Binary: "intake-bulk", BuildDate: "now"}})
	body := scrape(t, p)

	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected go_goroutines in payload; got:\n%s", body)
	}
	if !strings.Contains(body, `raster_intake_build_info{`) || !strings.Contains(body, `binary="intake-bulk"`) {
		t.Fatalf("expected raster_intake_build_info in payload; got:\n%s", body)
	}
}

func TestProvider_ServesIntakeMetrics(t *testing.T) {
	p := Init(Config{})
	observability.Init(p.Registerer())

	observability.IncItem("failed", "FetchError")
	observability.IncWriterOutcome("dead_letter", "")
	observability.ObserveHTTP("GET", "/jobs/{id}", 200, 0.002)

	body := scrape(t, p)
	for _, s := range []string{
		`intake_items_total{kind="FetchError",status="failed"} `,
		`catalog_writer_outcomes_total{action="none",outcome="dead_letter"} `,
		`http_request_duration_seconds_bucket`,
	} {
		if !strings.Contains(body, s) {
			t.Fatalf("expected metrics to contain %q;\n---\n%s", s, body)
		}
	}
}
