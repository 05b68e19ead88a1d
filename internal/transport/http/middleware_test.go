package httptransport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRequestLoggerRecordsRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /groups/{groupID}/members", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	const id = "0f8e1f7e-9c1a-4d2b-8e3f-5a6b7c8d9e0f"
	req := httptest.NewRequest(http.MethodGet, "/groups/"+id+"/members", nil)
	RequestLogger(mux).ServeHTTP(httptest.NewRecorder(), req)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	var patterns []string
	for _, mf := range families {
		if mf.GetName() != "studyrank_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "pattern" {
					patterns = append(patterns, lp.GetValue())
				}
			}
		}
	}

	found := false
	for _, p := range patterns {
		if p == "GET /groups/{groupID}/members" {
			found = true
		}
		if strings.Contains(p, id) {
			t.Fatalf("raw request path leaked into metric labels: %q", p)
		}
	}
	if !found {
		t.Fatalf("matched route pattern not recorded; saw %v", patterns)
	}
}

func TestRequestLoggerUnmatchedRoute(t *testing.T) {
	mux := http.NewServeMux()
	req := httptest.NewRequest(http.MethodGet, "/nope/12345", nil)
	RequestLogger(mux).ServeHTTP(httptest.NewRecorder(), req)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "studyrank_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "pattern" && strings.Contains(lp.GetValue(), "/nope") {
					t.Fatalf("unmatched path must collapse to a fixed label, got %q", lp.GetValue())
				}
			}
		}
	}
}
