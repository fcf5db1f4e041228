package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesCounters(t *testing.T) {
	ListingsTotal.WithLabelValues("HIT").Inc()
	RejectionsTotal.WithLabelValues("invalid_data").Add(2)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{`silvermon_listings_total{outcome="HIT"}`, `silvermon_rejections_total{reason="invalid_data"}`} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %s", want)
		}
	}
}
