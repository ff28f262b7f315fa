package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RouteLabelsAndInflight(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/users/:id/balance", func(c *gin.Context) { c.String(http.StatusOK, "{}") })
	r.DELETE("/files/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	baseBalance := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/users/:id/balance", "200"))
	baseDelete := testutil.ToFloat64(httpReqs.WithLabelValues("DELETE", "/files/:id", "204"))
	baseMiss := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404"))

	for _, id := range []string{"1", "2", "3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/"+id+"/balance", nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/files/0123abcd", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/path", nil))

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/users/:id/balance", "200")); got != baseBalance+3 {
		t.Fatalf("balance counter = %v, want %v", got, baseBalance+3)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("DELETE", "/files/:id", "204")); got != baseDelete+1 {
		t.Fatalf("delete counter = %v, want %v", got, baseDelete+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404")); got != baseMiss+1 {
		t.Fatalf("unmatched counter = %v, want %v", got, baseMiss+1)
	}
	if v := testutil.ToFloat64(httpInflight); v != 0 {
		t.Fatalf("inflight = %v, want 0", v)
	}
}
