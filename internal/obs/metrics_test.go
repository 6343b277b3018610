package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":          "/",
		"/metrics":  "/metrics",
		"/v1/resources/units/01HZY3V8D9Q7K2M4N6P8R0T2W4":        "/v1/resources/units/:id",
		"/v1/assignments/01HZY3V8D9Q7K2M4N6P8R0T2W4?x=1":       "/v1/assignments/:id",
		"/v1/assignments/not-an-id":                             "/v1/assignments/not-an-id",
		"/v1/maintenance":                                       "/v1/maintenance",
		"/v1/facilities/01HZY3V8D9Q7K2M4N6P8R0T2W4/units/extra": "/v1/facilities/:id/units/extra",
	}
	for input, expected := range cases {
		require.Equal(t, expected, CanonicalPath(input), input)
	}
}

func TestInstrumentUsesRoutePattern(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Instrument)
	r.Get("/v1/assignments/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/assignments/{id}", "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/assignments/abc", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/assignments/{id}", "418"))
	require.Equal(t, before+1, after)
}

func TestObserveAdmission(t *testing.T) {
	before := testutil.ToFloat64(admissionsTotal.WithLabelValues("admitted"))
	ObserveAdmission("")
	ObserveAdmission("capacity_exceeded")
	require.Equal(t, before+1, testutil.ToFloat64(admissionsTotal.WithLabelValues("admitted")))
	require.GreaterOrEqual(t, testutil.ToFloat64(admissionsTotal.WithLabelValues("capacity_exceeded")), 1.0)
}

func TestSetLevel(t *testing.T) {
	SetLevel("debug")
	require.Equal(t, "debug", Logger().GetLevel().String())
	SetLevel("nonsense")
	require.Equal(t, "info", Logger().GetLevel().String())
}
