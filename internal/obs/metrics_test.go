package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                         "/",
		"/":                        "/",
		"/metrics":                 "/metrics",
		"/v1/auth/login":           "/v1/auth/login",
		"/v1/auth/login/":          "/v1/auth/login",
		"/v1/auth/refresh?x=1":     "/v1/auth/refresh",
		"/v1/auth/users/42":        "other",
		"/v1/products/abc/reviews": "other",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestObserveAuthCounts(t *testing.T) {
	before := testutil.ToFloat64(authOperations.WithLabelValues("login", "ok"))
	ObserveAuth("login", "ok")
	ObserveAuth("login", "ok")
	if got := testutil.ToFloat64(authOperations.WithLabelValues("login", "ok")); got != before+2 {
		t.Fatalf("expected counter to grow by 2, got %v -> %v", before, got)
	}
}

func TestInstrumentRecordsStatus(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "/v1/auth/login", "401"))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "/v1/auth/login", "401")); got != before+1 {
		t.Fatalf("expected request counter to grow by 1, got %v -> %v", before, got)
	}
}

func TestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stdout) })

	l := Logger()
	l.Info().Str("jti", "abc").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["message"] != "hello" || entry["jti"] != "abc" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts field, got %v", entry)
	}
}
