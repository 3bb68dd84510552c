package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serveCORS(origins []string, method, origin string, preflight bool) (*httptest.ResponseRecorder, bool) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(method, "/api/v1/clinics/x/appointments", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	rec := httptest.NewRecorder()
	CORS(origins)(next).ServeHTTP(rec, req)
	return rec, called
}

func TestCORSListedOrigin(t *testing.T) {
	rec, called := serveCORS([]string{"https://staff.clinic.test/"}, http.MethodGet, "https://staff.clinic.test", false)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://staff.clinic.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "X-Request-ID", rec.Header().Get("Access-Control-Expose-Headers"))
	assert.Contains(t, rec.Header().Values("Vary"), "Origin")
}

func TestCORSUnlistedOriginPassesThroughWithoutHeaders(t *testing.T) {
	rec, called := serveCORS([]string{"https://staff.clinic.test"}, http.MethodGet, "https://evil.test", false)

	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	rec, called := serveCORS([]string{"https://staff.clinic.test"}, http.MethodOptions, "https://staff.clinic.test", true)
	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, corsAllowedMethods, rec.Header().Get("Access-Control-Allow-Methods"))

	rec, called = serveCORS([]string{"https://staff.clinic.test"}, http.MethodOptions, "https://evil.test", true)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCORSWildcards(t *testing.T) {
	origins := []string{"https://*.clinic.test"}
	for origin, want := range map[string]bool{
		"https://north.clinic.test":  true,
		"https://a.b.clinic.test":    true,
		"https://clinic.test":        false,
		"http://north.clinic.test":   false,
		"https://north.clinic.test2": false,
		"https://evilclinic.test":    false,
	} {
		rec, _ := serveCORS(origins, http.MethodGet, origin, false)
		assert.Equal(t, want, rec.Header().Get("Access-Control-Allow-Origin") == origin, origin)
	}

	rec, _ := serveCORS([]string{"*"}, http.MethodGet, "https://anything.test", false)
	assert.Equal(t, "https://anything.test", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSNoOriginHeader(t *testing.T) {
	rec, called := serveCORS([]string{"*"}, http.MethodOptions, "", true)
	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
