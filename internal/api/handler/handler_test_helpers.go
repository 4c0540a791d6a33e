package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"

	mw "github.com/edvin/safehouse/internal/api/middleware"
)

// newRequest creates a new HTTP request with an optional JSON body.
func newRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r
}

// newRequestRaw creates a new HTTP request with a raw string body.
func newRequestRaw(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// withChiURLParams adds chi URL parameters to the request context.
func withChiURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// withTenant sets the {tenantID} parameter, plus {id} when id is not empty.
func withTenant(r *http.Request, id string) *http.Request {
	params := map[string]string{"tenantID": testTenant}
	if id != "" {
		params["id"] = id
	}
	return withChiURLParams(r, params)
}

// decodeErrorResponse parses the JSON error response body into a map.
func decodeErrorResponse(rec *httptest.ResponseRecorder) map[string]string {
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	return body
}

// withAPIKey injects an identity with access to every tenant.
func withAPIKey(r *http.Request) *http.Request {
	identity := &mw.APIKeyIdentity{ID: "test-key", Tenants: []string{"*"}}
	return r.WithContext(context.WithValue(r.Context(), mw.APIKeyIdentityKey, identity))
}

const (
	testTenant = "tenant-1"
	validID    = "test-id-1"
)
