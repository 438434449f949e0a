package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func loopbackRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.RemoteAddr = "127.0.0.1:1234"
	return req
}

func TestCacheRoundTrip(t *testing.T) {
	router := NewRouter(testConfig(&fakePipeline{}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, loopbackRequest(http.MethodPut, "/set/greeting?expire=60", strings.NewReader(`{"hello":"world"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("set status = %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	if got := decodeJSONBody(t, rr)["expire"]; got != float64(60) {
		t.Errorf("expire = %v, want 60", got)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, loopbackRequest(http.MethodGet, "/get/greeting", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rr.Code)
	}
	value, ok := decodeJSONBody(t, rr)["value"].(map[string]any)
	if !ok || value["hello"] != "world" {
		t.Errorf("value = %v, want {hello: world}", value)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, loopbackRequest(http.MethodDelete, "/delete/greeting", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", rr.Code)
	}
	if got := decodeJSONBody(t, rr)["deleted"]; got != true {
		t.Errorf("deleted = %v, want true", got)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, loopbackRequest(http.MethodGet, "/get/greeting", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", rr.Code)
	}
}

func TestCacheSet_PlainTextStoredAsString(t *testing.T) {
	router := NewRouter(testConfig(&fakePipeline{}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, loopbackRequest(http.MethodPost, "/set/note", strings.NewReader("just text")))
	if rr.Code != http.StatusOK {
		t.Fatalf("set status = %d, want 200", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, loopbackRequest(http.MethodGet, "/get/note", nil))
	if got := decodeJSONBody(t, rr)["value"]; got != "just text" {
		t.Errorf("value = %v, want %q", got, "just text")
	}
}

func TestCacheSet_InvalidExpire(t *testing.T) {
	router := NewRouter(testConfig(&fakePipeline{}))

	for _, expire := range []string{"0", "-5", "soon"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, loopbackRequest(http.MethodPut, "/set/k?expire="+expire, strings.NewReader(`1`)))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expire=%s: status = %d, want 400", expire, rr.Code)
		}
	}
}

func TestCacheDelete_MissingKey(t *testing.T) {
	router := NewRouter(testConfig(&fakePipeline{}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, loopbackRequest(http.MethodDelete, "/delete/absent", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got := decodeJSONBody(t, rr)["deleted"]; got != false {
		t.Errorf("deleted = %v, want false", got)
	}
}

func TestCacheRoutes_RejectRemoteClients(t *testing.T) {
	router := NewRouter(testConfig(&fakePipeline{}))

	req := httptest.NewRequest(http.MethodGet, "/get/anything", nil)
	req.RemoteAddr = "192.168.1.50:4000"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
}
