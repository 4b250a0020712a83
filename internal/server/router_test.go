package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/loykin/cradle/internal/container"
	mng "github.com/loykin/cradle/internal/manager"
	"github.com/loykin/cradle/internal/runtime/fake"
)

func newTestHandler(t *testing.T) (http.Handler, *mng.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mgr := mng.New(fake.New())
	t.Cleanup(mgr.Shutdown)
	return NewRouter(mgr, "/api", false).Handler(), mgr
}

func doJSON(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) errorResp {
	t.Helper()
	var e errorResp
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, w.Body.String())
	}
	return e
}

func registerWeb(t *testing.T, h http.Handler) container.Status {
	t.Helper()
	w := doJSON(t, h, http.MethodPost, "/api/register",
		`{"name":"web","image":"nginx:alpine","restart_policy":{"mode":"no"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("register: status %d body %s", w.Code, w.Body.String())
	}
	var st container.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return st
}

func TestRegisterAndStatus(t *testing.T) {
	h, _ := newTestHandler(t)
	st := registerWeb(t, h)
	if st.Name != "web" || st.State != "created" || st.ID == "" {
		t.Fatalf("unexpected status: %+v", st)
	}

	w := doJSON(t, h, http.MethodGet, "/api/status?ref=web", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d %s", w.Code, w.Body.String())
	}
	var got container.Status
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != st.ID {
		t.Fatalf("status by name returned %q, want %q", got.ID, st.ID)
	}

	// Lookup by ID works the same as by name.
	w = doJSON(t, h, http.MethodGet, "/api/status?ref="+st.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status by id: %d", w.Code)
	}

	w = doJSON(t, h, http.MethodGet, "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}
	var list []container.Status
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].Name != "web" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	h, _ := newTestHandler(t)
	registerWeb(t, h)

	for _, step := range []struct {
		op   string
		want string
	}{
		{"start", "running"},
		{"pause", "paused"},
		{"unpause", "running"},
		{"stop", "stopped"},
		{"remove", ""},
	} {
		w := doJSON(t, h, http.MethodPost, "/api/"+step.op+"?ref=web", "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status %d body %s", step.op, w.Code, w.Body.String())
		}
		if step.want == "" {
			continue
		}
		sw := doJSON(t, h, http.MethodGet, "/api/status?ref=web", "")
		var st container.Status
		if err := json.Unmarshal(sw.Body.Bytes(), &st); err != nil {
			t.Fatalf("decode after %s: %v", step.op, err)
		}
		if st.State != step.want {
			t.Fatalf("after %s: state %q, want %q", step.op, st.State, step.want)
		}
	}

	// Removed containers are gone from the status surface.
	w := doJSON(t, h, http.MethodGet, "/api/status?ref=web", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status after remove: %d", w.Code)
	}
}

func TestUnknownContainerIs404(t *testing.T) {
	h, _ := newTestHandler(t)
	w := doJSON(t, h, http.MethodPost, "/api/start?ref=ghost", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", w.Code)
	}
	if e := decodeErr(t, w); e.Code != codeUnknownContainer {
		t.Fatalf("code %q, want %q", e.Code, codeUnknownContainer)
	}
}

func TestInvalidTransitionIs409(t *testing.T) {
	h, _ := newTestHandler(t)
	registerWeb(t, h)
	// pause before start is rejected
	w := doJSON(t, h, http.MethodPost, "/api/pause?ref=web", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("status %d, want 409 (%s)", w.Code, w.Body.String())
	}
	if e := decodeErr(t, w); e.Code != codeInvalidTransition {
		t.Fatalf("code %q, want %q", e.Code, codeInvalidTransition)
	}
}

func TestBadRequests(t *testing.T) {
	h, _ := newTestHandler(t)

	w := doJSON(t, h, http.MethodPost, "/api/register", `{"name":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad JSON: status %d", w.Code)
	}
	if e := decodeErr(t, w); e.Code != codeBadRequest {
		t.Fatalf("code %q, want %q", e.Code, codeBadRequest)
	}

	w = doJSON(t, h, http.MethodPost, "/api/register", `{"name":"../etc","image":"x"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unsafe name: status %d", w.Code)
	}

	w = doJSON(t, h, http.MethodPost, "/api/start", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing ref: status %d", w.Code)
	}

	w = doJSON(t, h, http.MethodGet, "/api/history", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing name: status %d", w.Code)
	}
}

func TestDuplicateNameIs400(t *testing.T) {
	h, _ := newTestHandler(t)
	registerWeb(t, h)
	w := doJSON(t, h, http.MethodPost, "/api/register",
		`{"name":"web","image":"nginx:alpine"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate register: status %d body %s", w.Code, w.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	h, _ := newTestHandler(t)
	w := doJSON(t, h, http.MethodGet, "/api/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("healthz: %d", w.Code)
	}
	var ok okResp
	if err := json.Unmarshal(w.Body.Bytes(), &ok); err != nil || !ok.OK {
		t.Fatalf("unexpected healthz body: %s", w.Body.String())
	}
}

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":      "",
		"/":     "",
		"api":   "/api",
		"/api":  "/api",
		"/api/": "/api",
	}
	for in, want := range cases {
		if got := sanitizeBase(in); got != want {
			t.Fatalf("sanitizeBase(%q) = %q, want %q", in, got, want)
		}
	}
}
