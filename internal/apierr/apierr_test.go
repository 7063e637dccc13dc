package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteKnownErrorUsesItsStatusAndCode(t *testing.T) {
	w := httptest.NewRecorder()
	Write(w, NotFound("job"))

	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusNotFound)
	}
	var resp response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error.Code != CodeNotFound {
		t.Errorf("got code %q", resp.Error.Code)
	}
	if resp.Error.Message != "job not found" {
		t.Errorf("got message %q", resp.Error.Message)
	}
}

func TestWriteUnknownErrorDefaultsTo500(t *testing.T) {
	w := httptest.NewRecorder()
	Write(w, errors.New("boom"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want 500", w.Code)
	}
}

func TestErrorWrapPreservesUnwrap(t *testing.T) {
	root := errors.New("root cause")
	err := Conflict("can't do that").Wrap(root)
	if !errors.Is(err, root) {
		t.Fatal("expected errors.Is to find the wrapped root cause")
	}
	if err.Error() != "can't do that: root cause" {
		t.Errorf("got %q", err.Error())
	}
}

func TestWithDetailAccumulates(t *testing.T) {
	err := BadRequest("bad").WithDetail("field", "name").WithDetail("reason", "empty")
	if len(err.Details()) != 2 {
		t.Fatalf("got %v", err.Details())
	}
}

func TestWriteJSONSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	out := struct {
		OK bool `json:"ok"`
	}{OK: true}
	WriteJSON(w, &out, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}
	if got := w.Body.String(); got != "{\"ok\":true}\n" {
		t.Errorf("got body %q", got)
	}
}

func TestWriteJSONError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON[struct{}](w, nil, BadRequest("nope"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d", w.Code)
	}
}
