package resp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ncobase/keyvault/ecode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	Success(w, map[string]string{"id": "a1"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "a1", decode(t, w)["id"])
}

func TestSuccessMessage(t *testing.T) {
	w := httptest.NewRecorder()
	Success(w, "done")
	assert.Equal(t, "done", decode(t, w)["message"])
}

func TestNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	WithStatusCode(w, http.StatusNoContent)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.Bytes())
}

func TestError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    int
		message string
	}{
		{"conflict", ecode.New(ecode.Conflict, "Active approval for WORKSPACE with id w1 already exists"), http.StatusConflict, ecode.Conflict, "Active approval for WORKSPACE with id w1 already exists"},
		{"wrapped not found", fmt.Errorf("load: %w", ecode.New(ecode.NothingFound, "Approval a1 not found")), http.StatusNotFound, ecode.NothingFound, "Approval a1 not found"},
		{"invalid state", ecode.New(ecode.InvalidState, "Approval with id a1 is already approved/rejected"), http.StatusBadRequest, ecode.InvalidState, "Approval with id a1 is already approved/rejected"},
		{"pending", ecode.New(ecode.PendingInaccessible, ""), http.StatusUnauthorized, ecode.PendingInaccessible, ecode.Text(ecode.PendingInaccessible)},
		{"plain error hides cause", errors.New("pq: connection refused"), http.StatusInternalServerError, ecode.ServerErr, ecode.Text(ecode.ServerErr)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			Error(w, tt.err)

			assert.Equal(t, tt.status, w.Code)
			out := decode(t, w)
			assert.EqualValues(t, tt.code, out["code"])
			assert.Equal(t, tt.message, out["message"])
		})
	}
}

func TestFailWithErrors(t *testing.T) {
	w := httptest.NewRecorder()
	Fail(w, BadRequest("invalid request", map[string]string{"name": "required"}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	out := decode(t, w)
	assert.Equal(t, "invalid request", out["message"])
	assert.Equal(t, map[string]any{"name": "required"}, out["errors"])
}
