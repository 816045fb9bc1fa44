package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/playerhub/internal/model"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not accepting", model.ErrNotAccepting, http.StatusServiceUnavailable, CodeServerShuttingDown},
		{"wrapped not accepting", fmt.Errorf("upgrade: %w", model.ErrNotAccepting), http.StatusServiceUnavailable, CodeServerShuttingDown},
		{"not found", NewNotFoundError(), http.StatusNotFound, CodeNotFound},
		{"method not allowed", NewMethodNotAllowedError(), http.StatusMethodNotAllowed, CodeMethodNotAllowed},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteError(rr, tt.err)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
}
