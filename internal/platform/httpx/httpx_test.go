package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymops/gymops/internal/shared"
)

func TestRespondError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: fmt.Errorf("load: %w", shared.ErrNotFound), want: http.StatusNotFound},
		{err: ErrDuplicate, want: http.StatusConflict},
		{err: fmt.Errorf("%w: bad time", shared.ErrInvalidInput), want: http.StatusBadRequest},
		{err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
		{err: fmt.Errorf("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		RespondError(rr, tt.err)
		assert.Equal(t, tt.want, rr.Code, tt.err.Error())

		var problem ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
		assert.Equal(t, tt.want, problem.Status)
	}
}

func TestETag(t *testing.T) {
	tag := ETag([]byte(`{"a":1}`))
	assert.Equal(t, tag, ETag([]byte(`{"a":1}`)))
	assert.NotEqual(t, tag, ETag([]byte(`{"a":2}`)))
	assert.Len(t, tag, 34)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	assert.False(t, NotModified(req, tag))
	req.Header.Set("If-None-Match", `"other", W/`+tag)
	assert.True(t, NotModified(req, tag))
	req.Header.Set("If-None-Match", `"other"`)
	assert.False(t, NotModified(req, tag))
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Reason string `json:"reason"`
	}
	cases := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{name: "ok", payload: `{"reason":"sick"}`},
		{name: "empty", payload: ``, wantErr: true},
		{name: "unknown field", payload: `{"reason":"x","extra":1}`, wantErr: true},
		{name: "trailing object", payload: `{"reason":"x"}{"reason":"y"}`, wantErr: true},
		{name: "malformed", payload: `{"reason":`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.payload))
			var got body
			err := DecodeJSON(req, &got)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "sick", got.Reason)
		})
	}
}

func TestProblemContentType(t *testing.T) {
	rr := httptest.NewRecorder()
	Problem(rr, http.StatusBadRequest, "Validation Failed", "time failed datetime")
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), `"type":"about:blank"`)
}
