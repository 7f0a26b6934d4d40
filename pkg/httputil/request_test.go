package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectError bool
	}{
		{name: "valid JSON", body: `{"name": "test"}`},
		{name: "invalid JSON", body: `{invalid}`, expectError: true},
		{name: "unknown field", body: `{"name": "test", "role": "SUPER_ADMIN"}`, expectError: true},
		{name: "trailing object", body: `{"name": "a"}{"name": "b"}`, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dest struct {
				Name string `json:"name"`
			}
			err := ParseJSON(httptest.NewRecorder(), req, &dest)
			if tt.expectError {
				assert.ErrorIs(t, err, rbac.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "test", dest.Name)
		})
	}
}

func TestParsePathInt64(t *testing.T) {
	tests := []struct {
		value   string
		want    int64
		wantErr bool
	}{
		{value: "42", want: 42},
		{value: "abc", wantErr: true},
		{value: "-1", wantErr: true},
		{value: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"actor": tt.value})
			got, err := ParsePathInt64(req, "actor")
			if tt.wantErr {
				assert.ErrorIs(t, err, rbac.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=5&project_id=9&since=2026-01-02T03:04:05Z&bad=x", nil)

	limit, err := ParseQueryInt(req, "limit", 100)
	require.NoError(t, err)
	assert.Equal(t, 5, limit)

	def, err := ParseQueryInt(req, "missing", 100)
	require.NoError(t, err)
	assert.Equal(t, 100, def)

	_, err = ParseQueryInt(req, "bad", 0)
	assert.ErrorIs(t, err, rbac.ErrInvalidInput)

	pid, err := ParseQueryInt64Ptr(req, "project_id")
	require.NoError(t, err)
	require.NotNil(t, pid)
	assert.Equal(t, int64(9), *pid)

	none, err := ParseQueryInt64Ptr(req, "missing")
	require.NoError(t, err)
	assert.Nil(t, none)

	since, err := ParseQueryTime(req, "since")
	require.NoError(t, err)
	require.NotNil(t, since)
	assert.Equal(t, 2026, since.Year())

	_, err = ParseQueryTime(req, "bad")
	assert.ErrorIs(t, err, rbac.ErrInvalidInput)
}
