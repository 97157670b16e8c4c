package vkapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "vkharvest/pkg/errors"
	"vkharvest/pkg/logger"
	"vkharvest/pkg/schedule"
)

func TestCallSendsBatchAndParsesEnvelope(t *testing.T) {
	var (
		got  *http.Request
		form url.Values
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		got = r.Clone(context.Background())
		form = r.PostForm
		w.Write([]byte(`{"response":[{"id":1,"is_closed":false}]}`))
	}))
	defer server.Close()

	c := NewClient(Options{BaseURL: server.URL}, logger.NewNopLogger())
	env, err := c.Call(context.Background(), schedule.Users, schedule.Batch{1, 2, 3}, "tok")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/execute.users_info", got.URL.Path)
	assert.Empty(t, got.URL.RawQuery)
	assert.Equal(t, "application/x-www-form-urlencoded", got.Header.Get("Content-Type"))
	assert.Equal(t, "1,2,3", form.Get("users_id"))
	assert.Equal(t, "tok", form.Get("access_token"))
	assert.Equal(t, DefaultVersion, form.Get("v"))
	assert.True(t, strings.HasSuffix(form.Get("fields"), "verified,counters"))

	assert.Equal(t, KindSuccess, env.Kind)
	profiles, err := env.Profiles()
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	id, err := profiles[0].ID()
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestCallOmitsFieldsForItemMethods(t *testing.T) {
	var query url.Values
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		query = r.PostForm
		path = r.URL.Path
		w.Write([]byte(`{"response":[[7,false]]}`))
	}))
	defer server.Close()

	c := NewClient(Options{BaseURL: server.URL}, logger.NewNopLogger())
	env, err := c.Call(context.Background(), schedule.Walls, schedule.Batch{7}, "tok")
	require.NoError(t, err)

	assert.Equal(t, "/execute.walls_info", path)
	assert.Empty(t, query.Get("fields"))

	items, err := env.Items()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Vanished)
}

func TestCallErrors(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantType errs.ErrorType
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantType: errs.ErrorTypeTransient,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{invalid json`))
			},
			wantType: errs.ErrorTypeParsing,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
				w.Write([]byte(`{"response":[]}`))
			},
			wantType: errs.ErrorTypeNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			log := logger.NewTestLogger()
			c := NewClient(Options{BaseURL: server.URL, Timeout: 50 * time.Millisecond}, log)
			_, err := c.Call(context.Background(), schedule.Groups, schedule.Batch{1}, "secret-token")
			require.Error(t, err)
			assert.Equal(t, tt.wantType, errs.TypeOf(err))
			assert.NotContains(t, log.String(), "secret-token")
			assert.NotContains(t, err.Error(), "secret-token")
		})
	}
}

func TestCallThroughProxy(t *testing.T) {
	var proxied bool
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxied = true
		assert.Equal(t, "api.example.test", r.URL.Host)
		w.Write([]byte(`{"response":[]}`))
	}))
	defer proxy.Close()

	proxyURL, err := url.Parse(proxy.URL)
	require.NoError(t, err)

	c := NewClient(Options{BaseURL: "http://api.example.test/method", Proxy: proxyURL}, logger.NewNopLogger())
	defer c.Close()
	env, err := c.Call(context.Background(), schedule.Users, schedule.Batch{1}, "tok")
	require.NoError(t, err)
	assert.True(t, proxied)
	assert.Equal(t, KindSuccess, env.Kind)
}
