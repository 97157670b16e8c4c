package vkapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "vkharvest/pkg/errors"
)

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		kind        Kind
		payload     bool
		exhausted   bool
		wantErrType errs.ErrorType
	}{
		{name: "success", body: `{"response":[{"id":1}]}`, kind: KindSuccess, payload: true},
		{
			name:      "exhausted",
			body:      `{"response":[],"execute_errors":[{"method":"users.get","error_code":29,"error_msg":"Rate limit reached"}]}`,
			kind:      KindPartialErrors,
			payload:   true,
			exhausted: true,
		},
		{
			name: "partial without payload",
			body: `{"response":null,"execute_errors":[{"method":"wall.get","error_code":10,"error_msg":"Internal"}]}`,
			kind: KindPartialErrors,
		},
		{name: "hard error", body: `{"error":{"error_code":5,"error_msg":"User authorization failed"}}`, kind: KindHardError},
		{name: "empty object", body: `{}`, wantErrType: errs.ErrorTypeParsing},
		{name: "not json", body: `<html>`, wantErrType: errs.ErrorTypeParsing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(tt.body))
			if tt.wantErrType != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErrType, errs.TypeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, env.Kind)
			assert.Equal(t, tt.payload, env.HasPayload())
			assert.Equal(t, tt.exhausted, env.Exhausted())
		})
	}
}

func TestEnvelopeErr(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"execute_errors":[{"error_code":6,"error_msg":"Too many"},{"error_code":29,"error_msg":"Rate limit"}]}`))
	require.NoError(t, err)
	assert.True(t, errs.Is(env.Err(), errs.ErrorTypeQuota))

	env, err = ParseEnvelope([]byte(`{"execute_errors":[{"error_code":6,"error_msg":"Too many"}]}`))
	require.NoError(t, err)
	assert.True(t, errs.Is(env.Err(), errs.ErrorTypeTransient))

	env, err = ParseEnvelope([]byte(`{"response":[]}`))
	require.NoError(t, err)
	assert.NoError(t, env.Err())
}

func TestItemsDecode(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"response":[
		[1,{"count":2,"items":[{"id":10,"has_photo":1,"is_closed":0,"type":"page"},{"id":11,"is_closed":2,"type":"group"}]}],
		["2",false]
	]}`))
	require.NoError(t, err)

	items, err := env.Items()
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, int64(1), items[0].ID)
	assert.False(t, items[0].Vanished)
	groups, err := items[0].Groups()
	require.NoError(t, err)
	assert.Equal(t, 2, groups.Count)
	assert.Equal(t, 2, groups.Items[1].IsClosed)

	assert.Equal(t, int64(2), items[1].ID)
	assert.True(t, items[1].Vanished)
}

func TestItemRejectsBadShape(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"response":[[1]]}`))
	require.NoError(t, err)
	_, err = env.Items()
	assert.Error(t, err)
}

func TestProfileFlags(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"response":[
		{"id":1,"is_closed":true},
		{"id":2,"deactivated":"deleted","is_closed":false},
		{"id":3,"deactivated":null,"counters":{"friends":4}}
	]}`))
	require.NoError(t, err)
	profiles, err := env.Profiles()
	require.NoError(t, err)

	assert.True(t, profiles[0].Closed())
	assert.False(t, profiles[0].Deactivated())
	assert.Nil(t, profiles[0].Counters())

	assert.True(t, profiles[1].Deactivated())

	assert.False(t, profiles[2].Deactivated())
	assert.False(t, profiles[2].Closed())
	assert.Equal(t, 4.0, profiles[2].Counters()["friends"])
}

func TestPostIsRepost(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"response":[[5,{"count":2,"items":[{"id":1,"text":"a","copy_history":[{}]},{"id":2,"text":""}]}]]}`))
	require.NoError(t, err)
	items, err := env.Items()
	require.NoError(t, err)
	wall, err := items[0].Wall()
	require.NoError(t, err)
	assert.True(t, wall.Items[0].IsRepost())
	assert.False(t, wall.Items[1].IsRepost())
}
