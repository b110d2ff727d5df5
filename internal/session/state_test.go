package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Unbound, "UNBOUND"},
		{BindPending, "BIND-PENDING"},
		{Ready, "READY"},
		{StartPending, "START-PENDING"},
		{Active, "ACTIVE"},
		{StopPending, "STOP-PENDING"},
		{UnbindPending, "UNBIND-PENDING"},
		{State(42), "State(42)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestState_Bound(t *testing.T) {
	assert.False(t, Unbound.Bound())
	assert.False(t, BindPending.Bound())
	assert.False(t, UnbindPending.Bound())
	assert.True(t, Ready.Bound())
	assert.True(t, StartPending.Bound())
	assert.True(t, Active.Bound())
	assert.True(t, StopPending.Bound())
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("Provider")
	require.NoError(t, err)
	assert.Equal(t, RoleProvider, role)

	role, err = ParseRole("user")
	require.NoError(t, err)
	assert.Equal(t, RoleUser, role)

	_, err = ParseRole("station")
	assert.Error(t, err)
}

func TestParseAuthMode(t *testing.T) {
	tests := []struct {
		in      string
		want    AuthMode
		wantErr bool
	}{
		{"none", AuthNone, false},
		{"bind", AuthBind, false},
		{"ALL", AuthAll, false},
		{"some", AuthNone, true},
	}
	for _, tt := range tests {
		mode, err := ParseAuthMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, mode, tt.in)
	}
}

func TestParseAuthFailurePolicy(t *testing.T) {
	policy, err := ParseAuthFailurePolicy("abort")
	require.NoError(t, err)
	assert.Equal(t, AuthFailureAbort, policy)

	policy, err = ParseAuthFailurePolicy("drop")
	require.NoError(t, err)
	assert.Equal(t, AuthFailureDrop, policy)

	_, err = ParseAuthFailurePolicy("ignore")
	assert.Error(t, err)
}
