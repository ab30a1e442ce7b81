package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole_StringAndObjectAgree(t *testing.T) {
	fromString, err := ParseRole(json.RawMessage(`"Admin"`))
	require.NoError(t, err)

	fromObject, err := ParseRole(json.RawMessage(`{"id":1,"label":"Admin"}`))
	require.NoError(t, err)

	fromBackend, err := ParseRole(json.RawMessage(`{"idRol":1,"definicion":"Admin"}`))
	require.NoError(t, err)

	assert.Equal(t, RoleAdmin, fromString)
	assert.Equal(t, fromString, fromObject)
	assert.Equal(t, fromString, fromBackend)
}

func TestParseRole_SpanishAndEnglishLabels(t *testing.T) {
	cases := map[string]Role{
		`"Operador"`: RoleOperator,
		`"operator"`: RoleOperator,
		`"Visor"`:    RoleViewer,
		`"VIEWER"`:   RoleViewer,
		`" admin "`:  RoleAdmin,
	}
	for raw, want := range cases {
		got, err := ParseRole(json.RawMessage(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestParseRole_Unknown(t *testing.T) {
	for _, raw := range []string{`"Cashier"`, `null`, ``, `{"id":9}`, `42`} {
		_, err := ParseRole(json.RawMessage(raw))
		assert.ErrorIs(t, err, ErrUnknownRole, raw)
	}
}

func TestSession_Authenticated(t *testing.T) {
	assert.False(t, Unauthenticated.Authenticated())
	assert.False(t, NewSession(Identity{ID: 0}, RoleAdmin).Authenticated())
	assert.False(t, NewSession(Identity{ID: 3}, RoleNone).Authenticated())

	s := NewSession(Identity{ID: 3, DisplayName: "ana"}, RoleOperator)
	assert.True(t, s.Authenticated())
	assert.True(t, s.HasRole(RoleAdmin, RoleOperator))
	assert.False(t, s.HasRole(RoleAdmin))
}

func TestRole_Label(t *testing.T) {
	assert.Equal(t, "Operador", RoleOperator.Label())
	assert.Equal(t, "Visor", RoleViewer.Label())
	assert.Equal(t, "Operator", RoleOperator.String())
}
