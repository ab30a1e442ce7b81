package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Role int

const (
	RoleNone Role = iota
	RoleAdmin
	RoleOperator
	RoleViewer
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "Admin"
	case RoleOperator:
		return "Operator"
	case RoleViewer:
		return "Viewer"
	default:
		return "None"
	}
}

// Label is the role name the backend understands.
func (r Role) Label() string {
	switch r {
	case RoleAdmin:
		return "Admin"
	case RoleOperator:
		return "Operador"
	case RoleViewer:
		return "Visor"
	default:
		return ""
	}
}

var roleLabels = map[string]Role{
	"admin":         RoleAdmin,
	"administrador": RoleAdmin,
	"operator":      RoleOperator,
	"operador":      RoleOperator,
	"viewer":        RoleViewer,
	"visor":         RoleViewer,
}

// ParseRoleLabel maps a role label (English or Spanish, any case) to a Role.
func ParseRoleLabel(label string) (Role, error) {
	if r, ok := roleLabels[strings.ToLower(strings.TrimSpace(label))]; ok {
		return r, nil
	}
	return RoleNone, fmt.Errorf("%w: %q", ErrUnknownRole, label)
}

// structuredRole covers both {id,label} and the backend's {idRol,definicion} shapes.
type structuredRole struct {
	ID         *int64 `json:"id"`
	Label      string `json:"label"`
	IDRol      *int64 `json:"idRol"`
	Definicion string `json:"definicion"`
}

// ParseRole normalizes a role as returned by the API: either a bare JSON string
// or a structured object.
func ParseRole(raw json.RawMessage) (Role, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return RoleNone, fmt.Errorf("%w: missing role", ErrUnknownRole)
	}

	var label string
	if err := json.Unmarshal(raw, &label); err == nil {
		return ParseRoleLabel(label)
	}

	var obj structuredRole
	if err := json.Unmarshal(raw, &obj); err != nil {
		return RoleNone, fmt.Errorf("%w: %s", ErrUnknownRole, trimmed)
	}
	if obj.Label != "" {
		return ParseRoleLabel(obj.Label)
	}
	return ParseRoleLabel(obj.Definicion)
}

type Identity struct {
	ID          int64
	DisplayName string
}

// Session is either Unauthenticated (the zero value) or an authenticated
// identity with a normalized role.
type Session struct {
	Identity Identity
	Role     Role
}

var Unauthenticated = Session{}

func NewSession(identity Identity, role Role) Session {
	return Session{Identity: identity, Role: role}
}

func (s Session) Authenticated() bool {
	return s.Identity.ID != 0 && s.Role != RoleNone
}

func (s Session) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if s.Role == r {
			return true
		}
	}
	return false
}

// Account is a registered user as listed by the admin user directory.
type Account struct {
	ID      int64
	Name    string
	Surname string
	Email   string
	Role    Role
}
