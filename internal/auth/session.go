// Package auth owns the signed-in identity: login, registration, logout and
// restoring the session across restarts.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/observe"
	"github.com/fjod/storefront/internal/storage"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/go-playground/validator/v10"
)

type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Authenticator is the part of the backend the session needs.
type Authenticator interface {
	Login(ctx context.Context, creds api.Credentials) (*api.LoginResponse, error)
	Register(ctx context.Context, req api.RegisterRequest) error
}

// Snapshot is what subscribers receive on every state change.
type Snapshot struct {
	State   State
	Session domain.Session
	Err     error
}

// Profile is the registration form.
type Profile struct {
	Name     string `validate:"required,max=100"`
	Surname  string `validate:"required,max=100"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=4"`
	Role     string // role label, empty means Viewer
}

type loginForm struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
}

type persistedSession struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

type Manager struct {
	backend  Authenticator
	storage  storage.Store
	log      *logger.Logger
	validate *validator.Validate
	hub      observe.Hub[Snapshot]

	mu      sync.Mutex
	state   State
	session domain.Session
	err     error
	attempt uint64
}

// NewManager restores the stored session without contacting the backend.
// A session revoked server-side stays valid here until a call is rejected.
func NewManager(ctx context.Context, backend Authenticator, st storage.Store, log *logger.Logger) *Manager {
	m := &Manager{
		backend:  backend,
		storage:  st,
		log:      log,
		validate: validator.New(),
	}
	m.restore(ctx)
	return m
}

func (m *Manager) restore(ctx context.Context) {
	raw, ok, err := m.storage.Get(ctx, storage.KeySession)
	if err != nil {
		m.log.Warn("failed to read stored session", "error", err)
		return
	}
	if !ok {
		return
	}

	var stored persistedSession
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		m.discardStored(ctx, "stored session is malformed", err)
		return
	}
	if stored.ID == 0 {
		m.discardStored(ctx, "stored session has no id", nil)
		return
	}
	role, err := domain.ParseRoleLabel(stored.Role)
	if err != nil {
		m.discardStored(ctx, "stored session has an unknown role", err)
		return
	}

	m.session = domain.NewSession(domain.Identity{ID: stored.ID, DisplayName: stored.DisplayName}, role)
	m.state = StateAuthenticated
	m.log.Debug("session restored", "user_id", stored.ID, "role", role.String())
}

func (m *Manager) discardStored(ctx context.Context, reason string, cause error) {
	m.log.Warn(reason+", clearing it", "error", cause)
	if err := m.storage.Remove(ctx, storage.KeySession); err != nil {
		m.log.Error("failed to clear stored session", "error", err)
	}
}

// Login authenticates against the backend. Bad credentials and unreachable
// backends both end Unauthenticated with an auth error, and any session that
// was signed in before the attempt is dropped from storage too.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	if err := m.validate.Struct(loginForm{Username: username, Password: password}); err != nil {
		verr := domain.ValidationError(err, "username and password are required")
		m.update(func() { m.err = verr })
		return verr
	}

	var attempt uint64
	m.update(func() {
		m.attempt++
		attempt = m.attempt
		m.state = StateAuthenticating
		m.err = nil
	})

	resp, err := m.backend.Login(ctx, api.Credentials{Username: username, Password: password})
	var session domain.Session
	if err == nil {
		session, err = sessionFrom(resp)
	}
	if err != nil {
		lerr := loginError(err)
		m.log.Info("login failed", "username", username, "error", err)
		m.update(func() {
			if m.attempt != attempt {
				return
			}
			hadSession := m.session.Authenticated()
			m.state = StateUnauthenticated
			m.session = domain.Unauthenticated
			m.err = lerr
			if hadSession {
				if rerr := m.storage.Remove(ctx, storage.KeySession); rerr != nil {
					m.log.Error("failed to clear stored session", "error", rerr)
				}
			}
		})
		return lerr
	}

	var perr error
	m.update(func() {
		if m.attempt != attempt {
			return
		}
		m.state = StateAuthenticated
		m.session = session
		perr = m.persistLocked(ctx)
		m.err = perr
	})
	m.log.Info("login succeeded", "user_id", session.Identity.ID, "role", session.Role.String())
	return perr
}

func sessionFrom(resp *api.LoginResponse) (domain.Session, error) {
	if resp.ID == 0 {
		return domain.Unauthenticated, errors.New("login response carries no user id")
	}
	role, err := domain.ParseRole(resp.Role)
	if err != nil {
		return domain.Unauthenticated, err
	}
	return domain.NewSession(domain.Identity{ID: resp.ID, DisplayName: resp.Username}, role), nil
}

func loginError(err error) error {
	msg := api.Message(err)
	if msg == "" {
		msg = "login failed"
	}
	if domain.IsKind(err, domain.KindAuth) {
		var de *domain.Error
		errors.As(err, &de)
		return domain.AuthError(de.Err, "%s", msg)
	}
	return domain.AuthError(err, "%s", msg)
}

func (m *Manager) persistLocked(ctx context.Context) error {
	payload, err := json.Marshal(persistedSession{
		ID:          m.session.Identity.ID,
		DisplayName: m.session.Identity.DisplayName,
		Role:        m.session.Role.String(),
	})
	if err != nil {
		return domain.PersistenceError(err, "failed to encode session")
	}
	if err := m.storage.Set(ctx, storage.KeySession, string(payload)); err != nil {
		m.log.Error("failed to persist session", "error", err)
		return err
	}
	return nil
}

// Register creates an account. It never signs the user in.
func (m *Manager) Register(ctx context.Context, p Profile) error {
	if err := m.validate.Struct(p); err != nil {
		verr := domain.ValidationError(err, "invalid registration form")
		m.update(func() { m.err = verr })
		return verr
	}
	role := domain.RoleViewer
	if p.Role != "" {
		r, err := domain.ParseRoleLabel(p.Role)
		if err != nil {
			verr := domain.ValidationError(err, "invalid registration form")
			m.update(func() { m.err = verr })
			return verr
		}
		role = r
	}

	err := m.backend.Register(ctx, api.RegisterRequest{
		Name:     p.Name,
		Surname:  p.Surname,
		Email:    p.Email,
		Password: p.Password,
		Role:     role.Label(),
	})
	if err != nil {
		m.log.Info("registration failed", "email", p.Email, "error", err)
		m.update(func() { m.err = err })
		return err
	}
	m.log.Info("user registered", "email", p.Email, "role", role.String())
	return nil
}

// Logout clears the session in memory and in storage. The cart is not touched.
func (m *Manager) Logout(ctx context.Context) error {
	var err error
	m.update(func() {
		m.attempt++
		m.state = StateUnauthenticated
		m.session = domain.Unauthenticated
		m.err = nil
		if rerr := m.storage.Remove(ctx, storage.KeySession); rerr != nil {
			m.log.Error("failed to clear stored session", "error", rerr)
			err = rerr
			m.err = rerr
		}
	})
	return err
}

func (m *Manager) ClearError() {
	m.update(func() { m.err = nil })
}

func (m *Manager) update(fn func()) {
	m.mu.Lock()
	fn()
	snap := Snapshot{State: m.state, Session: m.session, Err: m.err}
	m.mu.Unlock()
	m.hub.Publish(snap)
}

func (m *Manager) Session() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *Manager) IsAdmin() bool    { return m.Session().Role == domain.RoleAdmin }
func (m *Manager) IsOperator() bool { return m.Session().Role == domain.RoleOperator }
func (m *Manager) IsViewer() bool   { return m.Session().Role == domain.RoleViewer }

func (m *Manager) Subscribe(fn func(Snapshot)) func() {
	return m.hub.Subscribe(fn)
}
