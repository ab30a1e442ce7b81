// Package guard decides whether a session may reach a route.
package guard

import (
	"net/http"
	"strings"

	"github.com/fjod/storefront/internal/domain"
)

type Decision int

const (
	Allow Decision = iota
	RedirectToLogin
	RedirectToForbidden
)

func (d Decision) String() string {
	switch d {
	case RedirectToLogin:
		return "redirect-to-login"
	case RedirectToForbidden:
		return "redirect-to-forbidden"
	default:
		return "allow"
	}
}

// Authorize is pure: no session means login, a role outside required means
// forbidden, an empty required list admits any authenticated session.
func Authorize(session domain.Session, required ...domain.Role) Decision {
	if !session.Authenticated() {
		return RedirectToLogin
	}
	if len(required) == 0 || session.HasRole(required...) {
		return Allow
	}
	return RedirectToForbidden
}

// Err converts a non-Allow decision to the matching error kind.
func (d Decision) Err(path string) error {
	switch d {
	case RedirectToLogin:
		return domain.AuthError(domain.ErrLoginRequired, "%s", path)
	case RedirectToForbidden:
		return domain.AuthorizationError(domain.ErrForbidden, "%s", path)
	default:
		return nil
	}
}

type Rule struct {
	Prefix string
	Roles  []domain.Role // empty means any authenticated session
}

// Routes is an ordered rule table; the longest matching prefix wins and
// unmatched paths are public.
type Routes []Rule

func DefaultRoutes() Routes {
	return Routes{
		{Prefix: "/admin/users", Roles: []domain.Role{domain.RoleAdmin}},
		{Prefix: "/admin/orders", Roles: []domain.Role{domain.RoleAdmin}},
		{Prefix: "/admin", Roles: []domain.Role{domain.RoleAdmin, domain.RoleOperator}},
		{Prefix: "/orders/mine"},
	}
}

func (r Routes) match(path string) (Rule, bool) {
	var best Rule
	found := false
	for _, rule := range r {
		if !hasPathPrefix(path, rule.Prefix) {
			continue
		}
		if !found || len(rule.Prefix) > len(best.Prefix) {
			best = rule
			found = true
		}
	}
	return best, found
}

func hasPathPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/' || strings.HasSuffix(prefix, "/")
}

func (r Routes) Check(path string, session domain.Session) Decision {
	rule, ok := r.match(path)
	if !ok {
		return Allow
	}
	return Authorize(session, rule.Roles...)
}

const (
	LoginPath     = "/login"
	ForbiddenPath = "/forbidden"
)

// SessionSource yields the session for a request.
type SessionSource func(r *http.Request) domain.Session

// Middleware admits requests whose session satisfies roles and redirects the
// rest to the login or forbidden page.
func Middleware(source SessionSource, roles ...domain.Role) func(http.Handler) http.Handler {
	return middleware(source, func(r *http.Request, s domain.Session) Decision {
		return Authorize(s, roles...)
	})
}

// Middleware applies the route table to every request.
func (r Routes) Middleware(source SessionSource) func(http.Handler) http.Handler {
	return middleware(source, func(req *http.Request, s domain.Session) Decision {
		return r.Check(req.URL.Path, s)
	})
}

func middleware(source SessionSource, decide func(*http.Request, domain.Session) Decision) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch decide(r, source(r)) {
			case RedirectToLogin:
				http.Redirect(w, r, LoginPath, http.StatusSeeOther)
			case RedirectToForbidden:
				http.Redirect(w, r, ForbiddenPath, http.StatusSeeOther)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
