package auth

import (
	"net/http"
	"strings"
)

// Role is the back-office role carried in the token.
type Role string

const (
	// RoleViewer reads registers, movements and documents.
	RoleViewer Role = "viewer"
	// RoleCashier runs the register day and issues documents.
	RoleCashier Role = "cashier"
	// RoleManager also exports register statements.
	RoleManager Role = "manager"
)

var roleRanks = map[Role]int{
	RoleViewer:  1,
	RoleCashier: 2,
	RoleManager: 3,
}

// ParseRole accepts a known role name, ignoring case and surrounding space.
func ParseRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := roleRanks[role]; !ok {
		return "", false
	}
	return role, true
}

// Satisfies reports whether r is granted everything required grants.
func (r Role) Satisfies(required Role) bool {
	rank, ok := roleRanks[r]
	return ok && rank >= roleRanks[required]
}

// routeRule grants access to requests whose path starts with prefix and,
// when set, contains marker. An empty methods list matches any method.
type routeRule struct {
	prefix  string
	marker  string
	methods []string
	role    Role
}

func (rule routeRule) matches(r *http.Request) bool {
	if !strings.HasPrefix(r.URL.Path, rule.prefix) {
		return false
	}
	if rule.marker != "" && !strings.Contains(r.URL.Path, rule.marker) {
		return false
	}
	if len(rule.methods) == 0 {
		return true
	}
	for _, method := range rule.methods {
		if r.Method == method {
			return true
		}
	}
	return false
}

var readMethods = []string{http.MethodGet, http.MethodHead, http.MethodOptions}

// Rules are checked in order; the first match wins.
var backOfficeRules = []routeRule{
	{prefix: "/api/v1/cash/registers/", marker: "/export.", role: RoleManager},
	{prefix: "/api/v1/cash/", methods: readMethods, role: RoleViewer},
	{prefix: "/api/v1/cash/", role: RoleCashier},
	{prefix: "/api/v1/documents/", methods: readMethods, role: RoleViewer},
	{prefix: "/api/v1/documents/", role: RoleCashier},
	{prefix: "/api/", methods: readMethods, role: RoleViewer},
	{prefix: "/api/", role: RoleManager},
}

// Policy determines required roles by request.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
	rules          []routeRule
}

// NewDefaultPolicy builds the back-office policy with exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes, rules: backOfficeRules}
}

// IsExempt returns true when a request should skip auth/RBAC.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole resolves the role a request needs. Paths outside the API
// need none.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	for _, rule := range p.rules {
		if rule.matches(r) {
			return rule.role, true
		}
	}
	return "", false
}
