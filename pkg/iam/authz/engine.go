package authz

import (
	"slices"
	"time"

	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

// Subject is everything the engine needs to know about a caller.
type Subject struct {
	Roles       []SystemRole
	CustomRoles []Role
	Permissions []Permission
}

// Request is a single access question.
type Request struct {
	ResourceType   ResourceType
	PermissionType PermissionType
	ResourceID     string
}

// Rule is one step of the evaluation. Rules run in order; the first rule
// that returns true allows the request.
type Rule struct {
	Name  string
	Allow func(s Subject, r Request, now time.Time) bool
}

// DefaultRules is the evaluation order: direct grants, custom roles,
// super admin, then admin for everything except Delete.
var DefaultRules = []Rule{
	{
		Name: "direct_permission",
		Allow: func(s Subject, r Request, now time.Time) bool {
			return AnyMatches(s.Permissions, r.ResourceType, r.PermissionType, r.ResourceID, now)
		},
	},
	{
		Name: "custom_role",
		Allow: func(s Subject, r Request, now time.Time) bool {
			for _, role := range s.CustomRoles {
				if role.Grants(r.ResourceType, r.PermissionType, r.ResourceID, now) {
					return true
				}
			}
			return false
		},
	},
	{
		Name: "super_admin",
		Allow: func(s Subject, _ Request, _ time.Time) bool {
			return slices.Contains(s.Roles, RoleSuperAdmin)
		},
	},
	{
		Name: "admin",
		Allow: func(s Subject, r Request, _ time.Time) bool {
			return slices.Contains(s.Roles, RoleAdmin) && r.PermissionType != PermDelete
		},
	},
}

// Decision is the outcome of an evaluation. Rule is empty on deny.
type Decision struct {
	Allowed bool
	Rule    string
}

// Engine evaluates requests against an ordered rule list.
type Engine struct {
	rules []Rule
	clock kernel.Clock
}

// NewEngine returns an engine running DefaultRules.
func NewEngine(clock kernel.Clock) *Engine {
	return NewEngineWithRules(clock, DefaultRules)
}

func NewEngineWithRules(clock kernel.Clock, rules []Rule) *Engine {
	if clock == nil {
		clock = kernel.SystemClock
	}
	return &Engine{rules: slices.Clone(rules), clock: clock}
}

// Evaluate runs the rules in order and denies when none allows.
func (e *Engine) Evaluate(s Subject, r Request) Decision {
	now := e.clock.Now()
	for _, rule := range e.rules {
		if rule.Allow(s, r, now) {
			return Decision{Allowed: true, Rule: rule.Name}
		}
	}
	return Decision{}
}

// Allowed is shorthand for Evaluate(s, r).Allowed.
func (e *Engine) Allowed(s Subject, r Request) bool {
	return e.Evaluate(s, r).Allowed
}
