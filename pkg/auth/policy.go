package auth

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"go.uber.org/zap"

	"github.com/yourorg/fire-closure/pkg/lifecycle"
)

// Roles
const (
	RoleAdmin     = "admin"
	RoleResponder = "responder"
)

// Objects guarded by the policy
const (
	ObjectCierre           = "cierre"
	ObjectCierreExtinguido = "cierre_extinguido"
	ObjectFormulario       = "formulario"
	ObjectCatalogo         = "catalogo"
	ObjectPlantilla        = "plantilla"
)

// Actions guarded by the policy
const (
	ActionRead     = "read"
	ActionEdit     = "edit"
	ActionFinalize = "finalize"
	ActionReopen   = "reopen"
	ActionManage   = "manage"
)

const policyModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && keyMatch(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

var defaultPolicies = [][]string{
	{RoleAdmin, "*", "*"},
	{RoleResponder, ObjectCierre, ActionRead},
	{RoleResponder, ObjectCierre, ActionEdit},
	{RoleResponder, ObjectCierre, ActionFinalize},
	{RoleResponder, ObjectCierreExtinguido, ActionRead},
	{RoleResponder, ObjectFormulario, ActionRead},
	{RoleResponder, ObjectFormulario, ActionEdit},
	{RoleResponder, ObjectFormulario, ActionFinalize},
	{RoleResponder, ObjectCatalogo, ActionRead},
}

// Policy decides which role may perform which action on closure objects
type Policy struct {
	enforcer *casbin.Enforcer
	logger   *zap.Logger
}

// NewPolicy builds the closure permission policy
func NewPolicy(logger *zap.Logger) (*Policy, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy model: %w", err)
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcer: %w", err)
	}

	for _, p := range defaultPolicies {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, fmt.Errorf("failed to add policy %v: %w", p, err)
		}
	}

	return &Policy{enforcer: e, logger: logger}, nil
}

// RoleOf maps a user to its policy role
func RoleOf(u User) string {
	if u.IsAdmin {
		return RoleAdmin
	}
	return RoleResponder
}

// Allowed reports whether the user may perform action on object
func (p *Policy) Allowed(u User, object, action string) bool {
	ok, err := p.enforcer.Enforce(RoleOf(u), object, action)
	if err != nil {
		p.logger.Error("policy evaluation failed",
			zap.String("object", object),
			zap.String("action", action),
			zap.Error(err))
		return false
	}
	return ok
}

// CanEdit reports whether the user may modify an incident in state st.
// Extinguished incidents are guarded by the cierre_extinguido object; a nil
// policy falls back to the administrator flag.
func (p *Policy) CanEdit(u User, st lifecycle.State) error {
	if st != lifecycle.Extinguido {
		return nil
	}
	if p == nil {
		return lifecycle.CanEdit(st, u.IsAdmin)
	}
	if !p.Allowed(u, ObjectCierreExtinguido, ActionEdit) {
		return lifecycle.ErrLocked
	}
	return nil
}
