package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	auditdomain "github.com/smallbiznis/matchhub/internal/audit/domain"
	"github.com/smallbiznis/matchhub/internal/config"
	profiledomain "github.com/smallbiznis/matchhub/internal/profile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed model.conf
var modelText string

const (
	ObjectUser     = "user"
	ObjectLedger   = "ledger"
	ObjectAuditLog = "audit_log"
)

const (
	ActionUserBan    = "user.ban"
	ActionUserUnban  = "user.unban"
	ActionUserDelete = "user.delete"

	ActionLedgerView = "ledger.view"

	ActionAuditLogView = "audit_log.view"
)

type Params struct {
	fx.In

	Cfg      config.Config
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
	admins   map[string]struct{}
}

// NewEnforcer builds an in-memory enforcer; role links are derived from the
// users table on every check, so nothing needs to persist.
func NewEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	admins := make(map[string]struct{}, len(p.Cfg.AdminExternalIDs))
	for _, id := range p.Cfg.AdminExternalIDs {
		if id = strings.TrimSpace(id); id != "" {
			admins[id] = struct{}{}
		}
	}
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
		admins:   admins,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, user profiledomain.User, object string, action string) error {
	if user.ID <= 0 {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}
	if user.IsBanned {
		s.auditDenied(ctx, user, object, action)
		return ErrForbidden
	}

	subject := fmt.Sprintf("user:%d", user.ID)
	if err := s.ensureGrouping(subject, s.roleFor(user)); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, user, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditGranted(ctx, user, object, action)
	}
	return nil
}

func (s *ServiceImpl) roleFor(user profiledomain.User) string {
	if _, ok := s.admins[user.ExternalID]; ok {
		return "role:" + profiledomain.RoleAdmin
	}
	role := strings.ToLower(strings.TrimSpace(user.Role))
	if role == "" {
		role = profiledomain.RoleUser
	}
	return "role:" + role
}

// ensureGrouping keeps exactly one role link per subject, replacing a stale
// one when the stored role changed.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, user profiledomain.User, object string, action string) {
	s.log.Warn("authorization denied",
		zap.Int64("user_id", user.ID),
		zap.Bool("banned", user.IsBanned),
		zap.String("object", object),
		zap.String("action", action),
	)
	s.audit(ctx, user, "authorization.denied", object, action)
}

func (s *ServiceImpl) auditGranted(ctx context.Context, user profiledomain.User, object string, action string) {
	s.audit(ctx, user, "authorization.granted", object, action)
}

func (s *ServiceImpl) audit(ctx context.Context, user profiledomain.User, event string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	actorID := user.ID
	_ = s.auditSvc.AuditLog(ctx, &actorID, event, "authorization", object, map[string]any{
		"object":  object,
		"action":  action,
		"subject": fmt.Sprintf("user:%d", user.ID),
	})
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionUserBan, ActionUserUnban, ActionUserDelete:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:admin", ObjectUser, ActionUserBan},
		{"role:admin", ObjectUser, ActionUserUnban},
		{"role:admin", ObjectUser, ActionUserDelete},
		{"role:admin", ObjectLedger, ActionLedgerView},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
