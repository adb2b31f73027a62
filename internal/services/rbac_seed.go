package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitewise/platform/internal/domain/rbac"
)

type seedPermission struct {
	resource    string
	action      string
	description string
}

type seedTemplate struct {
	name        string
	category    string
	permissions []string // "resource:action" pairs from the catalog below
}

var defaultCatalog = []struct {
	category    string
	permissions []seedPermission
}{
	{"projects", []seedPermission{
		{"projects", "create", "Create new projects"},
		{"projects", "read", "View project details"},
		{"projects", "update", "Update project details"},
		{"projects", "delete", "Archive projects"},
		{"projects", "list", "List company projects"},
	}},
	{"tasks", []seedPermission{
		{"tasks", "create", "Create tasks"},
		{"tasks", "read", "View tasks"},
		{"tasks", "update", "Update task status and details"},
		{"tasks", "delete", "Delete tasks"},
		{"tasks", "assign", "Assign tasks to team members"},
	}},
	{"documents", []seedPermission{
		{"documents", "upload", "Upload documents and drawings"},
		{"documents", "read", "View documents"},
		{"documents", "approve", "Approve document revisions"},
		{"documents", "delete", "Delete documents"},
	}},
	{"team", []seedPermission{
		{"team", "invite", "Invite users to the company"},
		{"team", "read", "View team members"},
		{"team", "remove", "Remove users from the company"},
	}},
	{"roles", []seedPermission{
		{"roles", "create", "Create roles"},
		{"roles", "read", "View roles and their permissions"},
		{"roles", "update", "Update roles"},
		{"roles", "delete", "Delete roles"},
		{"roles", "grant", "Grant and revoke role permissions"},
	}},
	{"reports", []seedPermission{
		{"reports", "read", "View reports"},
		{"reports", "export", "Export reports"},
	}},
	{"audit", []seedPermission{
		{"audit", "read", "View the audit log"},
	}},
	{"companies", []seedPermission{
		{"companies", "create", "Create companies"},
		{"companies", "read", "View company settings"},
		{"companies", "update", "Update company settings"},
	}},
	{"catalog", []seedPermission{
		{"catalog", "manage", "Manage the permission catalog and template library"},
	}},
}

var defaultTemplates = []seedTemplate{
	{"Project Manager", "management", []string{
		"projects:create", "projects:read", "projects:update", "projects:list",
		"tasks:create", "tasks:read", "tasks:update", "tasks:delete", "tasks:assign",
		"documents:upload", "documents:read", "documents:approve",
		"team:invite", "team:read",
		"reports:read", "reports:export",
	}},
	{"Site Supervisor", "field", []string{
		"projects:read", "projects:list",
		"tasks:create", "tasks:read", "tasks:update", "tasks:assign",
		"documents:upload", "documents:read",
		"team:read",
		"reports:read",
	}},
	{"Field Worker", "field", []string{
		"projects:read",
		"tasks:read", "tasks:update",
		"documents:read", "documents:upload",
	}},
	{"Subcontractor", "external", []string{
		"projects:read",
		"tasks:read",
		"documents:read",
	}},
	{"Company Admin", "management", []string{
		"projects:create", "projects:read", "projects:update", "projects:delete", "projects:list",
		"team:invite", "team:read", "team:remove",
		"roles:create", "roles:read", "roles:update", "roles:delete", "roles:grant",
		"reports:read", "reports:export",
		"audit:read",
		"companies:read", "companies:update",
	}},
}

// SeedDefaultCatalog inserts the built-in permission catalog and role
// template library. Existing entries are kept as-is, so running it on
// every startup is safe.
func (s *RBACService) SeedDefaultCatalog(ctx context.Context) error {
	byPair := make(map[string]uuid.UUID)

	for _, group := range defaultCatalog {
		for _, sp := range group.permissions {
			pair := sp.resource + ":" + sp.action

			existing, err := s.store.Permissions().GetByResourceAction(ctx, sp.resource, sp.action)
			if err == nil {
				byPair[pair] = existing.ID
				continue
			}
			if !errors.Is(err, rbac.ErrPermissionNotFound) {
				return fmt.Errorf("failed to check permission %s: %w", pair, err)
			}

			permission := &rbac.Permission{
				Name:        pair,
				Category:    group.category,
				Resource:    sp.resource,
				Action:      sp.action,
				Description: sp.description,
			}
			if err := s.CreatePermission(ctx, permission); err != nil {
				return fmt.Errorf("failed to seed permission %s: %w", pair, err)
			}
			byPair[pair] = permission.ID
		}
	}

	existing, err := s.store.Templates().List(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list role templates: %w", err)
	}
	byName := make(map[string]bool, len(existing))
	for _, tmpl := range existing {
		byName[tmpl.Name] = true
	}

	for _, st := range defaultTemplates {
		if byName[st.name] {
			continue
		}

		permissionIDs := make([]uuid.UUID, 0, len(st.permissions))
		for _, pair := range st.permissions {
			id, ok := byPair[pair]
			if !ok {
				return fmt.Errorf("template %s references unknown permission %s", st.name, pair)
			}
			permissionIDs = append(permissionIDs, id)
		}

		template := &rbac.RoleTemplate{
			Name:          st.name,
			Category:      st.category,
			PermissionIDs: permissionIDs,
		}
		if err := s.CreateRoleTemplate(ctx, template); err != nil {
			return fmt.Errorf("failed to seed template %s: %w", st.name, err)
		}
	}

	s.logger.Info("default catalog seeded",
		zap.Int("permissions", len(byPair)),
		zap.Int("templates", len(defaultTemplates)))
	return nil
}
