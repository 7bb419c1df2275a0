package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"marketplace/internal/auth"
	"marketplace/internal/ids"
)

func (s *Store) MembershipsOf(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.members[userID]), nil
}

func (s *Store) GrantsOf(ctx context.Context, roleID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.grants[roleID]), nil
}

func (s *Store) CreateRole(ctx context.Context, role *auth.Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := strings.TrimSpace(role.Name)
	if name == "" {
		return fmt.Errorf("%w: role name is required", auth.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.roleByName[name]; taken {
		return auth.ErrConflict
	}
	if role.ID == "" {
		role.ID = ids.New()
	}
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now().UTC()
	}
	role.Name = name
	cp := *role
	s.roles[role.ID] = &cp
	s.roleByName[name] = role.ID
	return nil
}

func (s *Store) FindRoleByName(ctx context.Context, name string) (*auth.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.roleByName[strings.TrimSpace(name)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *s.roles[id]
	return &cp, nil
}

func (s *Store) EnsurePermissions(ctx context.Context, perms []auth.Permission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range perms {
		code := strings.TrimSpace(p.Code)
		if code == "" {
			return fmt.Errorf("%w: permission code is required", auth.ErrInvalidInput)
		}
		if _, ok := s.permissions[code]; ok {
			continue
		}
		if p.ID == "" {
			p.ID = ids.New()
		}
		p.Code = code
		s.permissions[code] = p
	}
	return nil
}

func (s *Store) GrantPermission(ctx context.Context, roleID, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return auth.ErrNotFound
	}
	if _, ok := s.permissions[code]; !ok {
		return auth.ErrNotFound
	}
	addEdge(s.grants, roleID, code)
	return nil
}

func (s *Store) AssignRole(ctx context.Context, userID, roleID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return auth.ErrNotFound
	}
	if _, ok := s.roles[roleID]; !ok {
		return auth.ErrNotFound
	}
	addEdge(s.members, userID, roleID)
	return nil
}

func addEdge(edges map[string]map[string]struct{}, from, to string) {
	set, ok := edges[from]
	if !ok {
		set = make(map[string]struct{})
		edges[from] = set
	}
	set[to] = struct{}{}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
