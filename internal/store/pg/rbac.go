package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"marketplace/internal/auth"
	"marketplace/internal/ids"
)

func (s *Store) MembershipsOf(ctx context.Context, userID string) ([]string, error) {
	return s.queryStrings(ctx, `
		select role_id from user_roles
		where user_id = $1
		order by role_id
	`, userID)
}

func (s *Store) GrantsOf(ctx context.Context, roleID string) ([]string, error) {
	return s.queryStrings(ctx, `
		select p.code
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.code
	`, roleID)
}

func (s *Store) CreateRole(ctx context.Context, role *auth.Role) error {
	name := strings.TrimSpace(role.Name)
	if name == "" {
		return fmt.Errorf("%w: role name is required", auth.ErrInvalidInput)
	}
	if role.ID == "" {
		role.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description)
		values ($1, $2, $3)
		returning created_at
	`, role.ID, name, role.Description).Scan(&role.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	role.Name = name
	return nil
}

func (s *Store) FindRoleByName(ctx context.Context, name string) (*auth.Role, error) {
	var role auth.Role
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, created_at
		from roles
		where name = $1
	`, strings.TrimSpace(name)).Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *Store) EnsurePermissions(ctx context.Context, perms []auth.Permission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range perms {
		code := strings.TrimSpace(p.Code)
		if code == "" {
			return fmt.Errorf("%w: permission code is required", auth.ErrInvalidInput)
		}
		if _, err := tx.ExecContext(ctx, `
			insert into permissions (id, code, description)
			values ($1, $2, $3)
			on conflict (code) do update set description = excluded.description
		`, ids.New(), code, p.Description); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GrantPermission(ctx context.Context, roleID, code string) error {
	res, err := s.db.ExecContext(ctx, `
		insert into role_permissions (role_id, permission_id)
		select $1, p.id from permissions p where p.code = $2
		on conflict (role_id, permission_id) do nothing
	`, roleID, code)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		// Either already granted or the code is unknown.
		var exists bool
		if err := s.db.QueryRowContext(ctx, `select exists(select 1 from permissions where code = $1)`, code).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: permission %s", auth.ErrNotFound, code)
		}
	}
	return nil
}

func (s *Store) AssignRole(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		on conflict (user_id, role_id) do nothing
	`, userID, roleID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
