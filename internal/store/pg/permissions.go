package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"voluntra.org/internal/auth"
	"voluntra.org/internal/permission"
)

var _ permission.Source = (*Store)(nil)

func (s *Store) Template(ctx context.Context, key string) (permission.Template, error) {
	row := s.db.QueryRowContext(ctx, `
		select key, module, default_min_role, description
		from permission_templates where key = $1`, key)

	var (
		t       permission.Template
		roleRaw string
	)
	if err := row.Scan(&t.Key, &t.Module, &roleRaw, &t.Description); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return permission.Template{}, fmt.Errorf("%w: %s", auth.ErrUnknownPermission, key)
		}
		return permission.Template{}, err
	}
	role, err := auth.ParseRole(roleRaw)
	if err != nil {
		return permission.Template{}, fmt.Errorf("template %s: %w", key, err)
	}
	t.DefaultMinRole = role
	return t, nil
}

func (s *Store) Override(ctx context.Context, orgID, key string) (permission.Override, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		select org_id, key, min_role
		from permission_overrides where org_id = $1 and key = $2`, orgID, key)

	var (
		o       permission.Override
		roleRaw string
	)
	if err := row.Scan(&o.OrganizationID, &o.Key, &roleRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return permission.Override{}, false, nil
		}
		return permission.Override{}, false, err
	}
	role, err := auth.ParseRole(roleRaw)
	if err != nil {
		return permission.Override{}, false, fmt.Errorf("override %s/%s: %w", orgID, key, err)
	}
	o.MinRole = role
	return o, true, nil
}

func (s *Store) Templates(ctx context.Context) ([]permission.Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		select key, module, default_min_role, description
		from permission_templates order by key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []permission.Template
	for rows.Next() {
		var (
			t       permission.Template
			roleRaw string
		)
		if err := rows.Scan(&t.Key, &t.Module, &roleRaw, &t.Description); err != nil {
			return nil, err
		}
		role, err := auth.ParseRole(roleRaw)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", t.Key, err)
		}
		t.DefaultMinRole = role
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (s *Store) Overrides(ctx context.Context, orgID string) ([]permission.Override, error) {
	rows, err := s.db.QueryContext(ctx, `
		select org_id, key, min_role
		from permission_overrides where org_id = $1 order by key`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []permission.Override
	for rows.Next() {
		var (
			o       permission.Override
			roleRaw string
		)
		if err := rows.Scan(&o.OrganizationID, &o.Key, &roleRaw); err != nil {
			return nil, err
		}
		role, err := auth.ParseRole(roleRaw)
		if err != nil {
			return nil, fmt.Errorf("override %s/%s: %w", o.OrganizationID, o.Key, err)
		}
		o.MinRole = role
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

func (s *Store) UpsertTemplate(ctx context.Context, t permission.Template) error {
	_, err := s.db.ExecContext(ctx, `
		insert into permission_templates (key, module, default_min_role, description)
		values ($1, $2, $3, $4)
		on conflict (key) do update
		set module = excluded.module,
		    default_min_role = excluded.default_min_role,
		    description = excluded.description,
		    updated_at = now()`,
		t.Key, t.Module, t.DefaultMinRole.String(), t.Description)
	return err
}

func (s *Store) UpsertOverride(ctx context.Context, o permission.Override) error {
	_, err := s.db.ExecContext(ctx, `
		insert into permission_overrides (org_id, key, min_role)
		values ($1, $2, $3)
		on conflict (org_id, key) do update
		set min_role = excluded.min_role, updated_at = now()`,
		o.OrganizationID, o.Key, o.MinRole.String())
	return err
}

func (s *Store) DeleteOverride(ctx context.Context, orgID, key string) error {
	_, err := s.db.ExecContext(ctx, `
		delete from permission_overrides where org_id = $1 and key = $2`, orgID, key)
	return err
}
