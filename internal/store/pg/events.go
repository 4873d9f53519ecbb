package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"voluntra.org/internal/events"
	"voluntra.org/internal/ids"
)

var _ events.Service = (*Store)(nil)

const eventColumns = `id, org_id, title, location, starts_at, capacity, published, created_by, created_at, updated_at`

func scanEvent(scan func(...any) error) (events.Event, error) {
	var ev events.Event
	err := scan(&ev.ID, &ev.OrganizationID, &ev.Title, &ev.Location, &ev.StartsAt,
		&ev.Capacity, &ev.Published, &ev.CreatedBy, &ev.CreatedAt, &ev.UpdatedAt)
	return ev, err
}

func (s *Store) Create(ctx context.Context, orgID, createdBy string, in events.Input) (events.Event, error) {
	if strings.TrimSpace(orgID) == "" {
		return events.Event{}, events.ErrInvalidInput
	}
	if strings.TrimSpace(in.Title) == "" || in.StartsAt.IsZero() || in.Capacity < 0 {
		return events.Event{}, events.ErrInvalidInput
	}

	id := ids.New()
	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx, `
		insert into events (id, org_id, title, location, starts_at, capacity, created_by, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		returning `+eventColumns,
		id, orgID, strings.TrimSpace(in.Title), strings.TrimSpace(in.Location),
		in.StartsAt.UTC(), in.Capacity, createdBy, now)
	return scanEvent(row.Scan)
}

func (s *Store) Get(ctx context.Context, id string) (events.Event, error) {
	row := s.db.QueryRowContext(ctx, `select `+eventColumns+` from events where id = $1`, id)
	ev, err := scanEvent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return events.Event{}, events.ErrNotFound
	}
	return ev, err
}

func (s *Store) List(ctx context.Context, orgID string) ([]events.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+eventColumns+` from events where org_id = $1 order by starts_at`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		ev, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) Update(ctx context.Context, id string, in events.Input) (events.Event, error) {
	if strings.TrimSpace(in.Title) == "" || in.StartsAt.IsZero() || in.Capacity < 0 {
		return events.Event{}, events.ErrInvalidInput
	}
	row := s.db.QueryRowContext(ctx, `
		update events
		set title = $2, location = $3, starts_at = $4, capacity = $5, updated_at = now()
		where id = $1
		returning `+eventColumns,
		id, strings.TrimSpace(in.Title), strings.TrimSpace(in.Location), in.StartsAt.UTC(), in.Capacity)
	ev, err := scanEvent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return events.Event{}, events.ErrNotFound
	}
	return ev, err
}

func (s *Store) SetPublished(ctx context.Context, id string, published bool) (events.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		update events set published = $2, updated_at = now()
		where id = $1
		returning `+eventColumns, id, published)
	ev, err := scanEvent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return events.Event{}, events.ErrNotFound
	}
	return ev, err
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from events where id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return events.ErrNotFound
	}
	return nil
}

func (s *Store) OwnerOrg(ctx context.Context, id string) (string, error) {
	var orgID string
	err := s.db.QueryRowContext(ctx, `select org_id from events where id = $1`, id).Scan(&orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", events.ErrNotFound
	}
	return orgID, err
}
