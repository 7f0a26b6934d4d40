package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// DBSink stores events in the role_change_events table created by
// store.Migrate
type DBSink struct {
	db *sql.DB
}

// NewDBSink creates a database-backed sink
func NewDBSink(db *sql.DB) (*DBSink, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBSink{db: db}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// Append implements Sink
func (d *DBSink) Append(ctx context.Context, event *RoleChangeEvent) error {
	prepare(ctx, event)

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO role_change_events (
			id, scope, action,
			organization_id, project_id, target_actor_id,
			old_role, new_role, performed_by,
			request_id, occurred_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9,
			$10, $11
		)
	`,
		event.ID, string(event.Scope), string(event.Action),
		event.OrganizationID, nullInt64(event.ProjectID), event.TargetActorID,
		nullString(event.OldRole), nullString(event.NewRole), event.PerformedBy,
		nullString(event.RequestID), event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert role change event: %w", err)
	}
	return nil
}

// List implements Reader
func (d *DBSink) List(ctx context.Context, filter Filter) ([]*RoleChangeEvent, error) {
	query := `
		SELECT
			id, scope, action,
			organization_id, project_id, target_actor_id,
			old_role, new_role, performed_by,
			request_id, occurred_at
		FROM role_change_events
		WHERE organization_id = $1
	`
	args := []interface{}{filter.OrganizationID}
	argCount := 2

	if filter.ProjectID != nil {
		query += fmt.Sprintf(" AND project_id = $%d", argCount)
		args = append(args, *filter.ProjectID)
		argCount++
	}

	if filter.TargetActorID != nil {
		query += fmt.Sprintf(" AND target_actor_id = $%d", argCount)
		args = append(args, *filter.TargetActorID)
		argCount++
	}

	if filter.Since != nil {
		query += fmt.Sprintf(" AND occurred_at >= $%d", argCount)
		args = append(args, *filter.Since)
		argCount++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", argCount)
	args = append(args, filter.limit())

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query role change events: %w", err)
	}
	defer rows.Close()

	var events []*RoleChangeEvent
	for rows.Next() {
		var (
			e                           RoleChangeEvent
			scope, action               string
			projectID                   sql.NullInt64
			oldRole, newRole, requestID sql.NullString
		)
		err := rows.Scan(
			&e.ID, &scope, &action,
			&e.OrganizationID, &projectID, &e.TargetActorID,
			&oldRole, &newRole, &e.PerformedBy,
			&requestID, &e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role change event: %w", err)
		}
		e.Scope = Scope(scope)
		e.Action = Action(action)
		if projectID.Valid {
			id := projectID.Int64
			e.ProjectID = &id
		}
		e.OldRole = oldRole.String
		e.NewRole = newRole.String
		e.RequestID = requestID.String
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate role change events: %w", err)
	}
	return events, nil
}
