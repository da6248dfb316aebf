package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ogurasousui/engagement-automation/internal/core/event"
	pgdb "github.com/ogurasousui/engagement-automation/internal/platform/db/postgres"
)

const eventColumns = `id, company_id, employee_id, name, description, event_date, is_recurring,
               reminder_days_before, template_id, is_active, created_at, updated_at`

// EventRepository はカスタムイベントの PostgreSQL 実装です。
type EventRepository struct {
	pool pgdb.Queryer
}

// NewEventRepository は EventRepository を生成します。
func NewEventRepository(pool pgdb.Queryer) *EventRepository {
	return &EventRepository{pool: pool}
}

// Create はイベントを登録します。
func (r *EventRepository) Create(ctx context.Context, ev *event.Event) (*event.Event, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO employee_events (company_id, employee_id, name, description, event_date, is_recurring,
                                     reminder_days_before, template_id, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING `+eventColumns+`
    `,
		ev.CompanyID,
		ev.EmployeeID,
		ev.Name,
		ev.Description,
		nullableDate(&ev.EventDate),
		ev.IsRecurring,
		ev.ReminderDaysBefore,
		ev.TemplateID,
		ev.IsActive,
		ev.CreatedAt,
		ev.UpdatedAt,
	)

	created, err := scanEvent(row)
	if err != nil {
		return nil, translateEventPgError(err)
	}
	return created, nil
}

// Update はイベントを更新します。論理削除も IsActive=false の更新として扱います。
func (r *EventRepository) Update(ctx context.Context, ev *event.Event) (*event.Event, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        UPDATE employee_events
           SET name = $1,
               description = $2,
               event_date = $3,
               is_recurring = $4,
               reminder_days_before = $5,
               template_id = $6,
               is_active = $7,
               updated_at = $8
         WHERE id = $9
        RETURNING `+eventColumns+`
    `,
		ev.Name,
		ev.Description,
		nullableDate(&ev.EventDate),
		ev.IsRecurring,
		ev.ReminderDaysBefore,
		ev.TemplateID,
		ev.IsActive,
		ev.UpdatedAt,
		ev.ID,
	)

	updated, err := scanEvent(row)
	if err != nil {
		return nil, translateEventPgError(err)
	}
	return updated, nil
}

// FindByID は ID でイベントを取得します。論理削除済みの行も返します。
func (r *EventRepository) FindByID(ctx context.Context, id string) (*event.Event, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT `+eventColumns+`
          FROM employee_events
         WHERE id = $1
         LIMIT 1
    `, id)

	found, err := scanEvent(row)
	if err != nil {
		return nil, translateEventPgError(err)
	}
	return found, nil
}

// ListByEmployee は社員の有効なイベントを event_date の降順で返します。
func (r *EventRepository) ListByEmployee(ctx context.Context, employeeID string) ([]*event.Event, error) {
	return r.list(ctx, `
        SELECT `+eventColumns+`
          FROM employee_events
         WHERE employee_id = $1 AND is_active
         ORDER BY event_date DESC, id
    `, employeeID)
}

// ListByCompany は会社の有効なイベントを event_date の降順で返します。
func (r *EventRepository) ListByCompany(ctx context.Context, companyID string) ([]*event.Event, error) {
	return r.list(ctx, `
        SELECT `+eventColumns+`
          FROM employee_events
         WHERE company_id = $1 AND is_active
         ORDER BY event_date DESC, id
    `, companyID)
}

// ListActive は全社の有効なイベントを返します。
func (r *EventRepository) ListActive(ctx context.Context) ([]*event.Event, error) {
	return r.list(ctx, `
        SELECT `+eventColumns+`
          FROM employee_events
         WHERE is_active
         ORDER BY company_id, id
    `)
}

func (r *EventRepository) list(ctx context.Context, query string, args ...any) ([]*event.Event, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, translateEventPgError(err)
	}
	defer rows.Close()

	events := make([]*event.Event, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, translateEventPgError(err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, translateEventPgError(err)
	}

	return events, nil
}

func scanEvent(row pgx.Row) (*event.Event, error) {
	var (
		ev          event.Event
		description sql.NullString
		eventDate   sql.NullTime
		templateID  sql.NullString
	)

	if err := row.Scan(
		&ev.ID,
		&ev.CompanyID,
		&ev.EmployeeID,
		&ev.Name,
		&description,
		&eventDate,
		&ev.IsRecurring,
		&ev.ReminderDaysBefore,
		&templateID,
		&ev.IsActive,
		&ev.CreatedAt,
		&ev.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, event.ErrEventNotFound
		}
		return nil, err
	}

	if description.Valid {
		desc := description.String
		ev.Description = &desc
	}
	if templateID.Valid {
		id := templateID.String
		ev.TemplateID = &id
	}
	if d := datePtr(eventDate); d != nil {
		ev.EventDate = *d
	}

	return &ev, nil
}

func translateEventPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return event.ErrEventNotFound
	}

	pgErr, ok := asPgError(err)
	if !ok {
		return err
	}

	switch pgErr.Code {
	case foreignKeyViolationCode:
		switch pgErr.ConstraintName {
		case "employee_events_employee_id_fkey":
			return event.ErrEmployeeNotFound
		case "employee_events_template_id_fkey":
			return event.ErrTemplateNotFound
		case "employee_events_company_id_fkey":
			return event.ErrInvalidCompanyID
		}
	case checkViolationCode:
		if pgErr.ConstraintName == "employee_events_reminder_days_before_check" {
			return event.ErrInvalidReminderDays
		}
	}

	return err
}
