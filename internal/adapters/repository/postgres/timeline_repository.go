package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ogurasousui/engagement-automation/internal/core/timeline"
	pgdb "github.com/ogurasousui/engagement-automation/internal/platform/db/postgres"
)

const timelineColumns = `id, employee_id, template_id, title, content, type, is_visible, metadata, automation_key, created_at`

// TimelineRepository はタイムライン項目の PostgreSQL 実装です。
type TimelineRepository struct {
	pool pgdb.Queryer
}

// NewTimelineRepository は TimelineRepository を生成します。
func NewTimelineRepository(pool pgdb.Queryer) *TimelineRepository {
	return &TimelineRepository{pool: pool}
}

// CreateOnce は automation_key が未登録の場合だけ項目を追加します。
// 登録済みの場合は既存の項目と false を返し、エラーにはしません。
func (r *TimelineRepository) CreateOnce(ctx context.Context, item *timeline.Item) (*timeline.Item, bool, error) {
	if item == nil || item.AutomationKey == nil || *item.AutomationKey == "" {
		return nil, false, timeline.ErrMissingAutomationKey
	}

	metadata, err := json.Marshal(item.Metadata)
	if err != nil {
		return nil, false, fmt.Errorf("timeline: encode metadata: %w", err)
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO timeline_items (employee_id, template_id, title, content, type, is_visible, metadata, automation_key)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (automation_key) WHERE automation_key IS NOT NULL DO NOTHING
        RETURNING `+timelineColumns+`
    `,
		item.EmployeeID,
		item.TemplateID,
		item.Title,
		item.Content,
		string(item.Type),
		item.IsVisible,
		metadata,
		*item.AutomationKey,
	)

	created, err := scanTimelineItem(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, translateTimelinePgError(err)
	}

	existing, err := r.findByAutomationKey(ctx, *item.AutomationKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// ListByEmployee は社員のタイムライン項目を新しい順に limit 件返します。
func (r *TimelineRepository) ListByEmployee(ctx context.Context, employeeID string, limit int) ([]*timeline.Item, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, `
        SELECT `+timelineColumns+`
          FROM timeline_items
         WHERE employee_id = $1
         ORDER BY created_at DESC, id DESC
         LIMIT $2
    `, employeeID, limit)
	if err != nil {
		return nil, translateTimelinePgError(err)
	}
	defer rows.Close()

	items := make([]*timeline.Item, 0, limit)
	for rows.Next() {
		item, err := scanTimelineItem(rows)
		if err != nil {
			return nil, translateTimelinePgError(err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, translateTimelinePgError(err)
	}

	return items, nil
}

func (r *TimelineRepository) findByAutomationKey(ctx context.Context, key string) (*timeline.Item, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT `+timelineColumns+`
          FROM timeline_items
         WHERE automation_key = $1
         LIMIT 1
    `, key)

	found, err := scanTimelineItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// 競合した行が直後に削除された場合。重複として扱う。
		return nil, nil
	}
	if err != nil {
		return nil, translateTimelinePgError(err)
	}
	return found, nil
}

func scanTimelineItem(row pgx.Row) (*timeline.Item, error) {
	var (
		item          timeline.Item
		templateID    sql.NullString
		itemType      string
		metadata      []byte
		automationKey sql.NullString
	)

	if err := row.Scan(
		&item.ID,
		&item.EmployeeID,
		&templateID,
		&item.Title,
		&item.Content,
		&itemType,
		&item.IsVisible,
		&metadata,
		&automationKey,
		&item.CreatedAt,
	); err != nil {
		return nil, err
	}

	item.Type = timeline.Type(itemType)
	if templateID.Valid {
		id := templateID.String
		item.TemplateID = &id
	}
	if automationKey.Valid {
		key := automationKey.String
		item.AutomationKey = &key
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &item.Metadata); err != nil {
			return nil, fmt.Errorf("timeline: decode metadata: %w", err)
		}
	}

	return &item, nil
}

func translateTimelinePgError(err error) error {
	pgErr, ok := asPgError(err)
	if !ok || pgErr.Code != foreignKeyViolationCode {
		return err
	}

	switch pgErr.ConstraintName {
	case "timeline_items_employee_id_fkey":
		return timeline.ErrEmployeeNotFound
	case "timeline_items_template_id_fkey":
		return timeline.ErrTemplateNotFound
	default:
		return err
	}
}
