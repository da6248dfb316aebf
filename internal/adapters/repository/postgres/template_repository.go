package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ogurasousui/engagement-automation/internal/core/template"
	pgdb "github.com/ogurasousui/engagement-automation/internal/platform/db/postgres"
)

const templateColumns = `id, company_id, name, description, category, tags, is_active, created_at`

// TemplateRepository はテンプレートカタログの読み取り実装です。
type TemplateRepository struct {
	pool pgdb.Queryer
}

// NewTemplateRepository は TemplateRepository を生成します。
func NewTemplateRepository(pool pgdb.Queryer) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

// FindByID は ID でテンプレートを取得します。
func (r *TemplateRepository) FindByID(ctx context.Context, id string) (*template.Template, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT `+templateColumns+`
          FROM templates
         WHERE id = $1
         LIMIT 1
    `, id)

	found, err := scanTemplate(row)
	if err != nil {
		return nil, err
	}
	return found, nil
}

// ListByCompanyAndTag は companyID のテンプレートのうち tags に tag を含むものを作成順に返します。
func (r *TemplateRepository) ListByCompanyAndTag(ctx context.Context, companyID, tag string) ([]*template.Template, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, `
        SELECT `+templateColumns+`
          FROM templates
         WHERE company_id = $1
           AND $2 = ANY(tags)
         ORDER BY created_at, id
    `, companyID, tag)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := make([]*template.Template, 0)
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return templates, nil
}

func scanTemplate(row pgx.Row) (*template.Template, error) {
	var (
		tpl         template.Template
		description sql.NullString
		category    sql.NullString
	)

	if err := row.Scan(
		&tpl.ID,
		&tpl.CompanyID,
		&tpl.Name,
		&description,
		&category,
		&tpl.Tags,
		&tpl.IsActive,
		&tpl.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, template.ErrTemplateNotFound
		}
		return nil, err
	}

	if description.Valid {
		desc := description.String
		tpl.Description = &desc
	}
	tpl.Category = category.String
	if tpl.Tags == nil {
		tpl.Tags = []string{}
	}

	return &tpl, nil
}
