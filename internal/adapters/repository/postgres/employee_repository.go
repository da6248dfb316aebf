package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ogurasousui/engagement-automation/internal/core/calendar"
	"github.com/ogurasousui/engagement-automation/internal/core/employee"
	pgdb "github.com/ogurasousui/engagement-automation/internal/platform/db/postgres"
)

const (
	foreignKeyViolationCode = "23503"
	checkViolationCode      = "23514"
)

// 月日の照合式です。インデックス式と同一でなければなりません。to_char は IMMUTABLE ではないため使いません。
const (
	birthdayMonthDayExpr = `(EXTRACT(MONTH FROM birthday)::int * 100 + EXTRACT(DAY FROM birthday)::int)`
	hiredAtMonthDayExpr  = `(EXTRACT(MONTH FROM hired_at)::int * 100 + EXTRACT(DAY FROM hired_at)::int)`
)

const employeeColumns = `id, company_id, employee_code, name, email, status, birthday, hired_at,
               birthday_notifications_enabled, anniversary_notifications_enabled, created_at, updated_at`

// EmployeeRepository は PostgreSQL を利用した社員名簿の実装です。
type EmployeeRepository struct {
	pool pgdb.Queryer
}

// NewEmployeeRepository は EmployeeRepository を生成します。
func NewEmployeeRepository(pool pgdb.Queryer) *EmployeeRepository {
	return &EmployeeRepository{pool: pool}
}

// FindByID は ID で社員を取得します。退職済みの社員も返します。
func (r *EmployeeRepository) FindByID(ctx context.Context, id string) (*employee.Employee, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT `+employeeColumns+`
          FROM employees
         WHERE id = $1
         LIMIT 1
    `, id)

	found, err := scanEmployee(row)
	if err != nil {
		return nil, translateEmployeePgError(err)
	}
	return found, nil
}

// Update は社員の自動配信設定を更新します。名簿項目は HR 側で管理するため変更しません。
func (r *EmployeeRepository) Update(ctx context.Context, e *employee.Employee) (*employee.Employee, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        UPDATE employees
           SET birthday_notifications_enabled = $1,
               anniversary_notifications_enabled = $2,
               updated_at = $3
         WHERE id = $4
        RETURNING `+employeeColumns+`
    `,
		e.BirthdayNotificationsEnabled,
		e.AnniversaryNotificationsEnabled,
		e.UpdatedAt,
		e.ID,
	)

	updated, err := scanEmployee(row)
	if err != nil {
		return nil, translateEmployeePgError(err)
	}
	return updated, nil
}

// ListBirthdayCandidates は誕生日の月日が days に含まれる通知対象の在籍社員を返します。
func (r *EmployeeRepository) ListBirthdayCandidates(ctx context.Context, days []calendar.MonthDay) ([]*employee.Employee, error) {
	if len(days) == 0 {
		return []*employee.Employee{}, nil
	}

	return r.list(ctx, `
        SELECT `+employeeColumns+`
          FROM employees
         WHERE status = 'active'
           AND birthday_notifications_enabled
           AND birthday IS NOT NULL
           AND `+birthdayMonthDayExpr+` = ANY($1::int[])
         ORDER BY company_id, id
    `, monthDayKeys(days))
}

// ListAnniversaryCandidates は入社日の月日が days に含まれ、before より前に入社した通知対象の在籍社員を返します。
func (r *EmployeeRepository) ListAnniversaryCandidates(ctx context.Context, days []calendar.MonthDay, before time.Time) ([]*employee.Employee, error) {
	if len(days) == 0 {
		return []*employee.Employee{}, nil
	}

	return r.list(ctx, `
        SELECT `+employeeColumns+`
          FROM employees
         WHERE status = 'active'
           AND anniversary_notifications_enabled
           AND hired_at IS NOT NULL
           AND hired_at < $2
           AND `+hiredAtMonthDayExpr+` = ANY($1::int[])
         ORDER BY company_id, id
    `, monthDayKeys(days), calendar.DateOf(before))
}

func (r *EmployeeRepository) list(ctx context.Context, query string, args ...any) ([]*employee.Employee, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, translateEmployeePgError(err)
	}
	defer rows.Close()

	employees := make([]*employee.Employee, 0)
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, translateEmployeePgError(err)
		}
		employees = append(employees, emp)
	}

	if err := rows.Err(); err != nil {
		return nil, translateEmployeePgError(err)
	}

	return employees, nil
}

func scanEmployee(row pgx.Row) (*employee.Employee, error) {
	var (
		emp      employee.Employee
		email    sql.NullString
		status   string
		birthday sql.NullTime
		hiredAt  sql.NullTime
	)

	if err := row.Scan(
		&emp.ID,
		&emp.CompanyID,
		&emp.EmployeeCode,
		&emp.Name,
		&email,
		&status,
		&birthday,
		&hiredAt,
		&emp.BirthdayNotificationsEnabled,
		&emp.AnniversaryNotificationsEnabled,
		&emp.CreatedAt,
		&emp.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, employee.ErrEmployeeNotFound
		}
		return nil, err
	}

	if email.Valid {
		emp.Email = email.String
	}
	emp.Status = employee.Status(status)
	emp.Birthday = datePtr(birthday)
	emp.HiredAt = datePtr(hiredAt)

	return &emp, nil
}

func translateEmployeePgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return employee.ErrEmployeeNotFound
	}
	return err
}

// monthDayKeys は月日を month*100+day の整数に変換します。
func monthDayKeys(days []calendar.MonthDay) []int32 {
	out := make([]int32, 0, len(days))
	for _, md := range days {
		out = append(out, int32(md.Month)*100+int32(md.Day))
	}
	return out
}

// datePtr は DATE 列を UTC の 0 時に揃えます。
func datePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	date := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &date
}

func nullableDate(value *time.Time) any {
	if value == nil {
		return nil
	}
	return calendar.DateOf(*value)
}

func asPgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
