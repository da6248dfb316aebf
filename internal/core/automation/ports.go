package automation

import (
	"context"
	"time"

	"github.com/ogurasousui/engagement-automation/internal/core/calendar"
	"github.com/ogurasousui/engagement-automation/internal/core/employee"
	"github.com/ogurasousui/engagement-automation/internal/core/event"
	"github.com/ogurasousui/engagement-automation/internal/core/template"
	"github.com/ogurasousui/engagement-automation/internal/core/timeline"
)

// EmployeeSource は社員名簿の読み取り口です。
type EmployeeSource interface {
	FindByID(ctx context.Context, id string) (*employee.Employee, error)
	ListBirthdayCandidates(ctx context.Context, days []calendar.MonthDay) ([]*employee.Employee, error)
	ListAnniversaryCandidates(ctx context.Context, days []calendar.MonthDay, before time.Time) ([]*employee.Employee, error)
}

// TemplateCatalog はテンプレートカタログの読み取り口です。
type TemplateCatalog interface {
	FindByID(ctx context.Context, id string) (*template.Template, error)
	ListByCompanyAndTag(ctx context.Context, companyID, tag string) ([]*template.Template, error)
}

// EventSource はカスタムイベントの読み取り口です。
type EventSource interface {
	ListActive(ctx context.Context) ([]*event.Event, error)
}

// ContentSink は生成したタイムライン項目の書き込み先です。
type ContentSink interface {
	CreateOnce(ctx context.Context, item *timeline.Item) (*timeline.Item, bool, error)
}

// Notifier は新規作成されたタイムライン項目を下流へ通知します。
type Notifier interface {
	ItemCreated(ctx context.Context, item *timeline.Item) error
}

// RunLocker は同一トリガー・同一日の実行を排他します。
// ok が false の場合は他の実行が進行中です。
type RunLocker interface {
	TryLock(ctx context.Context, key string) (unlock func(context.Context) error, ok bool, err error)
}
