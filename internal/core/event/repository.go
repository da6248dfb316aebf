package event

import "context"

// Repository はカスタムイベント永続化の抽象です。
// 一覧系は IsActive=true の行のみを返し、FindByID は論理削除済みの行も返します。
type Repository interface {
	Create(ctx context.Context, event *Event) (*Event, error)
	Update(ctx context.Context, event *Event) (*Event, error)
	FindByID(ctx context.Context, id string) (*Event, error)
	ListByEmployee(ctx context.Context, employeeID string) ([]*Event, error)
	ListByCompany(ctx context.Context, companyID string) ([]*Event, error)
	// ListActive は全社の有効なイベントを返します。日次のトリガー判定で使います。
	ListActive(ctx context.Context) ([]*Event, error)
}
