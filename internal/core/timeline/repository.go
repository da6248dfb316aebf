package timeline

import "context"

// Repository はタイムライン項目の永続化の抽象です。自動生成は追記のみで更新しません。
type Repository interface {
	// CreateOnce は AutomationKey が未登録のときだけ項目を追加します。
	// 既に同じキーが存在する場合は既存項目と false を返します。
	CreateOnce(ctx context.Context, item *Item) (*Item, bool, error)
	ListByEmployee(ctx context.Context, employeeID string, limit int) ([]*Item, error)
}
