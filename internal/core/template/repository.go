package template

import "context"

// Repository はテンプレートカタログの読み取り抽象です。
type Repository interface {
	FindByID(ctx context.Context, id string) (*Template, error)
	// ListByCompanyAndTag は companyID に属し tags に tag を含むテンプレートを作成順に返します。
	ListByCompanyAndTag(ctx context.Context, companyID, tag string) ([]*Template, error)
}
