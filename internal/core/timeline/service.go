package timeline

import (
	"context"
	"strings"
)

const (
	defaultListPageSize = 50
	maxListPageSize     = 200
)

// Service はタイムラインの参照ユースケースです。
type Service struct {
	repo Repository
}

// UseCase はタイムライン参照の公開インターフェースです。
type UseCase interface {
	ListItems(ctx context.Context, in ListItemsInput) ([]*Item, error)
}

var _ UseCase = (*Service)(nil)

// NewService は Service を生成します。
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ListItemsInput は一覧取得時の入力です。
type ListItemsInput struct {
	EmployeeID string
	PageSize   int
}

// ListItems は社員のタイムライン項目を新しい順に返します。
func (s *Service) ListItems(ctx context.Context, in ListItemsInput) ([]*Item, error) {
	employeeID := strings.TrimSpace(in.EmployeeID)
	if employeeID == "" {
		return nil, ErrInvalidEmployeeID
	}

	limit := in.PageSize
	switch {
	case limit <= 0:
		limit = defaultListPageSize
	case limit > maxListPageSize:
		return nil, ErrInvalidPageSize
	}

	return s.repo.ListByEmployee(ctx, employeeID, limit)
}
