package employee

import (
	"context"
	"time"

	"github.com/ogurasousui/engagement-automation/internal/core/calendar"
)

// Repository は社員永続化の抽象です。
type Repository interface {
	FindByID(ctx context.Context, id string) (*Employee, error)
	Update(ctx context.Context, employee *Employee) (*Employee, error)
	// ListBirthdayCandidates は誕生日の月日が days のいずれかに一致し、
	// 誕生日通知が有効な在籍社員を返します。
	ListBirthdayCandidates(ctx context.Context, days []calendar.MonthDay) ([]*Employee, error)
	// ListAnniversaryCandidates は入社日の月日が days のいずれかに一致し、
	// 入社日が before より前で記念日通知が有効な在籍社員を返します。
	ListAnniversaryCandidates(ctx context.Context, days []calendar.MonthDay, before time.Time) ([]*Employee, error)
}
