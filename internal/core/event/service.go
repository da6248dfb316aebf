package event

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ogurasousui/engagement-automation/internal/core/calendar"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

// TransactionManager はトランザクション制御の抽象化です。
type TransactionManager interface {
	WithinReadOnly(ctx context.Context, fn func(context.Context) error) error
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (noopTransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

const maxReminderDaysBefore = 365

// Service はカスタムイベントのユースケースをまとめます。
type Service struct {
	repo     Repository
	clock    Clock
	tx       TransactionManager
	window   Window
	location *time.Location
}

// UseCase はカスタムイベントユースケースの公開インターフェースです。
type UseCase interface {
	CreateEvent(ctx context.Context, in CreateEventInput) (*Event, error)
	GetEvent(ctx context.Context, in GetEventInput) (*Event, error)
	ListEventsByEmployee(ctx context.Context, in ListEventsByEmployeeInput) ([]*Event, error)
	ListEventsByCompany(ctx context.Context, in ListEventsByCompanyInput) ([]*Event, error)
	UpdateEvent(ctx context.Context, in UpdateEventInput) (*Event, error)
	DeleteEvent(ctx context.Context, in DeleteEventInput) error
	UpcomingEvents(ctx context.Context, in UpcomingEventsInput) ([]*Event, error)
}

// Options は Service の任意設定です。
type Options struct {
	// Window は UpcomingEvents の抽出規則です。未指定時は WindowSameMonth です。
	Window Window
	// Location は「今日」を決めるタイムゾーンです。未指定時はローカル時刻です。
	Location *time.Location
}

// NewService は Service を生成します。
func NewService(repo Repository, clock Clock, tx TransactionManager, opts Options) *Service {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	window := opts.Window
	if window == "" {
		window = WindowSameMonth
	}
	return &Service{repo: repo, clock: clock, tx: tx, window: window, location: opts.Location}
}

// CreateEventInput はイベント作成時の入力です。
type CreateEventInput struct {
	CompanyID          string
	EmployeeID         string
	Name               string
	Description        *string
	EventDate          *time.Time
	IsRecurring        *bool
	ReminderDaysBefore int
	TemplateID         *string
}

// GetEventInput はイベント取得時の入力です。
type GetEventInput struct {
	ID string
}

// ListEventsByEmployeeInput は社員別一覧の入力です。
type ListEventsByEmployeeInput struct {
	EmployeeID string
}

// ListEventsByCompanyInput は会社別一覧の入力です。
type ListEventsByCompanyInput struct {
	CompanyID string
}

// UpdateEventInput はイベント更新時の入力です。nil の項目は変更しません。
type UpdateEventInput struct {
	ID                 string
	Name               *string
	Description        *string
	DescriptionSet     bool
	EventDate          *time.Time
	IsRecurring        *bool
	ReminderDaysBefore *int
	TemplateID         *string
	TemplateIDSet      bool
}

// DeleteEventInput はイベント削除時の入力です。
type DeleteEventInput struct {
	ID string
}

// UpcomingEventsInput は直近イベント取得の入力です。
type UpcomingEventsInput struct {
	CompanyID string
	DaysAhead int
}

// CreateEvent は新しいイベントを有効状態で登録します。
func (s *Service) CreateEvent(ctx context.Context, in CreateEventInput) (*Event, error) {
	companyID, err := requireTrimmed(in.CompanyID, ErrInvalidCompanyID)
	if err != nil {
		return nil, err
	}
	employeeID, err := requireTrimmed(in.EmployeeID, ErrInvalidEmployeeID)
	if err != nil {
		return nil, err
	}
	name, err := requireTrimmed(in.Name, ErrInvalidName)
	if err != nil {
		return nil, err
	}
	if in.EventDate == nil || in.EventDate.IsZero() {
		return nil, ErrInvalidEventDate
	}
	if err := validateReminderDays(in.ReminderDaysBefore); err != nil {
		return nil, err
	}

	recurring := true
	if in.IsRecurring != nil {
		recurring = *in.IsRecurring
	}

	now := s.clock.Now()
	ev := &Event{
		CompanyID:          companyID,
		EmployeeID:         employeeID,
		Name:               name,
		Description:        normalizeOptional(in.Description),
		EventDate:          calendar.DateOf(*in.EventDate),
		IsRecurring:        recurring,
		ReminderDaysBefore: in.ReminderDaysBefore,
		TemplateID:         normalizeOptional(in.TemplateID),
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	var created *Event
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		result, err := s.repo.Create(txCtx, ev)
		if err != nil {
			return err
		}
		created = result
		return nil
	}); err != nil {
		return nil, err
	}

	return created, nil
}

// GetEvent は ID でイベントを取得します。論理削除済みでも返します。
func (s *Service) GetEvent(ctx context.Context, in GetEventInput) (*Event, error) {
	id, err := requireTrimmed(in.ID, ErrInvalidID)
	if err != nil {
		return nil, fmt.Errorf("id: %w", err)
	}

	var result *Event
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		result = found
		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// ListEventsByEmployee は社員の有効なイベントを event_date 降順で返します。
func (s *Service) ListEventsByEmployee(ctx context.Context, in ListEventsByEmployeeInput) ([]*Event, error) {
	employeeID, err := requireTrimmed(in.EmployeeID, ErrInvalidEmployeeID)
	if err != nil {
		return nil, err
	}

	var events []*Event
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.ListByEmployee(txCtx, employeeID)
		if err != nil {
			return err
		}
		events = found
		return nil
	}); err != nil {
		return nil, err
	}

	return events, nil
}

// ListEventsByCompany は会社の有効なイベントを event_date 降順で返します。
func (s *Service) ListEventsByCompany(ctx context.Context, in ListEventsByCompanyInput) ([]*Event, error) {
	companyID, err := requireTrimmed(in.CompanyID, ErrInvalidCompanyID)
	if err != nil {
		return nil, err
	}

	var events []*Event
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.ListByCompany(txCtx, companyID)
		if err != nil {
			return err
		}
		events = found
		return nil
	}); err != nil {
		return nil, err
	}

	return events, nil
}

// UpdateEvent は指定された項目だけを更新します。
func (s *Service) UpdateEvent(ctx context.Context, in UpdateEventInput) (*Event, error) {
	id, err := requireTrimmed(in.ID, ErrInvalidID)
	if err != nil {
		return nil, fmt.Errorf("id: %w", err)
	}

	var updated *Event
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.FindByID(txCtx, id)
		if err != nil {
			return err
		}

		if in.Name != nil {
			name, err := requireTrimmed(*in.Name, ErrInvalidName)
			if err != nil {
				return err
			}
			existing.Name = name
		}

		if in.DescriptionSet {
			existing.Description = normalizeOptional(in.Description)
		}

		if in.EventDate != nil {
			if in.EventDate.IsZero() {
				return ErrInvalidEventDate
			}
			existing.EventDate = calendar.DateOf(*in.EventDate)
		}

		if in.IsRecurring != nil {
			existing.IsRecurring = *in.IsRecurring
		}

		if in.ReminderDaysBefore != nil {
			if err := validateReminderDays(*in.ReminderDaysBefore); err != nil {
				return err
			}
			existing.ReminderDaysBefore = *in.ReminderDaysBefore
		}

		if in.TemplateIDSet {
			existing.TemplateID = normalizeOptional(in.TemplateID)
		}

		existing.UpdatedAt = s.clock.Now()

		result, err := s.repo.Update(txCtx, existing)
		if err != nil {
			return err
		}
		updated = result
		return nil
	}); err != nil {
		return nil, err
	}

	return updated, nil
}

// DeleteEvent はイベントを論理削除します。既に削除済みの場合は何もしません。
func (s *Service) DeleteEvent(ctx context.Context, in DeleteEventInput) error {
	id, err := requireTrimmed(in.ID, ErrInvalidID)
	if err != nil {
		return fmt.Errorf("id: %w", err)
	}

	return s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		if !existing.IsActive {
			return nil
		}

		existing.IsActive = false
		existing.UpdatedAt = s.clock.Now()

		_, err = s.repo.Update(txCtx, existing)
		return err
	})
}

// UpcomingEvents は会社の直近イベントを返します。抽出規則は Service の Window に従います。
func (s *Service) UpcomingEvents(ctx context.Context, in UpcomingEventsInput) ([]*Event, error) {
	companyID, err := requireTrimmed(in.CompanyID, ErrInvalidCompanyID)
	if err != nil {
		return nil, err
	}

	daysAhead, err := normalizeDaysAhead(in.DaysAhead)
	if err != nil {
		return nil, err
	}

	var events []*Event
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.ListByCompany(txCtx, companyID)
		if err != nil {
			return err
		}
		events = found
		return nil
	}); err != nil {
		return nil, err
	}

	today := calendar.Today(s.clock.Now(), s.location)
	return SelectUpcoming(events, today, daysAhead, s.window)
}

func requireTrimmed(raw string, invalid error) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", invalid
	}
	return trimmed, nil
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func validateReminderDays(days int) error {
	if days < 0 || days > maxReminderDaysBefore {
		return ErrInvalidReminderDays
	}
	return nil
}
