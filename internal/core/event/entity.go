package event

import (
	"time"

	"github.com/ogurasousui/engagement-automation/internal/core/calendar"
)

// Event は HR が社員ごとに登録する任意の記念日です（勤続 5 年、昇進など）。
// 削除は IsActive=false による論理削除で、行そのものは残ります。
type Event struct {
	ID                 string
	CompanyID          string
	EmployeeID         string
	Name               string
	Description        *string
	EventDate          time.Time
	IsRecurring        bool
	ReminderDaysBefore int
	TemplateID         *string
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// OccurrenceFor は runDate に配信すべき発生日を返します。
// リマインダー日数を加えた日が発生日に当たらない場合は false を返します。
func (e *Event) OccurrenceFor(runDate time.Time) (time.Time, bool) {
	if e == nil || !e.IsActive {
		return time.Time{}, false
	}

	target := calendar.AddDays(runDate, e.ReminderDaysBefore)
	anchor := calendar.DateOf(e.EventDate)

	if !e.IsRecurring {
		return target, target.Equal(anchor)
	}
	if target.Year() < anchor.Year() {
		return time.Time{}, false
	}
	return target, calendar.Matches(anchor, target)
}
