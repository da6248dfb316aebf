package event

import (
	"sort"
	"time"

	"github.com/ogurasousui/engagement-automation/internal/core/calendar"
)

// Window は直近イベントの抽出規則です。
type Window string

const (
	// WindowSameMonth は従来の規則です。月が今月で、日が今日以降のイベントを返します。
	// 月をまたぐ期間は対象外で、daysAhead は参照しません。
	WindowSameMonth Window = "same_month"
	// WindowRolling は今日から daysAhead 日以内に次回発生日があるイベントを返します。
	WindowRolling Window = "rolling"
)

const (
	defaultDaysAhead = 30
	maxDaysAhead     = 366
)

// ParseWindow は設定値から Window を解釈します。
func ParseWindow(raw string) (Window, error) {
	switch Window(raw) {
	case "":
		return WindowSameMonth, nil
	case WindowSameMonth, WindowRolling:
		return Window(raw), nil
	default:
		return "", ErrInvalidWindow
	}
}

// SelectUpcoming は events から today 基準の直近イベントを抽出して並べ替えます。
// 論理削除済みのイベントは常に除外します。
func SelectUpcoming(events []*Event, today time.Time, daysAhead int, window Window) ([]*Event, error) {
	today = calendar.DateOf(today)

	switch window {
	case WindowSameMonth:
		return selectSameMonth(events, today), nil
	case WindowRolling:
		return selectRolling(events, today, daysAhead), nil
	default:
		return nil, ErrInvalidWindow
	}
}

func selectSameMonth(events []*Event, today time.Time) []*Event {
	selected := make([]*Event, 0, len(events))
	for _, ev := range events {
		if ev == nil || !ev.IsActive {
			continue
		}
		if ev.EventDate.Month() == today.Month() && ev.EventDate.Day() >= today.Day() {
			selected = append(selected, ev)
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].EventDate.Before(selected[j].EventDate)
	})
	return selected
}

func selectRolling(events []*Event, today time.Time, daysAhead int) []*Event {
	until := calendar.AddDays(today, daysAhead)

	type candidate struct {
		event *Event
		next  time.Time
	}

	candidates := make([]candidate, 0, len(events))
	for _, ev := range events {
		if ev == nil || !ev.IsActive {
			continue
		}

		var next time.Time
		if ev.IsRecurring {
			next = calendar.NextOccurrence(ev.EventDate, today)
			if first := calendar.DateOf(ev.EventDate); next.Before(first) {
				next = first
			}
		} else {
			next = calendar.DateOf(ev.EventDate)
			if next.Before(today) {
				continue
			}
		}

		if next.After(until) {
			continue
		}
		candidates = append(candidates, candidate{event: ev, next: next})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].next.Equal(candidates[j].next) {
			return candidates[i].next.Before(candidates[j].next)
		}
		return candidates[i].event.Name < candidates[j].event.Name
	})

	selected := make([]*Event, 0, len(candidates))
	for _, c := range candidates {
		selected = append(selected, c.event)
	}
	return selected
}

func normalizeDaysAhead(days int) (int, error) {
	if days <= 0 {
		return defaultDaysAhead, nil
	}
	if days > maxDaysAhead {
		return 0, ErrInvalidDaysAhead
	}
	return days, nil
}
