package calendar

import (
	"fmt"
	"time"
)

// DateLayout は日付の文字列表現です。
const DateLayout = "2006-01-02"

// MonthDay は年を持たない月日です。誕生日や記念日の照合に使います。
type MonthDay struct {
	Month time.Month
	Day   int
}

// String は "MM-DD" 形式を返します。
func (md MonthDay) String() string {
	return fmt.Sprintf("%02d-%02d", int(md.Month), md.Day)
}

// MonthDayOf は t の月日を返します。
func MonthDayOf(t time.Time) MonthDay {
	return MonthDay{Month: t.Month(), Day: t.Day()}
}

// DateOf は t の年月日だけを残した UTC の日付を返します。
// t 自身のロケーションでの年月日を採用します。
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Today は loc における now の日付を返します。loc が nil の場合はローカル時刻を使います。
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return DateOf(now.In(loc))
}

// FormatDate は日付を YYYY-MM-DD で返します。
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate は YYYY-MM-DD を UTC の日付として解釈します。
func ParseDate(raw string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return t, nil
}

// IsLeapYear はうるう年かどうかを返します。
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// MatchingDays は day に発火すべき月日の集合を返します。
// 平年の 2/28 には 2/29 生まれも含めます。
func MatchingDays(day time.Time) []MonthDay {
	md := MonthDayOf(day)
	days := []MonthDay{md}
	if md.Month == time.February && md.Day == 28 && !IsLeapYear(day.Year()) {
		days = append(days, MonthDay{Month: time.February, Day: 29})
	}
	return days
}

// Matches は recurring な日付 anchor が day に発火するかを返します。
func Matches(anchor, day time.Time) bool {
	target := MonthDayOf(anchor)
	for _, md := range MatchingDays(day) {
		if md == target {
			return true
		}
	}
	return false
}

// OccurrenceIn は anchor の月日を year に置いた日付を返します。
// 平年の 2/29 は 2/28 に丸めます。
func OccurrenceIn(anchor time.Time, year int) time.Time {
	month, day := anchor.Month(), anchor.Day()
	if month == time.February && day == 29 && !IsLeapYear(year) {
		day = 28
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// NextOccurrence は from 以降で最初に訪れる anchor の記念日を返します。
func NextOccurrence(anchor, from time.Time) time.Time {
	from = DateOf(from)
	next := OccurrenceIn(anchor, from.Year())
	if next.Before(from) {
		next = OccurrenceIn(anchor, from.Year()+1)
	}
	return next
}

// AddDays は日付に n 日を加算します。
func AddDays(day time.Time, n int) time.Time {
	return DateOf(day).AddDate(0, 0, n)
}

// YearsBetween は from から on までの暦年差を返します。
func YearsBetween(from, on time.Time) int {
	return on.Year() - from.Year()
}
