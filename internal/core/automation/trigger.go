package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/ogurasousui/engagement-automation/internal/core/calendar"
	"github.com/ogurasousui/engagement-automation/internal/core/employee"
	"github.com/ogurasousui/engagement-automation/internal/core/event"
	"github.com/ogurasousui/engagement-automation/internal/core/template"
	"github.com/ogurasousui/engagement-automation/internal/core/timeline"
)

// Kind はトリガーの種別です。
type Kind string

const (
	KindBirthday    Kind = "birthday"
	KindAnniversary Kind = "anniversary"
	KindCustom      Kind = "custom"
)

// Kinds は日次実行で処理する種別の一覧です。
func Kinds() []Kind {
	return []Kind{KindBirthday, KindAnniversary, KindCustom}
}

// ParseKind は文字列から Kind を解釈します。
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindBirthday, KindAnniversary, KindCustom:
		return Kind(raw), nil
	default:
		return "", fmt.Errorf("automation: unknown trigger %q", raw)
	}
}

// Trigger は 1 件の発火理由です。KindCustom の場合のみ EventID を持ちます。
type Trigger struct {
	Kind    Kind
	EventID string
}

// String は冪等キーとメタデータに使うトリガー名を返します。
func (t Trigger) String() string {
	if t.Kind == KindCustom {
		return string(KindCustom) + ":" + t.EventID
	}
	return string(t.Kind)
}

// occurrence は runDate に発火する 1 件の対象です。
type occurrence struct {
	trigger    Trigger
	employeeID string
	employee   *employee.Employee
	event      *event.Event
	runDate    time.Time
	occursOn   time.Time
	years      int
}

func (o occurrence) subject() string {
	if o.event != nil {
		return "event " + o.event.ID
	}
	return "employee " + o.employeeID
}

// content はテンプレート 1 件から描画した本文です。
type content struct {
	title    string
	body     string
	itemType timeline.Type
}

// rule は種別ごとの選定・テンプレート解決・描画の組です。
type rule struct {
	kind Kind
	// collect は runDate に発火する対象を列挙します。ここでの失敗は実行全体の失敗です。
	collect func(ctx context.Context, e *Engine, runDate time.Time) ([]occurrence, error)
	// prepare は対象ごとの追加読み込みを行います。skip=true の対象は数えません。
	prepare func(ctx context.Context, e *Engine, occ *occurrence) (skip bool, err error)
	// templates は対象に適用するテンプレートを返します。
	templates func(ctx context.Context, e *Engine, occ occurrence) ([]*template.Template, error)
	render    func(occ occurrence, tpl *template.Template) content
	metadata  func(occ occurrence, meta *timeline.Metadata)
}

func ruleFor(kind Kind) (rule, error) {
	switch kind {
	case KindBirthday:
		return birthdayRule(), nil
	case KindAnniversary:
		return anniversaryRule(), nil
	case KindCustom:
		return customRule(), nil
	default:
		return rule{}, fmt.Errorf("automation: unknown trigger %q", kind)
	}
}

func birthdayRule() rule {
	return rule{
		kind: KindBirthday,
		collect: func(ctx context.Context, e *Engine, runDate time.Time) ([]occurrence, error) {
			employees, err := e.employees.ListBirthdayCandidates(ctx, calendar.MatchingDays(runDate))
			if err != nil {
				return nil, err
			}
			occs := make([]occurrence, 0, len(employees))
			for _, emp := range employees {
				if !emp.IsActive() || !emp.BirthdayNotificationsEnabled || emp.Birthday == nil {
					continue
				}
				occs = append(occs, occurrence{
					trigger:    Trigger{Kind: KindBirthday},
					employeeID: emp.ID,
					employee:   emp,
					runDate:    runDate,
					occursOn:   runDate,
				})
			}
			return occs, nil
		},
		templates: func(ctx context.Context, e *Engine, occ occurrence) ([]*template.Template, error) {
			return e.taggedTemplates(ctx, occ.employee.CompanyID, template.TagBirthday)
		},
		render: func(occ occurrence, _ *template.Template) content {
			return content{
				title:    fmt.Sprintf("🎉 Happy birthday, %s!", occ.employee.Name),
				body:     "Happy Birthday! Today is your special day.",
				itemType: timeline.TypeBirthday,
			}
		},
	}
}

func anniversaryRule() rule {
	return rule{
		kind: KindAnniversary,
		collect: func(ctx context.Context, e *Engine, runDate time.Time) ([]occurrence, error) {
			employees, err := e.employees.ListAnniversaryCandidates(ctx, calendar.MatchingDays(runDate), runDate)
			if err != nil {
				return nil, err
			}
			occs := make([]occurrence, 0, len(employees))
			for _, emp := range employees {
				if !emp.IsActive() || !emp.AnniversaryNotificationsEnabled || emp.HiredAt == nil {
					continue
				}
				hired := calendar.DateOf(*emp.HiredAt)
				if !hired.Before(runDate) {
					continue
				}
				occs = append(occs, occurrence{
					trigger:    Trigger{Kind: KindAnniversary},
					employeeID: emp.ID,
					employee:   emp,
					runDate:    runDate,
					occursOn:   runDate,
					years:      calendar.YearsBetween(hired, runDate),
				})
			}
			return occs, nil
		},
		templates: func(ctx context.Context, e *Engine, occ occurrence) ([]*template.Template, error) {
			return e.taggedTemplates(ctx, occ.employee.CompanyID, template.TagAnniversary)
		},
		render: func(occ occurrence, _ *template.Template) content {
			return content{
				title:    fmt.Sprintf("🏆 %d %s with us!", occ.years, pluralYears(occ.years)),
				body:     fmt.Sprintf("Congratulations %s! Today we celebrate your %d-year anniversary with the company.", occ.employee.Name, occ.years),
				itemType: timeline.TypeAnniversary,
			}
		},
		metadata: func(occ occurrence, meta *timeline.Metadata) {
			years := occ.years
			meta.YearsOfService = &years
		},
	}
}

func customRule() rule {
	return rule{
		kind: KindCustom,
		collect: func(ctx context.Context, e *Engine, runDate time.Time) ([]occurrence, error) {
			events, err := e.events.ListActive(ctx)
			if err != nil {
				return nil, err
			}
			occs := make([]occurrence, 0)
			for _, ev := range events {
				occursOn, ok := ev.OccurrenceFor(runDate)
				if !ok {
					continue
				}
				occs = append(occs, occurrence{
					trigger:    Trigger{Kind: KindCustom, EventID: ev.ID},
					employeeID: ev.EmployeeID,
					event:      ev,
					runDate:    runDate,
					occursOn:   occursOn,
					years:      calendar.YearsBetween(ev.EventDate, occursOn),
				})
			}
			return occs, nil
		},
		prepare: func(ctx context.Context, e *Engine, occ *occurrence) (bool, error) {
			emp, err := e.employees.FindByID(ctx, occ.employeeID)
			if err != nil {
				return false, err
			}
			if !emp.IsActive() {
				return true, nil
			}
			occ.employee = emp
			return false, nil
		},
		templates: func(ctx context.Context, e *Engine, occ occurrence) ([]*template.Template, error) {
			if occ.event.TemplateID == nil {
				return nil, fmt.Errorf("custom event %s has no template", occ.event.ID)
			}
			tpl, err := e.templates.FindByID(ctx, *occ.event.TemplateID)
			if err != nil {
				return nil, err
			}
			if tpl.CompanyID != occ.employee.CompanyID {
				return nil, fmt.Errorf("template %s does not belong to company %s", tpl.ID, occ.employee.CompanyID)
			}
			return []*template.Template{tpl}, nil
		},
		render: func(occ occurrence, _ *template.Template) content {
			title := fmt.Sprintf("📅 %s", occ.event.Name)
			body := fmt.Sprintf("%s: %s", occ.employee.Name, occ.event.Name)
			if occ.event.IsRecurring && occ.years > 0 {
				body = fmt.Sprintf("%s (%d %s)", body, occ.years, pluralYears(occ.years))
			}
			if occ.event.ReminderDaysBefore > 0 {
				body = fmt.Sprintf("Coming up on %s. %s", calendar.FormatDate(occ.occursOn), body)
			}
			if occ.event.Description != nil {
				body = body + "\n" + *occ.event.Description
			}
			return content{title: title, body: body, itemType: timeline.TypeCustom}
		},
		metadata: func(occ occurrence, meta *timeline.Metadata) {
			meta.EventID = occ.event.ID
			meta.OccurrenceDate = calendar.FormatDate(occ.occursOn)
			if occ.event.IsRecurring {
				years := occ.years
				meta.YearsSince = &years
			}
		},
	}
}

func pluralYears(n int) string {
	if n == 1 {
		return "year"
	}
	return "years"
}
