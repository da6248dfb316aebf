package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ogurasousui/engagement-automation/internal/core/calendar"
	"github.com/ogurasousui/engagement-automation/internal/core/employee"
	"github.com/ogurasousui/engagement-automation/internal/core/event"
	"github.com/ogurasousui/engagement-automation/internal/core/template"
	"github.com/ogurasousui/engagement-automation/internal/core/timeline"
)

type fakeEmployees struct {
	employees map[string]*employee.Employee
	listErr   error
}

func newFakeEmployees(seed ...*employee.Employee) *fakeEmployees {
	f := &fakeEmployees{employees: make(map[string]*employee.Employee)}
	for _, emp := range seed {
		f.employees[emp.ID] = emp
	}
	return f
}

func (f *fakeEmployees) FindByID(_ context.Context, id string) (*employee.Employee, error) {
	emp, ok := f.employees[id]
	if !ok {
		return nil, employee.ErrEmployeeNotFound
	}
	return emp, nil
}

// 通知フラグと在籍状態はエンジン側でも判定されることを確かめるため、ここでは月日だけで絞り込む。
func (f *fakeEmployees) ListBirthdayCandidates(_ context.Context, days []calendar.MonthDay) ([]*employee.Employee, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.matching(days, func(emp *employee.Employee) *time.Time { return emp.Birthday }), nil
}

func (f *fakeEmployees) ListAnniversaryCandidates(_ context.Context, days []calendar.MonthDay, _ time.Time) ([]*employee.Employee, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.matching(days, func(emp *employee.Employee) *time.Time { return emp.HiredAt }), nil
}

func (f *fakeEmployees) matching(days []calendar.MonthDay, date func(*employee.Employee) *time.Time) []*employee.Employee {
	var out []*employee.Employee
	for _, id := range sortedKeys(f.employees) {
		emp := f.employees[id]
		d := date(emp)
		if d == nil {
			continue
		}
		for _, md := range days {
			if calendar.MonthDayOf(*d) == md {
				out = append(out, emp)
				break
			}
		}
	}
	return out
}

type fakeTemplates struct {
	byCompanyTag map[string][]*template.Template
	byID         map[string]*template.Template
	failCompany  map[string]error
	panicCompany string
}

func newFakeTemplates(seed ...*template.Template) *fakeTemplates {
	f := &fakeTemplates{
		byCompanyTag: make(map[string][]*template.Template),
		byID:         make(map[string]*template.Template),
		failCompany:  make(map[string]error),
	}
	for _, tpl := range seed {
		f.byID[tpl.ID] = tpl
		for _, tag := range tpl.Tags {
			key := tpl.CompanyID + "/" + tag
			f.byCompanyTag[key] = append(f.byCompanyTag[key], tpl)
		}
	}
	return f
}

func (f *fakeTemplates) FindByID(_ context.Context, id string) (*template.Template, error) {
	tpl, ok := f.byID[id]
	if !ok {
		return nil, template.ErrTemplateNotFound
	}
	return tpl, nil
}

func (f *fakeTemplates) ListByCompanyAndTag(_ context.Context, companyID, tag string) ([]*template.Template, error) {
	if companyID == f.panicCompany {
		panic("template catalog exploded")
	}
	if err := f.failCompany[companyID]; err != nil {
		return nil, err
	}
	return f.byCompanyTag[companyID+"/"+tag], nil
}

type fakeEvents struct {
	events []*event.Event
}

func (f *fakeEvents) ListActive(context.Context) ([]*event.Event, error) {
	var out []*event.Event
	for _, ev := range f.events {
		if ev.IsActive {
			out = append(out, ev)
		}
	}
	return out, nil
}

type fakeSink struct {
	mu    sync.Mutex
	items map[string]*timeline.Item
	order []string
	seq   int
	// failTemplate に一致するテンプレートの挿入は失敗する。
	failTemplate string
}

func newFakeSink() *fakeSink {
	return &fakeSink{items: make(map[string]*timeline.Item)}
}

func (s *fakeSink) CreateOnce(_ context.Context, item *timeline.Item) (*timeline.Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.AutomationKey == nil {
		return nil, false, timeline.ErrMissingAutomationKey
	}
	if item.TemplateID != nil && *item.TemplateID == s.failTemplate {
		return nil, false, errors.New("insert failed")
	}
	if existing, ok := s.items[*item.AutomationKey]; ok {
		return existing, false, nil
	}
	s.seq++
	saved := *item
	saved.ID = fmt.Sprintf("item-%d", s.seq)
	s.items[*item.AutomationKey] = &saved
	s.order = append(s.order, *item.AutomationKey)
	return &saved, true, nil
}

func (s *fakeSink) forEmployee(employeeID string, typ timeline.Type) []*timeline.Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*timeline.Item
	for _, key := range s.order {
		item := s.items[key]
		if item.EmployeeID == employeeID && item.Type == typ {
			out = append(out, item)
		}
	}
	return out
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []*timeline.Item
	err   error
}

func (n *recordingNotifier) ItemCreated(_ context.Context, item *timeline.Item) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, item)
	return n.err
}

type stubLocker struct {
	held     bool
	err      error
	keys     []string
	released int
}

func (l *stubLocker) TryLock(_ context.Context, key string) (func(context.Context) error, bool, error) {
	l.keys = append(l.keys, key)
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	return func(context.Context) error {
		l.released++
		return nil
	}, true, nil
}

func sortedKeys(m map[string]*employee.Employee) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// 挿入順に依存しないよう ID 順で返す。
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func strPtr(s string) *string {
	return &s
}

func activeEmployee(id, companyID, name string) *employee.Employee {
	return &employee.Employee{
		ID:                              id,
		CompanyID:                       companyID,
		Name:                            name,
		Status:                          employee.StatusActive,
		BirthdayNotificationsEnabled:    true,
		AnniversaryNotificationsEnabled: true,
	}
}

func tpl(id, companyID string, tags ...string) *template.Template {
	return &template.Template{ID: id, CompanyID: companyID, Name: id, Tags: tags, IsActive: true}
}

func newTestEngine(emps *fakeEmployees, tpls *fakeTemplates, events *fakeEvents, sink *fakeSink, opts Options) *Engine {
	if events == nil {
		events = &fakeEvents{}
	}
	engine := NewEngine(emps, tpls, events, sink, opts)
	engine.newRunID = func() string { return "run-1" }
	return engine
}

func TestEngine_ProcessBirthdayTriggers_SingleTemplate(t *testing.T) {
	emp := activeEmployee("emp-1", "company-1", "Hanako")
	emp.Birthday = datePtr(1990, time.March, 15)
	sink := newFakeSink()
	engine := newTestEngine(newFakeEmployees(emp), newFakeTemplates(tpl("tpl-hb", "company-1", "birthday")), nil, sink, Options{})

	result := engine.ProcessBirthdayTriggers(context.Background(), date(2024, time.March, 15))

	if result.Processed != 1 {
		t.Fatalf("expected processed=1, got %d", result.Processed)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", result.Errors)
	}
	items := sink.forEmployee("emp-1", timeline.TypeBirthday)
	if len(items) != 1 {
		t.Fatalf("expected one birthday item, got %d", len(items))
	}
	item := items[0]
	if item.Metadata.TemplateID != "tpl-hb" || item.TemplateID == nil || *item.TemplateID != "tpl-hb" {
		t.Fatalf("unexpected template reference: %+v", item)
	}
	if item.Metadata.AutomationTrigger != "birthday" || item.Metadata.Date != "2024-03-15" {
		t.Fatalf("unexpected metadata: %+v", item.Metadata)
	}
	if !strings.Contains(item.Title, "Hanako") {
		t.Fatalf("expected greeting to include name, got %q", item.Title)
	}
	if got := *item.AutomationKey; got != "birthday:emp-1:tpl-hb:2024-03-15" {
		t.Fatalf("unexpected automation key %q", got)
	}
	if item.Metadata.RunID != "run-1" {
		t.Fatalf("expected run id to be recorded, got %q", item.Metadata.RunID)
	}
}

func TestEngine_ProcessBirthdayTriggers_RespectsOptOutAndStatus(t *testing.T) {
	optedOut := activeEmployee("emp-1", "company-1", "Opted Out")
	optedOut.Birthday = datePtr(1985, time.June, 1)
	optedOut.BirthdayNotificationsEnabled = false

	inactive := activeEmployee("emp-2", "company-1", "Former")
	inactive.Birthday = datePtr(1985, time.June, 1)
	inactive.Status = employee.StatusInactive

	otherDay := activeEmployee("emp-3", "company-1", "Other Day")
	otherDay.Birthday = datePtr(1985, time.June, 2)

	sink := newFakeSink()
	engine := newTestEngine(newFakeEmployees(optedOut, inactive, otherDay), newFakeTemplates(tpl("tpl-1", "company-1", "birthday")), nil, sink, Options{})

	result := engine.ProcessBirthdayTriggers(context.Background(), date(2024, time.June, 1))

	if result.Processed != 0 || len(result.Errors) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if sink.count() != 0 {
		t.Fatalf("expected no items, got %d", sink.count())
	}
}

func TestEngine_ProcessBirthdayTriggers_FanOut(t *testing.T) {
	emp := activeEmployee("emp-1", "company-1", "Hanako")
	emp.Birthday = datePtr(1990, time.July, 7)
	templates := newFakeTemplates(
		tpl("tpl-1", "company-1", "birthday"),
		tpl("tpl-2", "company-1", "birthday", "fun"),
		tpl("tpl-3", "company-1", "birthday"),
		tpl("tpl-other", "company-2", "birthday"),
		tpl("tpl-anniv", "company-1", "anniversary"),
	)
	sink := newFakeSink()
	engine := newTestEngine(newFakeEmployees(emp), templates, nil, sink, Options{})

	result := engine.ProcessBirthdayTriggers(context.Background(), date(2024, time.July, 7))

	if result.Processed != 1 {
		t.Fatalf("processed should count employees, got %d", result.Processed)
	}
	items := sink.forEmployee("emp-1", timeline.TypeBirthday)
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	seen := make(map[string]bool)
	for _, item := range items {
		seen[*item.TemplateID] = true
	}
	for _, id := range []string{"tpl-1", "tpl-2", "tpl-3"} {
		if !seen[id] {
			t.Fatalf("expected item for %s, got %v", id, seen)
		}
	}
}

func TestEngine_ProcessBirthdayTriggers_FailureIsolation(t *testing.T) {
	first := activeEmployee("emp-1", "company-broken", "First")
	first.Birthday = datePtr(1980, time.May, 5)
	second := activeEmployee("emp-2", "company-1", "Second")
	second.Birthday = datePtr(1992, time.May, 5)

	templates := newFakeTemplates(tpl("tpl-1", "company-1", "birthday"))
	templates.failCompany["company-broken"] = errors.New("catalog unavailable")
	sink := newFakeSink()
	engine := newTestEngine(newFakeEmployees(first, second), templates, nil, sink, Options{})

	result := engine.ProcessBirthdayTriggers(context.Background(), date(2024, time.May, 5))

	if result.Processed != 1 {
		t.Fatalf("expected processed=1, got %d", result.Processed)
	}
	if len(result.Errors) != 1 || result.Errors[0] != "Error processing birthday for employee emp-1: catalog unavailable" {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if got := len(sink.forEmployee("emp-2", timeline.TypeBirthday)); got != 1 {
		t.Fatalf("second employee should receive an item, got %d", got)
	}
}

func TestEngine_ProcessBirthdayTriggers_NoTemplates(t *testing.T) {
	emp := activeEmployee("emp-1", "company-9", "Lonely")
	emp.Birthday = datePtr(1990, time.January, 2)
	engine := newTestEngine(newFakeEmployees(emp), newFakeTemplates(), nil, newFakeSink(), Options{})

	result := engine.ProcessBirthdayTriggers(context.Background(), date(2024, time.January, 2))

	if result.Processed != 0 {
		t.Fatalf("expected processed=0, got %d", result.Processed)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "no birthday templates for company company-9") {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
}

func TestEngine_ProcessBirthdayTriggers_PartialInsertFailure(t *testing.T) {
	emp := activeEmployee("emp-1", "company-1", "Hanako")
	emp.Birthday = datePtr(1990, time.April, 1)
	templates := newFakeTemplates(tpl("tpl-1", "company-1", "birthday"), tpl("tpl-2", "company-1", "birthday"))
	sink := newFakeSink()
	sink.failTemplate = "tpl-2"
	engine := newTestEngine(newFakeEmployees(emp), templates, nil, sink, Options{})

	result := engine.ProcessBirthdayTriggers(context.Background(), date(2024, time.April, 1))
	if result.Processed != 0 || len(result.Errors) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if sink.count() != 1 {
		t.Fatalf("items created before the failure should remain, got %d", sink.count())
	}

	sink.failTemplate = ""
	rerun := engine.ProcessBirthdayTriggers(context.Background(), date(2024, time.April, 1))
	if rerun.Processed != 1 || rerun.Skipped != 1 || len(rerun.Errors) != 0 {
		t.Fatalf("unexpected rerun result: %+v", rerun)
	}
	if sink.count() != 2 {
		t.Fatalf("expected both items after rerun, got %d", sink.count())
	}
}

func TestEngine_ProcessBirthdayTriggers_TopLevelFailure(t *testing.T) {
	emps := newFakeEmployees()
	emps.listErr = errors.New("connection refused")
	engine := newTestEngine(emps, newFakeTemplates(), nil, newFakeSink(), Options{})

	all := engine.ProcessAllTriggers(context.Background(), date(2024, time.March, 15))

	if all.Birthdays.Processed != 0 || len(all.Birthdays.Errors) != 1 {
		t.Fatalf("unexpected birthday result: %+v", all.Birthdays)
	}
	if all.Birthdays.Errors[0] != "Error processing birthday triggers: connection refused" {
		t.Fatalf("unexpected error: %q", all.Birthdays.Errors[0])
	}
	if len(all.CustomEvents.Errors) != 0 {
		t.Fatalf("custom branch should be unaffected, got %v", all.CustomEvents.Errors)
	}
}

func TestEngine_ProcessAllTriggers_Idempotent(t *testing.T) {
	bday := activeEmployee("emp-1", "company-1", "Hanako")
	bday.Birthday = datePtr(1990, time.March, 15)
	anniv := activeEmployee("emp-2", "company-1", "Jiro")
	anniv.HiredAt = datePtr(2019, time.March, 15)

	templates := newFakeTemplates(
		tpl("tpl-b1", "company-1", "birthday"),
		tpl("tpl-b2", "company-1", "birthday"),
		tpl("tpl-a1", "company-1", "anniversary"),
	)
	sink := newFakeSink()
	engine := newTestEngine(newFakeEmployees(bday, anniv), templates, nil, sink, Options{})
	runDate := date(2024, time.March, 15)

	first := engine.ProcessAllTriggers(context.Background(), runDate)
	if first.Birthdays.Processed != 1 || first.Anniversaries.Processed != 1 {
		t.Fatalf("unexpected first run: %+v", first)
	}
	if sink.count() != 3 {
		t.Fatalf("expected 3 items, got %d", sink.count())
	}

	second := engine.ProcessAllTriggers(context.Background(), runDate)
	if sink.count() != 3 {
		t.Fatalf("rerun must not duplicate items, got %d", sink.count())
	}
	if second.Birthdays.Processed != 0 || second.Birthdays.Skipped != 2 {
		t.Fatalf("unexpected birthday rerun: %+v", second.Birthdays)
	}
	if second.Anniversaries.Processed != 0 || second.Anniversaries.Skipped != 1 {
		t.Fatalf("unexpected anniversary rerun: %+v", second.Anniversaries)
	}
	if second.ErrorCount() != 0 {
		t.Fatalf("rerun should not report errors, got %+v", second)
	}
}

func TestEngine_ProcessAnniversaryTriggers_YearGate(t *testing.T) {
	hiredToday := activeEmployee("emp-0", "company-1", "New Hire")
	hiredToday.HiredAt = datePtr(2024, time.March, 15)
	veteran := activeEmployee("emp-4", "company-1", "Veteran")
	veteran.HiredAt = datePtr(2020, time.March, 15)
	oneYear := activeEmployee("emp-1", "company-1", "Rookie")
	oneYear.HiredAt = datePtr(2023, time.March, 15)
	optedOut := activeEmployee("emp-x", "company-1", "Quiet")
	optedOut.HiredAt = datePtr(2010, time.March, 15)
	optedOut.AnniversaryNotificationsEnabled = false

	sink := newFakeSink()
	engine := newTestEngine(
		newFakeEmployees(hiredToday, veteran, oneYear, optedOut),
		newFakeTemplates(tpl("tpl-a", "company-1", "anniversary")),
		nil, sink, Options{},
	)

	result := engine.ProcessAnniversaryTriggers(context.Background(), date(2024, time.March, 15))

	if result.Processed != 2 || len(result.Errors) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got := sink.forEmployee("emp-0", timeline.TypeAnniversary); len(got) != 0 {
		t.Fatalf("same-day hire must not trigger, got %d items", len(got))
	}
	if got := sink.forEmployee("emp-x", timeline.TypeAnniversary); len(got) != 0 {
		t.Fatalf("opted-out employee must not trigger, got %d items", len(got))
	}

	items := sink.forEmployee("emp-4", timeline.TypeAnniversary)
	if len(items) != 1 {
		t.Fatalf("expected one anniversary item, got %d", len(items))
	}
	if items[0].Metadata.YearsOfService == nil || *items[0].Metadata.YearsOfService != 4 {
		t.Fatalf("unexpected years of service: %+v", items[0].Metadata)
	}
	if items[0].Title != "🏆 4 years with us!" {
		t.Fatalf("unexpected title %q", items[0].Title)
	}

	rookie := sink.forEmployee("emp-1", timeline.TypeAnniversary)
	if len(rookie) != 1 || rookie[0].Title != "🏆 1 year with us!" {
		t.Fatalf("unexpected rookie items: %+v", rookie)
	}
}

func TestEngine_LeapDayBirthday(t *testing.T) {
	emp := activeEmployee("emp-1", "company-1", "Leap")
	emp.Birthday = datePtr(2000, time.February, 29)
	templates := newFakeTemplates(tpl("tpl-1", "company-1", "birthday"))

	cases := []struct {
		name    string
		runDate time.Time
		want    int
	}{
		{name: "non-leap feb 28", runDate: date(2023, time.February, 28), want: 1},
		{name: "non-leap mar 1", runDate: date(2023, time.March, 1), want: 0},
		{name: "leap feb 28", runDate: date(2024, time.February, 28), want: 0},
		{name: "leap feb 29", runDate: date(2024, time.February, 29), want: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sink := newFakeSink()
			engine := newTestEngine(newFakeEmployees(emp), templates, nil, sink, Options{})

			result := engine.ProcessBirthdayTriggers(context.Background(), tc.runDate)
			if result.Processed != tc.want {
				t.Fatalf("expected processed=%d, got %+v", tc.want, result)
			}
		})
	}
}

func TestEngine_ProcessCustomEventTriggers(t *testing.T) {
	emp := activeEmployee("emp-1", "company-1", "Hanako")
	former := activeEmployee("emp-2", "company-1", "Former")
	former.Status = employee.StatusInactive

	events := &fakeEvents{events: []*event.Event{
		{ID: "ev-recurring", CompanyID: "company-1", EmployeeID: "emp-1", Name: "Promotion", EventDate: date(2019, time.October, 20), IsRecurring: true, ReminderDaysBefore: 3, TemplateID: strPtr("tpl-c"), IsActive: true},
		{ID: "ev-oneshot", CompanyID: "company-1", EmployeeID: "emp-1", Name: "Relocation", EventDate: date(2024, time.October, 17), TemplateID: strPtr("tpl-c"), IsActive: true},
		{ID: "ev-no-template", CompanyID: "company-1", EmployeeID: "emp-1", Name: "Untemplated", EventDate: date(2020, time.October, 17), IsRecurring: true, IsActive: true},
		{ID: "ev-deleted", CompanyID: "company-1", EmployeeID: "emp-1", Name: "Deleted", EventDate: date(2020, time.October, 17), IsRecurring: true, TemplateID: strPtr("tpl-c"), IsActive: false},
		{ID: "ev-former", CompanyID: "company-1", EmployeeID: "emp-2", Name: "Former", EventDate: date(2020, time.October, 17), IsRecurring: true, TemplateID: strPtr("tpl-c"), IsActive: true},
		{ID: "ev-foreign", CompanyID: "company-1", EmployeeID: "emp-1", Name: "Foreign", EventDate: date(2021, time.October, 17), IsRecurring: true, TemplateID: strPtr("tpl-foreign"), IsActive: true},
	}}
	templates := newFakeTemplates(tpl("tpl-c", "company-1"), tpl("tpl-foreign", "company-2"))
	sink := newFakeSink()
	engine := newTestEngine(newFakeEmployees(emp, former), templates, events, sink, Options{})

	result := engine.ProcessCustomEventTriggers(context.Background(), date(2024, time.October, 17))

	if result.Processed != 2 {
		t.Fatalf("expected processed=2, got %+v", result)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("expected two errors, got %v", result.Errors)
	}
	if result.Errors[0] != "Error processing custom for event ev-no-template: custom event ev-no-template has no template" {
		t.Fatalf("unexpected error %q", result.Errors[0])
	}
	if !strings.Contains(result.Errors[1], "tpl-foreign does not belong to company company-1") {
		t.Fatalf("unexpected error %q", result.Errors[1])
	}

	items := sink.forEmployee("emp-1", timeline.TypeCustom)
	if len(items) != 2 {
		t.Fatalf("expected two custom items, got %d", len(items))
	}
	recurring := items[0]
	if recurring.Metadata.EventID != "ev-recurring" || recurring.Metadata.OccurrenceDate != "2024-10-20" {
		t.Fatalf("unexpected metadata: %+v", recurring.Metadata)
	}
	if recurring.Metadata.YearsSince == nil || *recurring.Metadata.YearsSince != 5 {
		t.Fatalf("unexpected years since: %+v", recurring.Metadata)
	}
	if recurring.Metadata.AutomationTrigger != "custom:ev-recurring" {
		t.Fatalf("unexpected trigger %q", recurring.Metadata.AutomationTrigger)
	}
	if got := *recurring.AutomationKey; got != "custom:ev-recurring:emp-1:tpl-c:2024-10-20" {
		t.Fatalf("automation key should carry the occurrence date, got %q", got)
	}
	if recurring.Metadata.Date != "2024-10-17" {
		t.Fatalf("metadata date should be the run date, got %q", recurring.Metadata.Date)
	}
	if !strings.HasPrefix(recurring.Content, "Coming up on 2024-10-20.") {
		t.Fatalf("reminder content should name the occurrence date, got %q", recurring.Content)
	}
	if items[1].Metadata.EventID != "ev-oneshot" || items[1].Metadata.YearsSince != nil {
		t.Fatalf("unexpected one-shot metadata: %+v", items[1].Metadata)
	}
	if got := sink.forEmployee("emp-2", timeline.TypeCustom); len(got) != 0 {
		t.Fatalf("inactive employee must be skipped, got %d", len(got))
	}
}

func TestEngine_ProcessCustomEventTriggers_ReminderChangeDoesNotRefire(t *testing.T) {
	emp := activeEmployee("emp-1", "company-1", "Hanako")
	ev := &event.Event{ID: "ev-1", CompanyID: "company-1", EmployeeID: "emp-1", Name: "Promotion", EventDate: date(2019, time.October, 20), IsRecurring: true, ReminderDaysBefore: 3, TemplateID: strPtr("tpl-c"), IsActive: true}
	events := &fakeEvents{events: []*event.Event{ev}}
	sink := newFakeSink()
	engine := newTestEngine(newFakeEmployees(emp), newFakeTemplates(tpl("tpl-c", "company-1")), events, sink, Options{})

	first := engine.ProcessCustomEventTriggers(context.Background(), date(2024, time.October, 17))
	if first.Processed != 1 || first.Skipped != 0 {
		t.Fatalf("unexpected first run: %+v", first)
	}

	ev.ReminderDaysBefore = 1
	second := engine.ProcessCustomEventTriggers(context.Background(), date(2024, time.October, 19))
	if second.Processed != 0 || second.Skipped != 1 {
		t.Fatalf("same occurrence must be suppressed after reminder change, got %+v", second)
	}
	if got := sink.forEmployee("emp-1", timeline.TypeCustom); len(got) != 1 {
		t.Fatalf("expected one custom item, got %d", len(got))
	}

	// 翌年の発生は別キーになる
	third := engine.ProcessCustomEventTriggers(context.Background(), date(2025, time.October, 19))
	if third.Processed != 1 {
		t.Fatalf("next occurrence should fire, got %+v", third)
	}
}

func TestEngine_RunLockHeld(t *testing.T) {
	emp := activeEmployee("emp-1", "company-1", "Hanako")
	emp.Birthday = datePtr(1990, time.March, 15)
	locker := &stubLocker{held: true}
	sink := newFakeSink()
	engine := newTestEngine(newFakeEmployees(emp), newFakeTemplates(tpl("tpl-1", "company-1", "birthday")), nil, sink, Options{Locker: locker})

	result := engine.ProcessBirthdayTriggers(context.Background(), date(2024, time.March, 15))

	if result.Processed != 0 || len(result.Errors) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !strings.Contains(result.Errors[0], "run already in progress") {
		t.Fatalf("unexpected error %q", result.Errors[0])
	}
	if sink.count() != 0 {
		t.Fatalf("locked run must not write, got %d", sink.count())
	}
	if locker.keys[0] != "automation:birthday:2024-03-15" {
		t.Fatalf("unexpected lock key %q", locker.keys[0])
	}
}

func TestEngine_RunLockReleasedAndErrorsTolerated(t *testing.T) {
	emp := activeEmployee("emp-1", "company-1", "Hanako")
	emp.Birthday = datePtr(1990, time.March, 15)
	templates := newFakeTemplates(tpl("tpl-1", "company-1", "birthday"))

	locker := &stubLocker{}
	engine := newTestEngine(newFakeEmployees(emp), templates, nil, newFakeSink(), Options{Locker: locker})
	if result := engine.ProcessBirthdayTriggers(context.Background(), date(2024, time.March, 15)); result.Processed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if locker.released != 1 {
		t.Fatalf("expected lock release, got %d", locker.released)
	}

	broken := &stubLocker{err: errors.New("redis down")}
	engine = newTestEngine(newFakeEmployees(emp), templates, nil, newFakeSink(), Options{Locker: broken})
	if result := engine.ProcessBirthdayTriggers(context.Background(), date(2024, time.March, 15)); result.Processed != 1 {
		t.Fatalf("lock backend failure should not block the run: %+v", result)
	}
}

func TestEngine_RecoversPanics(t *testing.T) {
	first := activeEmployee("emp-1", "company-panic", "Boom")
	first.Birthday = datePtr(1990, time.March, 15)
	second := activeEmployee("emp-2", "company-1", "Fine")
	second.Birthday = datePtr(1991, time.March, 15)

	templates := newFakeTemplates(tpl("tpl-1", "company-1", "birthday"))
	templates.panicCompany = "company-panic"
	engine := newTestEngine(newFakeEmployees(first, second), templates, nil, newFakeSink(), Options{})

	result := engine.ProcessBirthdayTriggers(context.Background(), date(2024, time.March, 15))

	if result.Processed != 1 || len(result.Errors) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !strings.Contains(result.Errors[0], "panic: template catalog exploded") {
		t.Fatalf("unexpected error %q", result.Errors[0])
	}
}

func TestEngine_StopsWhenContextDone(t *testing.T) {
	emp := activeEmployee("emp-1", "company-1", "Hanako")
	emp.Birthday = datePtr(1990, time.March, 15)
	sink := newFakeSink()
	engine := newTestEngine(newFakeEmployees(emp), newFakeTemplates(tpl("tpl-1", "company-1", "birthday")), nil, sink, Options{RunTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := engine.ProcessBirthdayTriggers(ctx, date(2024, time.March, 15))

	if result.Processed != 0 || sink.count() != 0 {
		t.Fatalf("cancelled run must not write: %+v", result)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], context.Canceled.Error()) {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
}

func TestEngine_NotifierFailureIsNonFatal(t *testing.T) {
	emp := activeEmployee("emp-1", "company-1", "Hanako")
	emp.Birthday = datePtr(1990, time.March, 15)
	notifier := &recordingNotifier{err: errors.New("broker closed")}
	sink := newFakeSink()
	engine := newTestEngine(newFakeEmployees(emp), newFakeTemplates(tpl("tpl-1", "company-1", "birthday")), nil, sink, Options{Notifier: notifier})

	result := engine.ProcessBirthdayTriggers(context.Background(), date(2024, time.March, 15))

	if result.Processed != 1 || sink.count() != 1 {
		t.Fatalf("item should stay created: %+v", result)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "broker closed") {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if len(notifier.items) != 1 || notifier.items[0].ID != "item-1" {
		t.Fatalf("notifier should receive the saved item, got %+v", notifier.items)
	}

	// 抑止された項目は通知しない。
	engine.ProcessBirthdayTriggers(context.Background(), date(2024, time.March, 15))
	if len(notifier.items) != 1 {
		t.Fatalf("suppressed items must not be notified, got %d", len(notifier.items))
	}
}

func TestEngine_RecordsMetrics(t *testing.T) {
	emp := activeEmployee("emp-1", "company-1", "Hanako")
	emp.Birthday = datePtr(1990, time.March, 15)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	engine := newTestEngine(
		newFakeEmployees(emp),
		newFakeTemplates(tpl("tpl-1", "company-1", "birthday"), tpl("tpl-2", "company-1", "birthday")),
		nil, newFakeSink(), Options{Metrics: metrics},
	)

	engine.ProcessBirthdayTriggers(context.Background(), date(2024, time.March, 15))
	engine.ProcessBirthdayTriggers(context.Background(), date(2024, time.March, 15))

	if got := testutil.ToFloat64(metrics.itemsCreated.WithLabelValues("birthday")); got != 2 {
		t.Fatalf("expected 2 created, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.itemsSkipped.WithLabelValues("birthday")); got != 2 {
		t.Fatalf("expected 2 skipped, got %v", got)
	}
	if got := testutil.CollectAndCount(metrics.runDuration); got != 1 {
		t.Fatalf("expected one duration series, got %d", got)
	}
}

func TestParseKind(t *testing.T) {
	for _, kind := range Kinds() {
		got, err := ParseKind(string(kind))
		if err != nil || got != kind {
			t.Fatalf("ParseKind(%q) = %q, %v", kind, got, err)
		}
	}
	if _, err := ParseKind("holiday"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
