package handler

import (
	"context"
	"testing"
	"time"

	"github.com/ogurasousui/engagement-automation/internal/core/automation"
	"github.com/ogurasousui/engagement-automation/internal/core/employee"
	"github.com/ogurasousui/engagement-automation/internal/core/event"
	"github.com/ogurasousui/engagement-automation/internal/core/timeline"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type stubAutomationUseCase struct {
	runDates []time.Time
	calls    []string

	allOut    automation.AllResult
	singleOut automation.RunResult
}

func (s *stubAutomationUseCase) record(name string, runDate time.Time) {
	s.calls = append(s.calls, name)
	s.runDates = append(s.runDates, runDate)
}

func (s *stubAutomationUseCase) ProcessAllTriggers(ctx context.Context, runDate time.Time) automation.AllResult {
	s.record("all", runDate)
	return s.allOut
}

func (s *stubAutomationUseCase) ProcessBirthdayTriggers(ctx context.Context, runDate time.Time) automation.RunResult {
	s.record("birthday", runDate)
	return s.singleOut
}

func (s *stubAutomationUseCase) ProcessAnniversaryTriggers(ctx context.Context, runDate time.Time) automation.RunResult {
	s.record("anniversary", runDate)
	return s.singleOut
}

func (s *stubAutomationUseCase) ProcessCustomEventTriggers(ctx context.Context, runDate time.Time) automation.RunResult {
	s.record("custom", runDate)
	return s.singleOut
}

type stubEventUseCase struct {
	createInput event.CreateEventInput
	createOut   *event.Event
	createErr   error

	getInput event.GetEventInput
	getOut   *event.Event
	getErr   error

	listByEmployeeInput event.ListEventsByEmployeeInput
	listByCompanyInput  event.ListEventsByCompanyInput
	listOut             []*event.Event
	listErr             error

	updateInput event.UpdateEventInput
	updateOut   *event.Event
	updateErr   error

	deleteInput event.DeleteEventInput
	deleteErr   error

	upcomingInput event.UpcomingEventsInput
	upcomingOut   []*event.Event
	upcomingErr   error
}

func (s *stubEventUseCase) CreateEvent(ctx context.Context, in event.CreateEventInput) (*event.Event, error) {
	s.createInput = in
	return s.createOut, s.createErr
}

func (s *stubEventUseCase) GetEvent(ctx context.Context, in event.GetEventInput) (*event.Event, error) {
	s.getInput = in
	return s.getOut, s.getErr
}

func (s *stubEventUseCase) ListEventsByEmployee(ctx context.Context, in event.ListEventsByEmployeeInput) ([]*event.Event, error) {
	s.listByEmployeeInput = in
	return s.listOut, s.listErr
}

func (s *stubEventUseCase) ListEventsByCompany(ctx context.Context, in event.ListEventsByCompanyInput) ([]*event.Event, error) {
	s.listByCompanyInput = in
	return s.listOut, s.listErr
}

func (s *stubEventUseCase) UpdateEvent(ctx context.Context, in event.UpdateEventInput) (*event.Event, error) {
	s.updateInput = in
	return s.updateOut, s.updateErr
}

func (s *stubEventUseCase) DeleteEvent(ctx context.Context, in event.DeleteEventInput) error {
	s.deleteInput = in
	return s.deleteErr
}

func (s *stubEventUseCase) UpcomingEvents(ctx context.Context, in event.UpcomingEventsInput) ([]*event.Event, error) {
	s.upcomingInput = in
	return s.upcomingOut, s.upcomingErr
}

type stubEmployeeUseCase struct {
	getInput employee.GetEmployeeInput
	getOut   *employee.Employee
	getErr   error

	updateInput employee.UpdateAutomationSettingsInput
	updateOut   *employee.Employee
	updateErr   error
}

func (s *stubEmployeeUseCase) GetEmployee(ctx context.Context, in employee.GetEmployeeInput) (*employee.Employee, error) {
	s.getInput = in
	return s.getOut, s.getErr
}

func (s *stubEmployeeUseCase) UpdateAutomationSettings(ctx context.Context, in employee.UpdateAutomationSettingsInput) (*employee.Employee, error) {
	s.updateInput = in
	return s.updateOut, s.updateErr
}

type stubTimelineUseCase struct {
	listInput timeline.ListItemsInput
	listOut   []*timeline.Item
	listErr   error
}

func (s *stubTimelineUseCase) ListItems(ctx context.Context, in timeline.ListItemsInput) ([]*timeline.Item, error) {
	s.listInput = in
	return s.listOut, s.listErr
}

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("NewStruct error: %v", err)
	}
	return s
}

func assertCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected gRPC status error, got %v", err)
	}
	if st.Code() != want {
		t.Fatalf("expected code %s, got %s (%s)", want, st.Code(), st.Message())
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
