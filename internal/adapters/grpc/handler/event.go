package handler

import (
	"context"

	"github.com/ogurasousui/engagement-automation/internal/core/event"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// EmployeeEventGrpcHandler は EmployeeEventService の gRPC 実装です。
type EmployeeEventGrpcHandler struct {
	svc event.UseCase
}

// NewEmployeeEventGrpcHandler は EmployeeEventGrpcHandler を生成します。
func NewEmployeeEventGrpcHandler(svc event.UseCase) *EmployeeEventGrpcHandler {
	return &EmployeeEventGrpcHandler{svc: svc}
}

// ServiceDesc は EmployeeEventService の記述子を返します。
func (h *EmployeeEventGrpcHandler) ServiceDesc() *grpc.ServiceDesc {
	return serviceDesc(EmployeeEventServiceName,
		unaryMethod(EmployeeEventServiceName, "CreateEvent", h.CreateEvent),
		unaryMethod(EmployeeEventServiceName, "GetEvent", h.GetEvent),
		unaryMethod(EmployeeEventServiceName, "ListEventsByEmployee", h.ListEventsByEmployee),
		unaryMethod(EmployeeEventServiceName, "ListEventsByCompany", h.ListEventsByCompany),
		unaryMethod(EmployeeEventServiceName, "UpdateEvent", h.UpdateEvent),
		unaryMethod(EmployeeEventServiceName, "DeleteEvent", h.DeleteEvent),
		unaryMethod(EmployeeEventServiceName, "UpcomingEvents", h.UpcomingEvents),
	)
}

// CreateEvent はカスタムイベントを登録します。
func (h *EmployeeEventGrpcHandler) CreateEvent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, errRequestRequired
	}

	companyID, err := stringField(req, "companyId")
	if err != nil {
		return nil, err
	}
	employeeID, err := stringField(req, "employeeId")
	if err != nil {
		return nil, err
	}
	name, err := stringField(req, "name")
	if err != nil {
		return nil, err
	}
	description, _, err := optionalString(req, "description")
	if err != nil {
		return nil, err
	}
	eventDate, err := optionalDate(req, "eventDate")
	if err != nil {
		return nil, err
	}
	isRecurring, err := optionalBool(req, "isRecurring")
	if err != nil {
		return nil, err
	}
	reminderDays, err := optionalInt(req, "reminderDaysBefore")
	if err != nil {
		return nil, err
	}
	templateID, _, err := optionalString(req, "templateId")
	if err != nil {
		return nil, err
	}

	in := event.CreateEventInput{
		CompanyID:   companyID,
		EmployeeID:  employeeID,
		Name:        name,
		Description: description,
		EventDate:   eventDate,
		IsRecurring: isRecurring,
		TemplateID:  templateID,
	}
	if reminderDays != nil {
		in.ReminderDaysBefore = *reminderDays
	}

	created, err := h.svc.CreateEvent(ctx, in)
	if err != nil {
		return nil, toStatusError(err)
	}

	return newStruct(map[string]any{"event": eventFields(created)})
}

// GetEvent は ID でイベントを取得します。
func (h *EmployeeEventGrpcHandler) GetEvent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, errRequestRequired
	}

	id, err := stringField(req, "id")
	if err != nil {
		return nil, err
	}

	found, err := h.svc.GetEvent(ctx, event.GetEventInput{ID: id})
	if err != nil {
		return nil, toStatusError(err)
	}

	return newStruct(map[string]any{"event": eventFields(found)})
}

// ListEventsByEmployee は社員のイベント一覧を返します。
func (h *EmployeeEventGrpcHandler) ListEventsByEmployee(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, errRequestRequired
	}

	employeeID, err := stringField(req, "employeeId")
	if err != nil {
		return nil, err
	}

	events, err := h.svc.ListEventsByEmployee(ctx, event.ListEventsByEmployeeInput{EmployeeID: employeeID})
	if err != nil {
		return nil, toStatusError(err)
	}

	return newStruct(map[string]any{"events": eventList(events)})
}

// ListEventsByCompany は会社のイベント一覧を返します。
func (h *EmployeeEventGrpcHandler) ListEventsByCompany(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, errRequestRequired
	}

	companyID, err := stringField(req, "companyId")
	if err != nil {
		return nil, err
	}

	events, err := h.svc.ListEventsByCompany(ctx, event.ListEventsByCompanyInput{CompanyID: companyID})
	if err != nil {
		return nil, toStatusError(err)
	}

	return newStruct(map[string]any{"events": eventList(events)})
}

// UpdateEvent はイベントを部分更新します。
// description と templateId は null を指定すると解除されます。
func (h *EmployeeEventGrpcHandler) UpdateEvent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, errRequestRequired
	}

	id, err := stringField(req, "id")
	if err != nil {
		return nil, err
	}
	name, _, err := optionalString(req, "name")
	if err != nil {
		return nil, err
	}
	description, descriptionSet, err := optionalString(req, "description")
	if err != nil {
		return nil, err
	}
	eventDate, err := optionalDate(req, "eventDate")
	if err != nil {
		return nil, err
	}
	isRecurring, err := optionalBool(req, "isRecurring")
	if err != nil {
		return nil, err
	}
	reminderDays, err := optionalInt(req, "reminderDaysBefore")
	if err != nil {
		return nil, err
	}
	templateID, templateSet, err := optionalString(req, "templateId")
	if err != nil {
		return nil, err
	}

	updated, err := h.svc.UpdateEvent(ctx, event.UpdateEventInput{
		ID:                 id,
		Name:               name,
		Description:        description,
		DescriptionSet:     descriptionSet,
		EventDate:          eventDate,
		IsRecurring:        isRecurring,
		ReminderDaysBefore: reminderDays,
		TemplateID:         templateID,
		TemplateIDSet:      templateSet,
	})
	if err != nil {
		return nil, toStatusError(err)
	}

	return newStruct(map[string]any{"event": eventFields(updated)})
}

// DeleteEvent はイベントを論理削除します。
func (h *EmployeeEventGrpcHandler) DeleteEvent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, errRequestRequired
	}

	id, err := stringField(req, "id")
	if err != nil {
		return nil, err
	}

	if err := h.svc.DeleteEvent(ctx, event.DeleteEventInput{ID: id}); err != nil {
		return nil, toStatusError(err)
	}

	return &structpb.Struct{}, nil
}

// UpcomingEvents は会社の直近イベントを返します。
func (h *EmployeeEventGrpcHandler) UpcomingEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, errRequestRequired
	}

	companyID, err := stringField(req, "companyId")
	if err != nil {
		return nil, err
	}
	daysAhead, err := optionalInt(req, "daysAhead")
	if err != nil {
		return nil, err
	}

	in := event.UpcomingEventsInput{CompanyID: companyID}
	if daysAhead != nil {
		in.DaysAhead = *daysAhead
	}

	events, err := h.svc.UpcomingEvents(ctx, in)
	if err != nil {
		return nil, toStatusError(err)
	}

	return newStruct(map[string]any{"events": eventList(events)})
}
