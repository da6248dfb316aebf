package handler

import (
	"context"

	"github.com/ogurasousui/engagement-automation/internal/core/employee"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// EmployeeGrpcHandler は EmployeeService の gRPC 実装です。
type EmployeeGrpcHandler struct {
	svc employee.UseCase
}

// NewEmployeeGrpcHandler は EmployeeGrpcHandler を生成します。
func NewEmployeeGrpcHandler(svc employee.UseCase) *EmployeeGrpcHandler {
	return &EmployeeGrpcHandler{svc: svc}
}

// ServiceDesc は EmployeeService の記述子を返します。
func (h *EmployeeGrpcHandler) ServiceDesc() *grpc.ServiceDesc {
	return serviceDesc(EmployeeServiceName,
		unaryMethod(EmployeeServiceName, "GetEmployee", h.GetEmployee),
		unaryMethod(EmployeeServiceName, "UpdateAutomationSettings", h.UpdateAutomationSettings),
	)
}

// GetEmployee は社員を取得します。
func (h *EmployeeGrpcHandler) GetEmployee(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, errRequestRequired
	}

	id, err := stringField(req, "id")
	if err != nil {
		return nil, err
	}

	found, err := h.svc.GetEmployee(ctx, employee.GetEmployeeInput{ID: id})
	if err != nil {
		return nil, toStatusError(err)
	}

	return newStruct(map[string]any{"employee": employeeFields(found)})
}

// UpdateAutomationSettings は誕生日・入社記念日の配信可否を更新します。
func (h *EmployeeGrpcHandler) UpdateAutomationSettings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, errRequestRequired
	}

	id, err := stringField(req, "id")
	if err != nil {
		return nil, err
	}
	birthday, err := optionalBool(req, "birthdayNotificationsEnabled")
	if err != nil {
		return nil, err
	}
	anniversary, err := optionalBool(req, "anniversaryNotificationsEnabled")
	if err != nil {
		return nil, err
	}

	updated, err := h.svc.UpdateAutomationSettings(ctx, employee.UpdateAutomationSettingsInput{
		ID:                              id,
		BirthdayNotificationsEnabled:    birthday,
		AnniversaryNotificationsEnabled: anniversary,
	})
	if err != nil {
		return nil, toStatusError(err)
	}

	return newStruct(map[string]any{"employee": employeeFields(updated)})
}
