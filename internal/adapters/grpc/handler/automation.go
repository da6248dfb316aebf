package handler

import (
	"context"
	"time"

	"github.com/ogurasousui/engagement-automation/internal/core/automation"
	"github.com/ogurasousui/engagement-automation/internal/core/calendar"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// AutomationGrpcHandler は AutomationService の gRPC 実装です。
// runDate を省略した場合は location における今日を実行日とします。
type AutomationGrpcHandler struct {
	engine   automation.UseCase
	location *time.Location
	now      func() time.Time
}

// NewAutomationGrpcHandler は AutomationGrpcHandler を生成します。
func NewAutomationGrpcHandler(engine automation.UseCase, location *time.Location) *AutomationGrpcHandler {
	if location == nil {
		location = time.Local
	}
	return &AutomationGrpcHandler{engine: engine, location: location, now: time.Now}
}

// ServiceDesc は AutomationService の記述子を返します。
func (h *AutomationGrpcHandler) ServiceDesc() *grpc.ServiceDesc {
	return serviceDesc(AutomationServiceName,
		unaryMethod(AutomationServiceName, "ProcessAllTriggers", h.ProcessAllTriggers),
		unaryMethod(AutomationServiceName, "ProcessBirthdayTriggers", h.ProcessBirthdayTriggers),
		unaryMethod(AutomationServiceName, "ProcessAnniversaryTriggers", h.ProcessAnniversaryTriggers),
		unaryMethod(AutomationServiceName, "ProcessCustomEventTriggers", h.ProcessCustomEventTriggers),
	)
}

// ProcessAllTriggers は全種別を実行し、種別ごとの結果を返します。
func (h *AutomationGrpcHandler) ProcessAllTriggers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runDate, err := h.runDate(req)
	if err != nil {
		return nil, err
	}

	result := h.engine.ProcessAllTriggers(ctx, runDate)

	return newStruct(map[string]any{
		"runDate":       calendar.FormatDate(runDate),
		"birthdays":     runResultFields(result.Birthdays),
		"anniversaries": runResultFields(result.Anniversaries),
		"customEvents":  runResultFields(result.CustomEvents),
	})
}

// ProcessBirthdayTriggers は誕生日トリガーを実行します。
func (h *AutomationGrpcHandler) ProcessBirthdayTriggers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.processOne(ctx, req, h.engine.ProcessBirthdayTriggers)
}

// ProcessAnniversaryTriggers は入社記念日トリガーを実行します。
func (h *AutomationGrpcHandler) ProcessAnniversaryTriggers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.processOne(ctx, req, h.engine.ProcessAnniversaryTriggers)
}

// ProcessCustomEventTriggers はカスタムイベントトリガーを実行します。
func (h *AutomationGrpcHandler) ProcessCustomEventTriggers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.processOne(ctx, req, h.engine.ProcessCustomEventTriggers)
}

func (h *AutomationGrpcHandler) processOne(ctx context.Context, req *structpb.Struct, run func(context.Context, time.Time) automation.RunResult) (*structpb.Struct, error) {
	runDate, err := h.runDate(req)
	if err != nil {
		return nil, err
	}

	fields := runResultFields(run(ctx, runDate))
	fields["runDate"] = calendar.FormatDate(runDate)
	return newStruct(fields)
}

func (h *AutomationGrpcHandler) runDate(req *structpb.Struct) (time.Time, error) {
	if req == nil {
		return time.Time{}, errRequestRequired
	}
	date, err := optionalDate(req, "runDate")
	if err != nil {
		return time.Time{}, err
	}
	if date == nil {
		return calendar.Today(h.now(), h.location), nil
	}
	return calendar.DateOf(*date), nil
}
