package handler

import (
	"context"
	"fmt"

	"github.com/ogurasousui/engagement-automation/internal/core/timeline"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// TimelineGrpcHandler は TimelineService の gRPC 実装です。
type TimelineGrpcHandler struct {
	svc timeline.UseCase
}

// NewTimelineGrpcHandler は TimelineGrpcHandler を生成します。
func NewTimelineGrpcHandler(svc timeline.UseCase) *TimelineGrpcHandler {
	return &TimelineGrpcHandler{svc: svc}
}

// ServiceDesc は TimelineService の記述子を返します。
func (h *TimelineGrpcHandler) ServiceDesc() *grpc.ServiceDesc {
	return serviceDesc(TimelineServiceName,
		unaryMethod(TimelineServiceName, "ListTimelineItems", h.ListTimelineItems),
	)
}

// ListTimelineItems は社員のタイムライン項目を新しい順に返します。
func (h *TimelineGrpcHandler) ListTimelineItems(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, errRequestRequired
	}

	employeeID, err := stringField(req, "employeeId")
	if err != nil {
		return nil, err
	}
	pageSize, err := optionalInt(req, "pageSize")
	if err != nil {
		return nil, err
	}

	in := timeline.ListItemsInput{EmployeeID: employeeID}
	if pageSize != nil {
		in.PageSize = *pageSize
	}

	items, err := h.svc.ListItems(ctx, in)
	if err != nil {
		return nil, toStatusError(err)
	}

	out := make([]any, 0, len(items))
	for _, item := range items {
		fields, err := timelineItemFields(item)
		if err != nil {
			return nil, status.Error(codes.Internal, fmt.Sprintf("encode item %s: %v", item.ID, err))
		}
		out = append(out, fields)
	}

	return newStruct(map[string]any{"items": out})
}
