package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ogurasousui/engagement-automation/internal/core/automation"
	"github.com/ogurasousui/engagement-automation/internal/core/calendar"
	"github.com/ogurasousui/engagement-automation/internal/core/employee"
	"github.com/ogurasousui/engagement-automation/internal/core/event"
	"github.com/ogurasousui/engagement-automation/internal/core/timeline"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

var errRequestRequired = status.Error(codes.InvalidArgument, "request is required")

func invalidField(name string, err error) error {
	return status.Error(codes.InvalidArgument, fmt.Sprintf("%s: %v", name, err))
}

func isNull(v *structpb.Value) bool {
	_, ok := v.GetKind().(*structpb.Value_NullValue)
	return ok
}

// stringField は文字列フィールドを返します。未指定と null は空文字です。
func stringField(req *structpb.Struct, name string) (string, error) {
	v, ok := req.GetFields()[name]
	if !ok || isNull(v) {
		return "", nil
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", invalidField(name, errors.New("must be a string"))
	}
	return s.StringValue, nil
}

// optionalString は文字列フィールドと指定有無を返します。null は指定ありの nil です。
func optionalString(req *structpb.Struct, name string) (*string, bool, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return nil, false, nil
	}
	if isNull(v) {
		return nil, true, nil
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, true, invalidField(name, errors.New("must be a string"))
	}
	value := s.StringValue
	return &value, true, nil
}

func optionalBool(req *structpb.Struct, name string) (*bool, error) {
	v, ok := req.GetFields()[name]
	if !ok || isNull(v) {
		return nil, nil
	}
	b, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return nil, invalidField(name, errors.New("must be a boolean"))
	}
	value := b.BoolValue
	return &value, nil
}

func optionalInt(req *structpb.Struct, name string) (*int, error) {
	v, ok := req.GetFields()[name]
	if !ok || isNull(v) {
		return nil, nil
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return nil, invalidField(name, errors.New("must be a number"))
	}
	f := n.NumberValue
	if math.Trunc(f) != f || f > math.MaxInt32 || f < math.MinInt32 {
		return nil, invalidField(name, errors.New("must be an integer"))
	}
	value := int(f)
	return &value, nil
}

// optionalDate は YYYY-MM-DD 形式の日付フィールドを返します。
func optionalDate(req *structpb.Struct, name string) (*time.Time, error) {
	raw, err := stringField(req, name)
	if err != nil {
		return nil, err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parsed, err := calendar.ParseDate(raw)
	if err != nil {
		return nil, invalidField(name, err)
	}
	return &parsed, nil
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}

func stringsValue(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}

func optionalStringValue(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func optionalDateValue(v *time.Time) any {
	if v == nil {
		return nil
	}
	return calendar.FormatDate(*v)
}

func timestampValue(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func employeeFields(e *employee.Employee) map[string]any {
	if e == nil {
		return nil
	}
	return map[string]any{
		"id":                              e.ID,
		"companyId":                       e.CompanyID,
		"employeeCode":                    e.EmployeeCode,
		"name":                            e.Name,
		"email":                           e.Email,
		"status":                          string(e.Status),
		"birthday":                        optionalDateValue(e.Birthday),
		"hiredAt":                         optionalDateValue(e.HiredAt),
		"birthdayNotificationsEnabled":    e.BirthdayNotificationsEnabled,
		"anniversaryNotificationsEnabled": e.AnniversaryNotificationsEnabled,
		"createdAt":                       timestampValue(e.CreatedAt),
		"updatedAt":                       timestampValue(e.UpdatedAt),
	}
}

func eventFields(ev *event.Event) map[string]any {
	if ev == nil {
		return nil
	}
	return map[string]any{
		"id":                 ev.ID,
		"companyId":          ev.CompanyID,
		"employeeId":         ev.EmployeeID,
		"name":               ev.Name,
		"description":        optionalStringValue(ev.Description),
		"eventDate":          calendar.FormatDate(ev.EventDate),
		"isRecurring":        ev.IsRecurring,
		"reminderDaysBefore": ev.ReminderDaysBefore,
		"templateId":         optionalStringValue(ev.TemplateID),
		"isActive":           ev.IsActive,
		"createdAt":          timestampValue(ev.CreatedAt),
		"updatedAt":          timestampValue(ev.UpdatedAt),
	}
}

func eventList(events []*event.Event) []any {
	out := make([]any, 0, len(events))
	for _, ev := range events {
		out = append(out, eventFields(ev))
	}
	return out
}

func timelineItemFields(item *timeline.Item) (map[string]any, error) {
	if item == nil {
		return nil, nil
	}

	// Metadata は保存時と同じ JSON 表現で返す。
	raw, err := json.Marshal(item.Metadata)
	if err != nil {
		return nil, err
	}
	metadata := map[string]any{}
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, err
	}

	return map[string]any{
		"id":            item.ID,
		"employeeId":    item.EmployeeID,
		"templateId":    optionalStringValue(item.TemplateID),
		"title":         item.Title,
		"content":       item.Content,
		"type":          string(item.Type),
		"isVisible":     item.IsVisible,
		"metadata":      metadata,
		"automationKey": optionalStringValue(item.AutomationKey),
		"createdAt":     timestampValue(item.CreatedAt),
	}, nil
}

func runResultFields(r automation.RunResult) map[string]any {
	return map[string]any{
		"processed": r.Processed,
		"skipped":   r.Skipped,
		"errors":    stringsValue(r.Errors),
	}
}
