package handler

import (
	"context"
	"errors"

	"github.com/ogurasousui/engagement-automation/internal/core/employee"
	"github.com/ogurasousui/engagement-automation/internal/core/event"
	"github.com/ogurasousui/engagement-automation/internal/core/template"
	"github.com/ogurasousui/engagement-automation/internal/core/timeline"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func toStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, employee.ErrInvalidID),
		errors.Is(err, employee.ErrNothingToUpdate),
		errors.Is(err, event.ErrInvalidID),
		errors.Is(err, event.ErrInvalidName),
		errors.Is(err, event.ErrInvalidEventDate),
		errors.Is(err, event.ErrInvalidEmployeeID),
		errors.Is(err, event.ErrInvalidCompanyID),
		errors.Is(err, event.ErrInvalidReminderDays),
		errors.Is(err, event.ErrInvalidDaysAhead),
		errors.Is(err, event.ErrInvalidWindow),
		errors.Is(err, timeline.ErrInvalidEmployeeID),
		errors.Is(err, timeline.ErrInvalidPageSize),
		errors.Is(err, timeline.ErrMissingAutomationKey):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, employee.ErrEmployeeNotFound),
		errors.Is(err, event.ErrEventNotFound),
		errors.Is(err, event.ErrEmployeeNotFound),
		errors.Is(err, event.ErrTemplateNotFound),
		errors.Is(err, template.ErrTemplateNotFound),
		errors.Is(err, timeline.ErrEmployeeNotFound),
		errors.Is(err, timeline.ErrTemplateNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
