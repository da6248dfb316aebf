package event

import "errors"

var (
	ErrInvalidID           = errors.New("event: invalid id")
	ErrInvalidName         = errors.New("event: invalid name")
	ErrInvalidEventDate    = errors.New("event: invalid event date")
	ErrInvalidEmployeeID   = errors.New("event: invalid employee id")
	ErrInvalidCompanyID    = errors.New("event: invalid company id")
	ErrInvalidReminderDays = errors.New("event: invalid reminder days")
	ErrInvalidDaysAhead    = errors.New("event: invalid days ahead")
	ErrInvalidWindow       = errors.New("event: invalid upcoming window")
	ErrEventNotFound       = errors.New("event: not found")
	ErrEmployeeNotFound    = errors.New("event: employee not found")
	ErrTemplateNotFound    = errors.New("event: template not found")
)
