package timeline

import "errors"

var (
	ErrInvalidEmployeeID    = errors.New("timeline: invalid employee id")
	ErrInvalidPageSize      = errors.New("timeline: invalid page size")
	ErrMissingAutomationKey = errors.New("timeline: automation key is required")
	ErrEmployeeNotFound     = errors.New("timeline: employee not found")
	ErrTemplateNotFound     = errors.New("timeline: template not found")
)
