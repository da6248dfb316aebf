package employee

import "time"

// Status は社員の状態を表します。
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Employee は社員エンティティです。
// Birthday は月日のみ意味を持ち、年は参照しません。
type Employee struct {
	ID                              string
	CompanyID                       string
	EmployeeCode                    string
	Name                            string
	Email                           string
	Status                          Status
	Birthday                        *time.Time
	HiredAt                         *time.Time
	BirthdayNotificationsEnabled    bool
	AnniversaryNotificationsEnabled bool
	CreatedAt                       time.Time
	UpdatedAt                       time.Time
}

// IsActive は自動配信の対象となる在籍状態かを返します。
func (e *Employee) IsActive() bool {
	return e != nil && e.Status == StatusActive
}
