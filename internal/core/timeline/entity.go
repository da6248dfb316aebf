package timeline

import (
	"strings"
	"time"
)

// Type はタイムライン項目の種別です。
type Type string

const (
	TypeBirthday    Type = "birthday"
	TypeAnniversary Type = "anniversary"
	TypeCustom      Type = "custom"
	TypeCompliment  Type = "compliment"
	TypeMedia       Type = "media"
	TypeGeneral     Type = "general"
)

// Item は社員のタイムラインに表示されるコンテンツです。
// TemplateID は称賛やメディア共有など、テンプレート由来でない項目では nil になります。
type Item struct {
	ID            string
	EmployeeID    string
	TemplateID    *string
	Title         string
	Content       string
	Type          Type
	IsVisible     bool
	Metadata      Metadata
	AutomationKey *string
	CreatedAt     time.Time
}

// Metadata は自動生成の由来を記録します。jsonb として保存され検索可能です。
type Metadata struct {
	AutomationTrigger string `json:"automationTrigger,omitempty"`
	TemplateID        string `json:"templateId,omitempty"`
	Date              string `json:"date,omitempty"`
	YearsOfService    *int   `json:"yearsOfService,omitempty"`
	EventID           string `json:"eventId,omitempty"`
	OccurrenceDate    string `json:"occurrenceDate,omitempty"`
	YearsSince        *int   `json:"yearsSince,omitempty"`
	AutomationKey     string `json:"automationKey,omitempty"`
	RunID             string `json:"runId,omitempty"`
}

// AutomationKey は (トリガー, 社員, テンプレート, 日付) から冪等キーを組み立てます。
func AutomationKey(trigger, employeeID, templateID, date string) string {
	return strings.Join([]string{trigger, employeeID, templateID, date}, ":")
}
