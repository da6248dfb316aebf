package template

import "time"

const (
	TagBirthday    = "birthday"
	TagAnniversary = "anniversary"
)

// Template は会社ごとのコンテンツテンプレートです。
type Template struct {
	ID          string
	CompanyID   string
	Name        string
	Description *string
	Category    string
	Tags        []string
	IsActive    bool
	CreatedAt   time.Time
}

// HasTag は tags に tag が含まれるかを返します。
func (t *Template) HasTag(tag string) bool {
	if t == nil {
		return false
	}
	for _, candidate := range t.Tags {
		if candidate == tag {
			return true
		}
	}
	return false
}
