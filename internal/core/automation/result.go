package automation

import "fmt"

// RunResult は 1 種別の実行結果です。
// Processed は 1 件以上の項目を新規作成できた対象の数、Skipped は冪等キーにより抑止した項目数です。
type RunResult struct {
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
}

func newRunResult() RunResult {
	return RunResult{Errors: []string{}}
}

func (r *RunResult) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// AllResult は ProcessAllTriggers の結果です。
type AllResult struct {
	Birthdays     RunResult `json:"birthdays"`
	Anniversaries RunResult `json:"anniversaries"`
	CustomEvents  RunResult `json:"customEvents"`
}

// ErrorCount は全種別のエラー件数の合計です。
func (r AllResult) ErrorCount() int {
	return len(r.Birthdays.Errors) + len(r.Anniversaries.Errors) + len(r.CustomEvents.Errors)
}
