package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ogurasousui/engagement-automation/internal/core/calendar"
	"github.com/ogurasousui/engagement-automation/internal/core/template"
	"github.com/ogurasousui/engagement-automation/internal/core/timeline"
)

// UseCase は自動配信エンジンの公開操作です。
type UseCase interface {
	ProcessAllTriggers(ctx context.Context, runDate time.Time) AllResult
	ProcessBirthdayTriggers(ctx context.Context, runDate time.Time) RunResult
	ProcessAnniversaryTriggers(ctx context.Context, runDate time.Time) RunResult
	ProcessCustomEventTriggers(ctx context.Context, runDate time.Time) RunResult
}

// Options はエンジンの任意の協調者です。nil のものは無効化されます。
type Options struct {
	Notifier   Notifier
	Locker     RunLocker
	Metrics    *Metrics
	Logger     *zap.Logger
	RunTimeout time.Duration
}

// Engine は日付トリガーを評価し、テンプレートからタイムライン項目を生成します。
type Engine struct {
	employees EmployeeSource
	templates TemplateCatalog
	events    EventSource
	sink      ContentSink

	notifier Notifier
	locker   RunLocker
	metrics  *Metrics
	logger   *zap.Logger
	timeout  time.Duration
	newRunID func() string
}

var _ UseCase = (*Engine)(nil)

// NewEngine は Engine を生成します。
func NewEngine(employees EmployeeSource, templates TemplateCatalog, events EventSource, sink ContentSink, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		employees: employees,
		templates: templates,
		events:    events,
		sink:      sink,
		notifier:  opts.Notifier,
		locker:    opts.Locker,
		metrics:   opts.Metrics,
		logger:    logger,
		timeout:   opts.RunTimeout,
		newRunID:  func() string { return uuid.NewString() },
	}
}

// ProcessAllTriggers は全種別を並行に処理します。各種別の失敗は互いに影響しません。
func (e *Engine) ProcessAllTriggers(ctx context.Context, runDate time.Time) AllResult {
	var all AllResult

	// 各分岐はエラーを RunResult に閉じ込めるため、errgroup はキャンセルを伝播させない。
	var g errgroup.Group
	g.Go(func() error {
		all.Birthdays = e.ProcessBirthdayTriggers(ctx, runDate)
		return nil
	})
	g.Go(func() error {
		all.Anniversaries = e.ProcessAnniversaryTriggers(ctx, runDate)
		return nil
	})
	g.Go(func() error {
		all.CustomEvents = e.ProcessCustomEventTriggers(ctx, runDate)
		return nil
	})
	_ = g.Wait()

	return all
}

// ProcessBirthdayTriggers は runDate が誕生日の社員に誕生日コンテンツを生成します。
func (e *Engine) ProcessBirthdayTriggers(ctx context.Context, runDate time.Time) RunResult {
	return e.process(ctx, KindBirthday, runDate)
}

// ProcessAnniversaryTriggers は runDate が入社記念日の社員に記念日コンテンツを生成します。
func (e *Engine) ProcessAnniversaryTriggers(ctx context.Context, runDate time.Time) RunResult {
	return e.process(ctx, KindAnniversary, runDate)
}

// ProcessCustomEventTriggers は runDate に発火するカスタムイベントのコンテンツを生成します。
func (e *Engine) ProcessCustomEventTriggers(ctx context.Context, runDate time.Time) RunResult {
	return e.process(ctx, KindCustom, runDate)
}

func (e *Engine) process(ctx context.Context, kind Kind, runDate time.Time) RunResult {
	result := newRunResult()
	started := time.Now()
	runDate = calendar.DateOf(runDate)
	date := calendar.FormatDate(runDate)
	runID := e.newRunID()
	logger := e.logger.With(
		zap.String("run_id", runID),
		zap.String("trigger", string(kind)),
		zap.String("run_date", date),
	)

	r, err := ruleFor(kind)
	if err != nil {
		result.addError("Error processing %s triggers: %v", kind, err)
		return result
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	if e.locker != nil {
		unlock, ok, err := e.locker.TryLock(ctx, runLockKey(kind, date))
		switch {
		case err != nil:
			logger.Warn("run lock unavailable, continuing without it", zap.Error(err))
		case !ok:
			logger.Info("run already in progress")
			result.addError("run already in progress for %s triggers on %s", kind, date)
			return result
		default:
			defer func() {
				if err := unlock(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("release run lock", zap.Error(err))
				}
			}()
		}
	}

	created := 0
	defer func() {
		took := time.Since(started)
		e.metrics.observe(kind, created, result, took)
		logger.Info("automation run finished",
			zap.Int("processed", result.Processed),
			zap.Int("created", created),
			zap.Int("skipped", result.Skipped),
			zap.Int("errors", len(result.Errors)),
			zap.Duration("took", took),
		)
	}()

	occs, err := r.collect(ctx, e, runDate)
	if err != nil {
		logger.Error("collect candidates", zap.Error(err))
		result.addError("Error processing %s triggers: %v", kind, err)
		return result
	}

	for _, occ := range occs {
		if err := ctx.Err(); err != nil {
			result.addError("Error processing %s triggers: %v", kind, err)
			break
		}

		n, skipped, notifyErrs, err := e.runOccurrence(ctx, r, occ, runID)
		created += n
		result.Skipped += skipped
		for _, nerr := range notifyErrs {
			logger.Warn("notify created item", zap.String("subject", occ.subject()), zap.Error(nerr))
			result.addError("Error notifying %s for %s: %v", kind, occ.subject(), nerr)
		}
		if err != nil {
			logger.Warn("occurrence failed", zap.String("subject", occ.subject()), zap.Error(err))
			result.addError("Error processing %s for %s: %v", kind, occ.subject(), err)
			continue
		}
		if n > 0 {
			result.Processed++
		}
	}

	return result
}

// runOccurrence は 1 件の対象についてテンプレートごとに項目を生成します。
// 途中で失敗した場合も、それまでに作成した項目は残ります。通知の失敗は項目の作成を妨げません。
func (e *Engine) runOccurrence(ctx context.Context, r rule, occ occurrence, runID string) (created, skipped int, notifyErrs []error, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	if r.prepare != nil {
		skip, err := r.prepare(ctx, e, &occ)
		if err != nil {
			return 0, 0, nil, err
		}
		if skip {
			return 0, 0, nil, nil
		}
	}

	templates, err := r.templates(ctx, e, occ)
	if err != nil {
		return 0, 0, nil, err
	}

	for _, tpl := range templates {
		item := e.buildItem(r, occ, tpl, runID)
		saved, isNew, err := e.sink.CreateOnce(ctx, item)
		if err != nil {
			return created, skipped, notifyErrs, fmt.Errorf("create timeline item for template %s: %w", tpl.ID, err)
		}
		if !isNew {
			skipped++
			continue
		}
		created++

		if e.notifier == nil {
			continue
		}
		if saved == nil {
			saved = item
		}
		if err := e.notifier.ItemCreated(ctx, saved); err != nil {
			notifyErrs = append(notifyErrs, fmt.Errorf("timeline item %s: %w", saved.ID, err))
		}
	}

	return created, skipped, notifyErrs, nil
}

func (e *Engine) buildItem(r rule, occ occurrence, tpl *template.Template, runID string) *timeline.Item {
	trigger := occ.trigger.String()
	date := calendar.FormatDate(occ.runDate)
	// キーは発生日で作ります。実行日で作るとリマインダー日数の変更で同じ発生が二重に通知されます。
	key := timeline.AutomationKey(trigger, occ.employeeID, tpl.ID, calendar.FormatDate(occ.occursOn))

	meta := timeline.Metadata{
		AutomationTrigger: trigger,
		TemplateID:        tpl.ID,
		Date:              date,
		AutomationKey:     key,
		RunID:             runID,
	}
	if r.metadata != nil {
		r.metadata(occ, &meta)
	}

	c := r.render(occ, tpl)
	templateID := tpl.ID
	return &timeline.Item{
		EmployeeID:    occ.employeeID,
		TemplateID:    &templateID,
		Title:         c.title,
		Content:       c.body,
		Type:          c.itemType,
		IsVisible:     true,
		Metadata:      meta,
		AutomationKey: &key,
	}
}

// taggedTemplates は会社のテンプレートのうち tag を持つものを返します。0 件はエラーです。
func (e *Engine) taggedTemplates(ctx context.Context, companyID, tag string) ([]*template.Template, error) {
	templates, err := e.templates.ListByCompanyAndTag(ctx, companyID, tag)
	if err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		return nil, fmt.Errorf("no %s templates for company %s", tag, companyID)
	}
	return templates, nil
}

func runLockKey(kind Kind, date string) string {
	return "automation:" + string(kind) + ":" + date
}
