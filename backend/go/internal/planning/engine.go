package planning

import (
	"DayPilot/backend/go/internal/models"
	"DayPilot/backend/go/internal/oracle"
	"DayPilot/backend/go/pkg/logger"
	"context"
	"fmt"
	"time"
)

// DateLayout 是计划日期的格式。
const DateLayout = "2006-01-02"

// Engine 把快照、偏好和学习到的模式转换为带冲突标注的计划提案。
type Engine struct {
	oracle    oracle.Oracle
	freshness time.Duration
	loc       *time.Location
	log       *logger.Logger
	now       func() time.Time
}

// EngineOption 配置 Engine。
type EngineOption func(*Engine)

// WithLocation 设置计划所在的时区。
func WithLocation(loc *time.Location) EngineOption {
	return func(e *Engine) { e.loc = loc }
}

// WithEngineLogger 设置日志记录器。
func WithEngineLogger(l *logger.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// WithEngineClock 设置时间来源。
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine 创建一个 Engine，freshness 是快照的新鲜度窗口。
func NewEngine(o oracle.Oracle, freshness time.Duration, opts ...EngineOption) *Engine {
	e := &Engine{oracle: o, freshness: freshness, loc: time.Local, log: logger.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BuildPlan 生成当天的计划提案。快照缺失或过期时返回 ErrDataUnavailable；
// AI 回复无法解析时返回空计划并标记 ParseFailed，不视为错误。
func (e *Engine) BuildPlan(ctx context.Context, snap *models.Snapshot, prefs *models.UserPreferences, patterns *models.LearningPattern) (*models.PlanProposal, error) {
	now := e.now()
	if snap == nil {
		return nil, fmt.Errorf("%w: no snapshot", models.ErrDataUnavailable)
	}
	if !models.IsFresh(snap.Timestamp, now, e.freshness) {
		return nil, fmt.Errorf("%w: snapshot from %s is older than %s", models.ErrDataUnavailable,
			snap.Timestamp.Format(time.RFC3339), e.freshness)
	}

	day := startOfDay(now.In(e.loc))
	pc := oracle.PlanContext{
		Date:        day.Format(DateLayout),
		Day:         day,
		Tasks:       snap.PendingTasks(),
		Events:      snap.Events,
		Weather:     snap.Weather,
		Preferences: prefs,
		Patterns:    patterns,
	}

	proposal := &models.PlanProposal{
		Date:        pc.Date,
		Schedule:    []models.ScheduleEntry{},
		Conflicts:   []models.Conflict{},
		GeneratedAt: now.UTC(),
	}

	result := e.oracle.ProposePlan(ctx, pc)
	if !result.OK() {
		reason := "no structured plan returned"
		if result.Failure != nil {
			reason = result.Failure.Reason
		}
		proposal.ParseFailed = true
		proposal.Recommendations = []string{fmt.Sprintf("AI plan could not be parsed (%s); schedule left empty", reason)}
		e.log.WithPayload(map[string]interface{}{"date": pc.Date, "reason": reason}).Warn("计划解析失败，返回空计划")
		return proposal, nil
	}

	proposal.Schedule = append(proposal.Schedule, result.Plan.Schedule...)
	proposal.Conflicts = append(proposal.Conflicts, result.Plan.Conflicts...)
	proposal.Recommendations = result.Plan.Recommendations
	detected := detectOverlaps(proposal, snap.Events)

	e.log.WithPayload(map[string]interface{}{
		"date":      pc.Date,
		"entries":   len(proposal.Schedule),
		"conflicts": len(proposal.Conflicts),
		"detected":  detected,
	}).Info("计划提案已生成")
	return proposal, nil
}

// detectOverlaps 为与日历事件或更早条目重叠的条目补充 overlap 冲突，
// 同一开始时间已有 overlap 冲突时不重复添加。返回新增的冲突数。
func detectOverlaps(p *models.PlanProposal, events []models.CalendarEvent) int {
	added := 0
	for i := range p.Schedule {
		entry := &p.Schedule[i]
		if hasOverlapAt(p.Conflicts, entry.Start) {
			continue
		}
		conflict, ok := firstOverlap(p.Schedule[:i], *entry, events)
		if !ok {
			continue
		}
		p.Conflicts = append(p.Conflicts, conflict)
		entry.Conflicts = append(entry.Conflicts, string(models.ConflictOverlap))
		added++
	}
	return added
}

func firstOverlap(earlier []models.ScheduleEntry, entry models.ScheduleEntry, events []models.CalendarEvent) (models.Conflict, bool) {
	start := entry.Start
	for _, ev := range events {
		if ev.TaskID != "" && ev.TaskID == entry.TaskID {
			continue
		}
		if entry.Overlaps(ev.Start, ev.End) {
			return models.Conflict{
				Kind:        models.ConflictOverlap,
				EntryIDs:    []string{EntryRef(entry), ev.ID},
				Severity:    "high",
				Description: fmt.Sprintf("%q overlaps calendar event %q", entry.Title, ev.Title),
				Time:        &start,
			}, true
		}
	}
	for _, prev := range earlier {
		if prev.Overlaps(entry.Start, entry.End) {
			return models.Conflict{
				Kind:        models.ConflictOverlap,
				EntryIDs:    []string{EntryRef(prev), EntryRef(entry)},
				Severity:    "medium",
				Description: fmt.Sprintf("%q overlaps %q", entry.Title, prev.Title),
				Time:        &start,
			}, true
		}
	}
	return models.Conflict{}, false
}

func hasOverlapAt(conflicts []models.Conflict, at time.Time) bool {
	for _, c := range conflicts {
		if c.Kind == models.ConflictOverlap && c.Time != nil && c.Time.Equal(at) {
			return true
		}
	}
	return false
}

// EntryRef 返回条目的引用标识，优先使用任务 ID。
func EntryRef(e models.ScheduleEntry) string {
	if e.TaskID != "" {
		return e.TaskID
	}
	return e.Title
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
