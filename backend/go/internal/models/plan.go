package models

import "time"

// ScheduleEntry 是计划中的一次任务安排
type ScheduleEntry struct {
	TaskID    string    `json:"task_id"`
	Title     string    `json:"title"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Priority  Priority  `json:"priority"`
	Rationale string    `json:"rationale,omitempty"`
	Conflicts []string  `json:"conflicts,omitempty"` // 冲突标记及执行器需要处理的注解
}

// Duration 返回条目的时长。
func (e ScheduleEntry) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Overlaps 判断条目是否与 [start, end) 相交。
func (e ScheduleEntry) Overlaps(start, end time.Time) bool {
	return e.Start.Before(end) && start.Before(e.End)
}

// ConflictKind 定义冲突类型
type ConflictKind string

const (
	ConflictOverlap  ConflictKind = "overlap"
	ConflictWeather  ConflictKind = "weather"
	ConflictResource ConflictKind = "resource"
)

// Conflict 是检测到的一次排程冲突
type Conflict struct {
	Kind        ConflictKind `json:"type"`
	EntryIDs    []string     `json:"entries"`
	Severity    string       `json:"severity"`
	Description string       `json:"description,omitempty"`
	Time        *time.Time   `json:"time,omitempty"` // 冲突条目的原始开始时间，用于匹配
}

// ResolutionAction 定义了冲突解决动作
type ResolutionAction string

const (
	ActionMoveTask        ResolutionAction = "move_task"
	ActionSplitTask       ResolutionAction = "split_task"
	ActionRescheduleEvent ResolutionAction = "reschedule_event"
)

// Valid 判断动作是否为可识别的类型。
func (a ResolutionAction) Valid() bool {
	switch a {
	case ActionMoveTask, ActionSplitTask, ActionRescheduleEvent:
		return true
	}
	return false
}

// Resolution 是 AI 给出的冲突修复建议
type Resolution struct {
	Action     ResolutionAction `json:"action"`
	NewTime    *time.Time       `json:"new_time,omitempty"`
	Confidence float64          `json:"confidence"`
	Rationale  string           `json:"rationale,omitempty"`
}

// ResolvedConflict 记录一次冲突及其处理结果。未应用的冲突同样保留。
type ResolvedConflict struct {
	Conflict   Conflict    `json:"conflict"`
	Resolution *Resolution `json:"resolution,omitempty"`
	Applied    bool        `json:"applied"`
	Reason     string      `json:"reason,omitempty"`
}

// PlanProposal 是一次规划周期的产物，从初始提案一路演变为最终计划。
type PlanProposal struct {
	Date            string             `json:"date"` // YYYY-MM-DD
	Schedule        []ScheduleEntry    `json:"schedule"`
	Conflicts       []Conflict         `json:"conflicts"`
	Resolutions     []ResolvedConflict `json:"resolutions,omitempty"`
	Optimizations   []string           `json:"optimizations,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
	ParseFailed     bool               `json:"parse_failed,omitempty"`
	GeneratedAt     time.Time          `json:"generated_at"`
}

// Clone 返回提案的深拷贝，以便各阶段不修改调用者持有的数据。
func (p *PlanProposal) Clone() *PlanProposal {
	if p == nil {
		return nil
	}
	out := *p
	out.Schedule = make([]ScheduleEntry, len(p.Schedule))
	for i, e := range p.Schedule {
		e.Conflicts = append([]string(nil), e.Conflicts...)
		out.Schedule[i] = e
	}
	out.Conflicts = append([]Conflict(nil), p.Conflicts...)
	out.Resolutions = append([]ResolvedConflict(nil), p.Resolutions...)
	out.Optimizations = append([]string(nil), p.Optimizations...)
	out.Recommendations = append([]string(nil), p.Recommendations...)
	return &out
}

// ExecutionReport 是执行器对最终计划的落地报告，调度器只记录不解释
type ExecutionReport struct {
	CalendarUpdates []string  `json:"calendar_updates"`
	NotionUpdates   []string  `json:"notion_updates"`
	Notifications   []string  `json:"notifications"`
	Errors          []string  `json:"errors"`
	ExecutedAt      time.Time `json:"executed_at"`
}
