package models

import (
	"fmt"
	"time"
)

// TaskStatus 定义了任务在任务追踪服务中的几种可能状态
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusToday      TaskStatus = "today"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusScheduled  TaskStatus = "scheduled"
)

// Priority 定义了任务的优先级
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Priorities 按权重降序列出所有合法的优先级。
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// Valid 判断优先级是否属于固定枚举。
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Weight 返回排序所用的优先级权重 (High=3, Medium=2, Low=1)。
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// TimeWindow 是一个两端均可为空的时间窗口
type TimeWindow struct {
	Start *time.Time `json:"start,omitempty" bson:"start,omitempty"`
	End   *time.Time `json:"end,omitempty" bson:"end,omitempty"`
}

// TaskRecord 代表任务追踪服务中的一个工作单元
type TaskRecord struct {
	ID              string      `json:"id" bson:"_id"`
	Title           string      `json:"title" bson:"title"`
	Status          TaskStatus  `json:"status" bson:"status"`
	Priority        Priority    `json:"priority" bson:"priority"`
	Due             *TimeWindow `json:"due,omitempty" bson:"due,omitempty"`
	DurationMinutes int         `json:"duration_minutes,omitempty" bson:"duration_minutes,omitempty"` // 实际耗时，仅完成后有意义
	CompletedAt     *time.Time  `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

// Validate 检查任务记录的不变量。
func (t TaskRecord) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task record has empty id")
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("task %s: invalid priority %q", t.ID, t.Priority)
	}
	if t.Due != nil && t.Due.Start != nil && t.Due.End != nil && t.Due.End.Before(*t.Due.Start) {
		return fmt.Errorf("task %s: due window ends before it starts", t.ID)
	}
	return nil
}

// IsDone 报告任务是否已完成。
func (t TaskRecord) IsDone() bool {
	return t.Status == TaskStatusDone
}

// CalendarEvent 是日历服务中的一个外部承诺
type CalendarEvent struct {
	ID     string    `json:"id" bson:"_id"`
	Title  string    `json:"title" bson:"title"`
	Start  time.Time `json:"start" bson:"start"`
	End    time.Time `json:"end" bson:"end"`
	TaskID string    `json:"task_id,omitempty" bson:"task_id,omitempty"` // 可选，关联的任务
}

// Validate 检查事件的开始时间严格早于结束时间。
func (e CalendarEvent) Validate() error {
	if !e.Start.Before(e.End) {
		return fmt.Errorf("calendar event %s: start must be before end", e.ID)
	}
	return nil
}

// WeatherSnapshot 描述计划时刻的天气情况
type WeatherSnapshot struct {
	Condition    string  `json:"condition" bson:"condition"`
	Location     string  `json:"location" bson:"location"`
	TemperatureC float64 `json:"temperature_c,omitempty" bson:"temperature_c,omitempty"`
}

// Snapshot 是一次采集得到的任务、日历和天气的带时间戳集合
type Snapshot struct {
	Tasks     []TaskRecord     `json:"tasks"`
	Events    []CalendarEvent  `json:"events"`
	Weather   *WeatherSnapshot `json:"weather,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// PendingTasks 返回所有尚未完成的任务。
func (s *Snapshot) PendingTasks() []TaskRecord {
	var pending []TaskRecord
	for _, t := range s.Tasks {
		if !t.IsDone() {
			pending = append(pending, t)
		}
	}
	return pending
}

// IsFresh 判断时间戳 ts 在 now 时刻是否仍处于 window 之内。边界值不算新鲜。
func IsFresh(ts, now time.Time, window time.Duration) bool {
	if ts.IsZero() {
		return false
	}
	return now.Sub(ts) < window
}
