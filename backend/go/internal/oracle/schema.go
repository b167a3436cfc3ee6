package oracle

import (
	"DayPilot/backend/go/internal/models"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ParsedPlan 是通过校验的规划提案。
type ParsedPlan struct {
	Schedule        []models.ScheduleEntry
	Conflicts       []models.Conflict
	Recommendations []string
}

// ParseFailure 描述为什么模型的回复无法转换为结构化结果。
type ParseFailure struct {
	Reason string
	Raw    string
}

func (f *ParseFailure) Error() string {
	return "oracle parse failure: " + f.Reason
}

// PlanResult 要么携带 Plan，要么携带 Failure，二者恰有其一。
type PlanResult struct {
	Plan    *ParsedPlan
	Failure *ParseFailure
}

// OK 报告是否得到了可用的计划。
func (r PlanResult) OK() bool {
	return r.Plan != nil && r.Failure == nil
}

func failed(reason, raw string) PlanResult {
	return PlanResult{Failure: &ParseFailure{Reason: reason, Raw: truncate(raw, 512)}}
}

type entryPayload struct {
	TaskID    string   `json:"task_id"`
	Title     string   `json:"title"`
	Start     string   `json:"start"`
	End       string   `json:"end"`
	Priority  string   `json:"priority"`
	Rationale string   `json:"rationale"`
	Conflicts []string `json:"conflicts"`
}

type conflictPayload struct {
	Type        string   `json:"type"`
	Entries     []string `json:"entries"`
	Severity    string   `json:"severity"`
	Description string   `json:"description"`
	Time        string   `json:"time"`
}

type planPayload struct {
	Schedule        *[]entryPayload   `json:"schedule"`
	Conflicts       []conflictPayload `json:"conflicts"`
	Recommendations []string          `json:"recommendations"`
}

type resolutionPayload struct {
	Action     string   `json:"action"`
	NewTime    string   `json:"new_time"`
	Confidence *float64 `json:"confidence"`
	Rationale  string   `json:"rationale"`
}

// ParsePlan 把模型回复转换为 PlanResult。day 提供日期和时区，用于解析只有时分的时间。
// 单个不合法的条目会被丢弃并在建议中注明，整体没有 JSON 或缺少 schedule 时返回失败。
func ParsePlan(text string, day time.Time, maxEntry time.Duration) PlanResult {
	raw, ok := ExtractJSON(text)
	if !ok {
		return failed("no JSON object in oracle response", text)
	}
	var payload planPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return failed(fmt.Sprintf("malformed plan JSON: %v", err), raw)
	}
	if payload.Schedule == nil {
		return failed("plan JSON has no schedule field", raw)
	}

	plan := &ParsedPlan{Recommendations: nonEmpty(payload.Recommendations)}
	var dropped []string
	for i, ep := range *payload.Schedule {
		entry, err := toEntry(ep, day, maxEntry)
		if err != nil {
			dropped = append(dropped, fmt.Sprintf("#%d %s", i+1, err))
			continue
		}
		plan.Schedule = append(plan.Schedule, entry)
	}
	if len(dropped) > 0 {
		plan.Recommendations = append(plan.Recommendations,
			fmt.Sprintf("Discarded %d invalid schedule entries: %s", len(dropped), strings.Join(dropped, "; ")))
	}

	for _, cp := range payload.Conflicts {
		c, ok := toConflict(cp, day)
		if ok {
			plan.Conflicts = append(plan.Conflicts, c)
		}
	}
	return PlanResult{Plan: plan}
}

func toEntry(ep entryPayload, day time.Time, maxEntry time.Duration) (models.ScheduleEntry, error) {
	if ep.Title == "" && ep.TaskID == "" {
		return models.ScheduleEntry{}, fmt.Errorf("entry has neither task_id nor title")
	}
	start, err := parseTime(ep.Start, day)
	if err != nil {
		return models.ScheduleEntry{}, fmt.Errorf("start: %w", err)
	}
	end, err := parseTime(ep.End, day)
	if err != nil {
		return models.ScheduleEntry{}, fmt.Errorf("end: %w", err)
	}
	if !end.After(start) {
		return models.ScheduleEntry{}, fmt.Errorf("end %s is not after start %s", ep.End, ep.Start)
	}
	if maxEntry > 0 && end.Sub(start) > maxEntry {
		return models.ScheduleEntry{}, fmt.Errorf("duration %s exceeds %s", end.Sub(start), maxEntry)
	}
	priority := models.Priority(ep.Priority)
	if !priority.Valid() {
		priority = normalizePriority(ep.Priority)
	}
	return models.ScheduleEntry{
		TaskID:    ep.TaskID,
		Title:     ep.Title,
		Start:     start,
		End:       end,
		Priority:  priority,
		Rationale: ep.Rationale,
		Conflicts: nonEmpty(ep.Conflicts),
	}, nil
}

func toConflict(cp conflictPayload, day time.Time) (models.Conflict, bool) {
	kind := models.ConflictKind(strings.ToLower(cp.Type))
	switch kind {
	case models.ConflictOverlap, models.ConflictWeather, models.ConflictResource:
	default:
		return models.Conflict{}, false
	}
	c := models.Conflict{
		Kind:        kind,
		EntryIDs:    nonEmpty(cp.Entries),
		Severity:    cp.Severity,
		Description: cp.Description,
	}
	if c.Severity == "" {
		c.Severity = "medium"
	}
	if cp.Time != "" {
		if t, err := parseTime(cp.Time, day); err == nil {
			c.Time = &t
		}
	}
	return c, true
}

// ParseResolution 解析冲突解决建议。置信度必须在 [0,1] 内，move_task 必须给出新时间。
func ParseResolution(text string, day time.Time) (*models.Resolution, *ParseFailure) {
	raw, ok := ExtractJSON(text)
	if !ok {
		return nil, &ParseFailure{Reason: "no JSON object in resolution response", Raw: truncate(text, 512)}
	}
	var payload resolutionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, &ParseFailure{Reason: fmt.Sprintf("malformed resolution JSON: %v", err), Raw: truncate(raw, 512)}
	}
	action := models.ResolutionAction(payload.Action)
	if !action.Valid() {
		return nil, &ParseFailure{Reason: fmt.Sprintf("unknown action %q", payload.Action), Raw: truncate(raw, 512)}
	}
	if payload.Confidence == nil || *payload.Confidence < 0 || *payload.Confidence > 1 {
		return nil, &ParseFailure{Reason: "confidence missing or outside [0,1]", Raw: truncate(raw, 512)}
	}
	res := &models.Resolution{
		Action:     action,
		Confidence: *payload.Confidence,
		Rationale:  payload.Rationale,
	}
	if payload.NewTime != "" {
		t, err := parseTime(payload.NewTime, day)
		if err != nil {
			return nil, &ParseFailure{Reason: fmt.Sprintf("new_time: %v", err), Raw: truncate(raw, 512)}
		}
		res.NewTime = &t
	}
	if action == models.ActionMoveTask && res.NewTime == nil {
		return nil, &ParseFailure{Reason: "move_task without new_time", Raw: truncate(raw, 512)}
	}
	return res, nil
}

// ParseInsights 解析表现分析结果。
func ParseInsights(text string) (*models.Insights, *ParseFailure) {
	raw, ok := ExtractJSON(text)
	if !ok {
		return nil, &ParseFailure{Reason: "no JSON object in insights response", Raw: truncate(text, 512)}
	}
	var insights models.Insights
	if err := json.Unmarshal([]byte(raw), &insights); err != nil {
		return nil, &ParseFailure{Reason: fmt.Sprintf("malformed insights JSON: %v", err), Raw: truncate(raw, 512)}
	}
	if insights.ProductivityScore < 0 {
		insights.ProductivityScore = 0
	}
	insights.Recommendations = nonEmpty(insights.Recommendations)
	return &insights, nil
}

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"}

// parseTime 接受 RFC3339、不带时区的日期时间 (按 day 的时区) 或 HH:MM (按 day 的日期)。
func parseTime(value string, day time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	loc := day.Location()
	for i, layout := range timeLayouts {
		var t time.Time
		var err error
		if i == 0 {
			t, err = time.Parse(layout, value)
		} else {
			t, err = time.ParseInLocation(layout, value, loc)
		}
		if err == nil {
			return t, nil
		}
	}
	if clock, err := time.ParseInLocation("15:04", value, loc); err == nil {
		y, m, d := day.Date()
		return time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, loc), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", value)
}

func normalizePriority(p string) models.Priority {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "high", "urgent", "p1":
		return models.PriorityHigh
	case "low", "p3":
		return models.PriorityLow
	default:
		return models.PriorityMedium
	}
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
