package planning

import (
	"DayPilot/backend/go/internal/models"
	"DayPilot/backend/go/internal/oracle"
	"DayPilot/backend/go/pkg/logger"
	"context"
	"fmt"
	"strings"
	"time"
)

// ResolutionLog 是冲突解决器用到的存储子集。
type ResolutionLog interface {
	AppendResolutionLog(ctx context.Context, entry models.ResolutionLogEntry) error
}

// Resolver 逐个向 AI 请求冲突修复，并按置信度决定是否应用。
type Resolver struct {
	oracle    oracle.Oracle
	journal   ResolutionLog
	threshold float64
	loc       *time.Location
	log       *logger.Logger
}

// NewResolver 创建一个 Resolver。只有置信度严格大于 threshold 的建议才会被应用。
func NewResolver(o oracle.Oracle, journal ResolutionLog, threshold float64, loc *time.Location, log *logger.Logger) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Resolver{oracle: o, journal: journal, threshold: threshold, loc: loc, log: log}
}

// ResolveConflicts 处理提案中的每个冲突。返回的提案中 Conflicts 只保留未解决的冲突，
// Resolutions 记录所有结果。日志写入失败时返回 ErrPersistence。
func (r *Resolver) ResolveConflicts(ctx context.Context, proposal *models.PlanProposal, snap *models.Snapshot) (*models.PlanProposal, error) {
	if proposal == nil {
		return nil, fmt.Errorf("%w: no plan proposal to resolve", models.ErrDataUnavailable)
	}
	out := proposal.Clone()
	if len(out.Conflicts) == 0 {
		return out, nil
	}
	day := r.day(out)

	var events []models.CalendarEvent
	var weather *models.WeatherSnapshot
	if snap != nil {
		events, weather = snap.Events, snap.Weather
	}

	var unresolved []models.Conflict
	for _, c := range out.Conflicts {
		res := r.oracle.ResolveConflict(ctx, oracle.ConflictContext{
			Day:      day,
			Conflict: c,
			Schedule: out.Schedule,
			Events:   events,
			Weather:  weather,
		})

		rc := models.ResolvedConflict{Conflict: c, Resolution: res}
		switch {
		case res == nil:
			rc.Reason = "no usable resolution from AI"
		case res.Confidence <= r.threshold:
			rc.Reason = fmt.Sprintf("confidence %.2f does not exceed threshold %.2f", res.Confidence, r.threshold)
		default:
			rc.Applied, rc.Reason = apply(out, c, res)
		}
		if !rc.Applied {
			unresolved = append(unresolved, c)
		}
		out.Resolutions = append(out.Resolutions, rc)

		if err := r.journal.AppendResolutionLog(ctx, models.ResolutionLogEntry{
			TaskRef:      strings.Join(c.EntryIDs, ","),
			ConflictType: string(c.Kind),
			Original:     c,
			Resolved:     res,
			Applied:      rc.Applied,
			Reason:       rc.Reason,
		}); err != nil {
			return nil, err
		}
	}
	out.Conflicts = unresolved
	if out.Conflicts == nil {
		out.Conflicts = []models.Conflict{}
	}

	r.log.WithPayload(map[string]interface{}{
		"conflicts":  len(out.Resolutions),
		"unresolved": len(unresolved),
	}).Info("冲突处理完成")
	return out, nil
}

// apply 把已通过置信度检查的建议作用到计划上。
func apply(p *models.PlanProposal, c models.Conflict, res *models.Resolution) (bool, string) {
	idx := matchEntry(p.Schedule, c)
	note := string(res.Action)
	if res.Rationale != "" {
		note += ": " + res.Rationale
	}

	switch res.Action {
	case models.ActionMoveTask:
		if idx < 0 {
			return false, "no schedule entry matches the conflict"
		}
		entry := &p.Schedule[idx]
		d := entry.Duration()
		from := entry.Start
		entry.Start = *res.NewTime
		entry.End = entry.Start.Add(d)
		entry.Conflicts = append(entry.Conflicts, "resolved "+note)
		return true, fmt.Sprintf("moved %s from %s to %s", EntryRef(*entry), from.Format("15:04"), entry.Start.Format("15:04"))
	default:
		// split_task 和 reschedule_event 只做标注，由执行器落地
		if idx >= 0 {
			p.Schedule[idx].Conflicts = append(p.Schedule[idx].Conflicts, note)
			return true, "annotated for executor"
		}
		p.Recommendations = append(p.Recommendations, fmt.Sprintf("%s (%s)", note, strings.Join(c.EntryIDs, ", ")))
		return true, "recorded as recommendation for executor"
	}
}

// matchEntry 按冲突的原始开始时间匹配条目，退而求其次按 EntryIDs 中的任务 ID 匹配。
func matchEntry(schedule []models.ScheduleEntry, c models.Conflict) int {
	if c.Time != nil {
		first := -1
		for i, e := range schedule {
			if !e.Start.Equal(*c.Time) {
				continue
			}
			if contains(c.EntryIDs, EntryRef(e)) {
				return i
			}
			if first < 0 {
				first = i
			}
		}
		if first >= 0 {
			return first
		}
	}
	for i, e := range schedule {
		if e.TaskID != "" && contains(c.EntryIDs, e.TaskID) {
			return i
		}
	}
	return -1
}

func (r *Resolver) day(p *models.PlanProposal) time.Time {
	if d, err := time.ParseInLocation(DateLayout, p.Date, r.loc); err == nil {
		return d
	}
	return startOfDay(time.Now().In(r.loc))
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
