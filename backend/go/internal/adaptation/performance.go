package adaptation

import (
	"DayPilot/backend/go/internal/models"
	"sort"
	"time"
)

// BuildPerformanceRecord 从最新快照和计划推导 day 当天的执行结果。
// 当天完成的任务计为完成；计划中安排了但仍未完成的任务计为错过。
func BuildPerformanceRecord(snap *models.Snapshot, plan *models.PlanProposal, day time.Time) models.PerformanceRecord {
	rec := models.PerformanceRecord{Date: day.Format("2006-01-02")}
	if snap == nil {
		return rec
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	planned := make(map[string]models.ScheduleEntry)
	if plan != nil {
		for _, e := range plan.Schedule {
			if e.TaskID != "" {
				planned[e.TaskID] = e
			}
		}
	}

	var durations []float64
	hourCounts := make(map[int]int)
	for _, t := range snap.Tasks {
		entry, wasPlanned := planned[t.ID]
		switch {
		case t.IsDone() && t.CompletedAt != nil:
			if t.CompletedAt.Before(start) || !t.CompletedAt.Before(end) {
				continue
			}
			hourCounts[t.CompletedAt.In(day.Location()).Hour()]++
		case t.IsDone() && wasPlanned:
		case !t.IsDone() && wasPlanned:
			rec.Missed = append(rec.Missed, t)
			continue
		default:
			continue
		}
		rec.Completed = append(rec.Completed, t)
		switch {
		case t.DurationMinutes > 0:
			durations = append(durations, float64(t.DurationMinutes))
		case wasPlanned:
			durations = append(durations, entry.Duration().Minutes())
		}
	}

	if len(durations) > 0 {
		var sum float64
		for _, d := range durations {
			sum += d
		}
		rec.Usage.AverageDurationMinutes = sum / float64(len(durations))
	}
	rec.Usage.PeakHours = PeakHours(hourCounts, 3)
	return rec
}

// PeakHours 返回完成次数最多的前 n 个小时，次数相同时小时数小的在前。
func PeakHours(counts map[int]int, n int) []int {
	hours := make([]int, 0, len(counts))
	for h := range counts {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool {
		if counts[hours[i]] != counts[hours[j]] {
			return counts[hours[i]] > counts[hours[j]]
		}
		return hours[i] < hours[j]
	})
	if len(hours) > n {
		hours = hours[:n]
	}
	return hours
}
