package gateway

import (
	"DayPilot/backend/go/internal/models"
	"DayPilot/backend/go/internal/store"
	"DayPilot/backend/go/pkg/logger"
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// StateStore 是网关用到的存储子集。
type StateStore interface {
	GetState(ctx context.Context, key string, out interface{}) (bool, error)
	SetState(ctx context.Context, key string, value interface{}) error
}

// Gateway 并发采集任务、日历和天气，并把快照写入存储。
type Gateway struct {
	tasks    TaskSource
	calendar CalendarSource
	weather  WeatherSource
	store    StateStore
	log      *logger.Logger
	now      func() time.Time
}

// New 创建一个 Gateway。weather 可以为 nil。
func New(tasks TaskSource, calendar CalendarSource, weather WeatherSource, st StateStore, log *logger.Logger) *Gateway {
	if log == nil {
		log = logger.Discard()
	}
	return &Gateway{tasks: tasks, calendar: calendar, weather: weather, store: st, log: log, now: time.Now}
}

// SetClock 替换时间来源。
func (g *Gateway) SetClock(now func() time.Time) {
	g.now = now
}

// Collect 并发拉取三个数据源并合并为快照。任务和日历是必需的，天气失败只记录警告。
func (g *Gateway) Collect(ctx context.Context) (*models.Snapshot, error) {
	var (
		tasks   []models.TaskRecord
		events  []models.CalendarEvent
		weather *models.WeatherSnapshot
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		tasks, err = g.tasks.FetchTasks(egCtx)
		return err
	})
	eg.Go(func() error {
		var err error
		events, err = g.calendar.FetchEvents(egCtx)
		return err
	})
	if g.weather != nil {
		eg.Go(func() error {
			w, err := g.weather.FetchWeather(egCtx)
			if err != nil {
				g.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "weather_unavailable"}).Warn("天气获取失败，继续采集")
				return nil
			}
			weather = w
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("collect snapshot: %w", err)
	}

	snap := &models.Snapshot{
		Tasks:     g.validTasks(tasks),
		Events:    g.validEvents(events),
		Weather:   weather,
		Timestamp: g.now().UTC(),
	}
	if err := g.store.SetState(ctx, store.KeyLatestSnapshot, snap); err != nil {
		return nil, err
	}
	g.log.WithPayload(map[string]interface{}{
		"tasks":  len(snap.Tasks),
		"events": len(snap.Events),
	}).Info("快照采集完成")
	return snap, nil
}

// LatestSnapshot 返回最近一次采集的快照，没有时返回 ErrDataUnavailable。
func (g *Gateway) LatestSnapshot(ctx context.Context) (*models.Snapshot, error) {
	var snap models.Snapshot
	found, err := g.store.GetState(ctx, store.KeyLatestSnapshot, &snap)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: no snapshot collected yet", models.ErrDataUnavailable)
	}
	return &snap, nil
}

// IsFresh 报告最近的快照是否在 window 之内。
func (g *Gateway) IsFresh(ctx context.Context, window time.Duration) (bool, error) {
	snap, err := g.LatestSnapshot(ctx)
	if err != nil {
		return false, err
	}
	return models.IsFresh(snap.Timestamp, g.now(), window), nil
}

func (g *Gateway) validTasks(in []models.TaskRecord) []models.TaskRecord {
	out := make([]models.TaskRecord, 0, len(in))
	for _, t := range in {
		if err := t.Validate(); err != nil {
			g.log.WithPayload(map[string]interface{}{"task_id": t.ID, "reason": err.Error()}).Warn("丢弃无效任务")
			continue
		}
		out = append(out, t)
	}
	return out
}

func (g *Gateway) validEvents(in []models.CalendarEvent) []models.CalendarEvent {
	out := make([]models.CalendarEvent, 0, len(in))
	for _, e := range in {
		if err := e.Validate(); err != nil {
			g.log.WithPayload(map[string]interface{}{"event_id": e.ID, "reason": err.Error()}).Warn("丢弃无效日历事件")
			continue
		}
		out = append(out, e)
	}
	return out
}
