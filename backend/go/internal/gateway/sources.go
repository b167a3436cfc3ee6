package gateway

import (
	"DayPilot/backend/go/internal/config"
	"DayPilot/backend/go/internal/models"
	pkghttp "DayPilot/backend/go/pkg/http"
	"context"
	"fmt"
)

// TaskSource 提供任务跟踪系统中的任务。
type TaskSource interface {
	FetchTasks(ctx context.Context) ([]models.TaskRecord, error)
}

// CalendarSource 提供日历事件。
type CalendarSource interface {
	FetchEvents(ctx context.Context) ([]models.CalendarEvent, error)
}

// WeatherSource 提供当前天气。
type WeatherSource interface {
	FetchWeather(ctx context.Context) (*models.WeatherSnapshot, error)
}

// HTTPSource 通过带熔断的 HTTP 客户端从 JSON 端点拉取三类数据。
type HTTPSource struct {
	client *pkghttp.Client
	cfg    config.SourceConfig
}

// NewHTTPSource 创建一个 HTTPSource。
func NewHTTPSource(client *pkghttp.Client, cfg config.SourceConfig) *HTTPSource {
	return &HTTPSource{client: client, cfg: cfg}
}

func (s *HTTPSource) FetchTasks(ctx context.Context) ([]models.TaskRecord, error) {
	var tasks []models.TaskRecord
	if err := s.fetch(ctx, s.cfg.TasksURL, &tasks); err != nil {
		return nil, fmt.Errorf("fetch tasks: %w", err)
	}
	return tasks, nil
}

func (s *HTTPSource) FetchEvents(ctx context.Context) ([]models.CalendarEvent, error) {
	var events []models.CalendarEvent
	if err := s.fetch(ctx, s.cfg.CalendarURL, &events); err != nil {
		return nil, fmt.Errorf("fetch calendar: %w", err)
	}
	return events, nil
}

func (s *HTTPSource) FetchWeather(ctx context.Context) (*models.WeatherSnapshot, error) {
	if s.cfg.WeatherURL == "" {
		return nil, nil
	}
	var weather models.WeatherSnapshot
	if err := s.fetch(ctx, s.cfg.WeatherURL, &weather); err != nil {
		return nil, fmt.Errorf("fetch weather: %w", err)
	}
	return &weather, nil
}

func (s *HTTPSource) fetch(ctx context.Context, url string, out interface{}) error {
	if url == "" {
		return fmt.Errorf("no endpoint configured")
	}
	return s.client.GetJSON(ctx, url, s.cfg.Token, out)
}
