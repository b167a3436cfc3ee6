package oracle

import (
	"DayPilot/backend/go/internal/llm"
	"DayPilot/backend/go/internal/models"
	"DayPilot/backend/go/pkg/circuitbreaker"
	"DayPilot/backend/go/pkg/logger"
	"DayPilot/backend/go/pkg/ratelimiter"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// PlanContext 是生成计划所需的全部输入。
type PlanContext struct {
	Date        string                  `json:"date"`
	Day         time.Time               `json:"-"` // 计划当天零点，携带时区
	Tasks       []models.TaskRecord     `json:"tasks"`
	Events      []models.CalendarEvent  `json:"calendar"`
	Weather     *models.WeatherSnapshot `json:"weather,omitempty"`
	Preferences *models.UserPreferences `json:"preferences,omitempty"`
	Patterns    *models.LearningPattern `json:"patterns,omitempty"`
}

// ConflictContext 是解决单个冲突所需的输入。
type ConflictContext struct {
	Day      time.Time               `json:"-"`
	Conflict models.Conflict         `json:"conflict"`
	Schedule []models.ScheduleEntry  `json:"schedule"`
	Events   []models.CalendarEvent  `json:"calendar"`
	Weather  *models.WeatherSnapshot `json:"weather,omitempty"`
}

// Oracle 是对 AI 规划能力的结构化封装。所有失败都以值的形式返回，不会向调用方抛出错误。
type Oracle interface {
	ProposePlan(ctx context.Context, pc PlanContext) PlanResult
	ResolveConflict(ctx context.Context, cc ConflictContext) *models.Resolution
	AnalyzePerformance(ctx context.Context, perf models.PerformanceRecord) *models.Insights
}

// LLMOracle 通过 LLM 实现 Oracle，调用经过限流和熔断。
type LLMOracle struct {
	model    llm.LLM
	breaker  circuitbreaker.CircuitBreaker
	limiter  ratelimiter.RateLimiter
	log      *logger.Logger
	maxEntry time.Duration
}

// Option 配置 LLMOracle。
type Option func(*LLMOracle)

// WithBreaker 设置熔断器。
func WithBreaker(cb circuitbreaker.CircuitBreaker) Option {
	return func(o *LLMOracle) { o.breaker = cb }
}

// WithLimiter 设置限流器。
func WithLimiter(rl ratelimiter.RateLimiter) Option {
	return func(o *LLMOracle) { o.limiter = rl }
}

// WithLogger 设置日志记录器。
func WithLogger(l *logger.Logger) Option {
	return func(o *LLMOracle) { o.log = l }
}

// WithMaxEntry 设置单个条目允许的最长时长。
func WithMaxEntry(d time.Duration) Option {
	return func(o *LLMOracle) { o.maxEntry = d }
}

// NewLLMOracle 创建一个 LLMOracle。
func NewLLMOracle(model llm.LLM, opts ...Option) *LLMOracle {
	o := &LLMOracle{
		model:    model,
		log:      logger.Discard(),
		maxEntry: 8 * time.Hour,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProposePlan 请求模型生成当天的计划。
func (o *LLMOracle) ProposePlan(ctx context.Context, pc PlanContext) PlanResult {
	text, err := o.generate(ctx, planInstruction, pc)
	if err != nil {
		o.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "oracle_unavailable"}).Warn("计划生成请求失败")
		return failed(fmt.Sprintf("oracle unavailable: %v", err), "")
	}
	result := ParsePlan(text, pc.Day, o.maxEntry)
	if !result.OK() {
		o.log.WithPayload(map[string]interface{}{"reason": result.Failure.Reason}).Warn("计划回复无法解析")
	}
	return result
}

// ResolveConflict 请求模型为单个冲突给出修复建议，失败时返回 nil。
func (o *LLMOracle) ResolveConflict(ctx context.Context, cc ConflictContext) *models.Resolution {
	text, err := o.generate(ctx, resolveInstruction, cc)
	if err != nil {
		o.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "oracle_unavailable"}).Warn("冲突解决请求失败")
		return nil
	}
	res, failure := ParseResolution(text, cc.Day)
	if failure != nil {
		o.log.WithPayload(map[string]interface{}{"reason": failure.Reason}).Warn("冲突解决回复无法解析")
		return nil
	}
	return res
}

// AnalyzePerformance 请求模型分析一天的表现，失败时返回 nil。
func (o *LLMOracle) AnalyzePerformance(ctx context.Context, perf models.PerformanceRecord) *models.Insights {
	text, err := o.generate(ctx, insightsInstruction, perf)
	if err != nil {
		o.log.WithError(models.ErrorInfo{Message: err.Error(), Type: "oracle_unavailable"}).Warn("表现分析请求失败")
		return nil
	}
	insights, failure := ParseInsights(text)
	if failure != nil {
		o.log.WithPayload(map[string]interface{}{"reason": failure.Reason}).Warn("表现分析回复无法解析")
		return nil
	}
	return insights
}

func (o *LLMOracle) generate(ctx context.Context, instruction string, input interface{}) (string, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("encode oracle input: %w", err)
	}
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}

	var text string
	call := func() error {
		resp, err := o.model.GenerateContent(ctx, models.NewTextRequest(instruction, string(body)))
		if err != nil {
			return err
		}
		text = resp.Text()
		return nil
	}
	if o.breaker != nil {
		err = o.breaker.Do(call)
	} else {
		err = call()
	}
	if err != nil {
		return "", err
	}
	return text, nil
}
