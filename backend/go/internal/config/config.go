package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address   string `yaml:"address"`   // Redis 服务器地址 (例如: "localhost:6379")
	Password  string `yaml:"password"`  // Redis 密码
	DB        int    `yaml:"db"`        // Redis 数据库编号
	KeyPrefix string `yaml:"keyPrefix"` // 所有状态键的前缀 (例如: "daypilot")
}

// MongoConfig 定义了 MongoDB 数据库的连接配置。
type MongoConfig struct {
	Address              string `yaml:"address"`              // MongoDB 服务器地址
	Username             string `yaml:"username"`             // 用户名
	Password             string `yaml:"password"`             // 密码
	Database             string `yaml:"database"`             // 数据库名称
	ExecutionCollection  string `yaml:"executionCollection"`  // 阶段执行日志集合
	ResolutionCollection string `yaml:"resolutionCollection"` // 冲突解决日志集合
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
type KafkaConfig struct {
	Brokers   []string `yaml:"brokers"`   // Kafka Broker 地址列表
	RunTopic  string   `yaml:"runTopic"`  // 阶段执行事件主题
	PlanTopic string   `yaml:"planTopic"` // 最终计划主题，由下游执行器消费
}

// Topics 返回需要确保存在的主题列表。
func (k KafkaConfig) Topics() []string {
	var topics []string
	for _, t := range []string{k.RunTopic, k.PlanTopic} {
		if t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// DatabaseConfigs 包含所有存储的配置。
type DatabaseConfigs struct {
	Redis   RedisConfig `yaml:"redis"`   // 状态和学习数据
	MongoDB MongoConfig `yaml:"mongodb"` // 追加写日志
	Kafka   KafkaConfig `yaml:"kafka"`   // 事件与计划分发
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
	Timezone    string `yaml:"timezone"`    // 计划所在的时区 (例如: "Asia/Shanghai")
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// LLMConfig 包含了 AI 规划模型的配置。
type LLMConfig struct {
	Provider string      `yaml:"provider"` // LLM提供商: "ollama", "openai", "gemini"
	Model    string      `yaml:"model"`    // 模型名称
	APIKey   string      `yaml:"apiKey"`   // API 密钥 (openai, gemini)
	BaseURL  string      `yaml:"baseURL"`  // 服务地址 (ollama, 兼容 openai 的服务)
	Timeout  string      `yaml:"timeout"`  // 单次调用超时，例如 "60s"
	Limiter  LimitConfig `yaml:"limiter"`  // 调用限流
}

// LimitConfig 定义了令牌桶限流器的配置。
type LimitConfig struct {
	Rate     float64 `yaml:"rate"` // 每秒速率
	Capacity int     `yaml:"capacity"`
}

// SourceConfig 定义了外部数据源 (任务、日历、天气) 的 HTTP 端点。
type SourceConfig struct {
	TasksURL    string `yaml:"tasksURL"`
	CalendarURL string `yaml:"calendarURL"`
	WeatherURL  string `yaml:"weatherURL"`
	Token       string `yaml:"token"`   // 可选的 Bearer token
	Timeout     string `yaml:"timeout"` // 请求超时，例如 "15s"
}

// PhaseConfig 定义了一个调度阶段的节奏。
type PhaseConfig struct {
	Enabled bool   `yaml:"enabled"`
	Every   string `yaml:"every"` // 例如: "15m", "1h", "24h"
}

// SchedulerConfig 定义了编排调度器的配置。
type SchedulerConfig struct {
	Tick              string                 `yaml:"tick"`              // 调度循环检查间隔
	SettleDelay       string                 `yaml:"settleDelay"`       // 完整工作流中采集后等待存储落盘的时间
	SnapshotFreshness string                 `yaml:"snapshotFreshness"` // 采集数据的新鲜度窗口
	PlanFreshness     string                 `yaml:"planFreshness"`     // 最新计划的新鲜度窗口
	Phases            map[string]PhaseConfig `yaml:"phases"`            // 键为阶段名
}

// PolicyConfig 汇集了规划和学习中所有可调的策略参数。
type PolicyConfig struct {
	ConflictConfidenceThreshold float64 `yaml:"conflictConfidenceThreshold"` // 冲突解决被应用的置信度下限 (严格大于)
	BlendPrevious               float64 `yaml:"blendPrevious"`               // 完成率混合中历史值的权重
	BlendNew                    float64 `yaml:"blendNew"`                    // 完成率混合中新值的权重
	LowCompletionRate           float64 `yaml:"lowCompletionRate"`           // 低于此值减少每日任务数
	HighCompletionRate          float64 `yaml:"highCompletionRate"`          // 高于此值增加每日任务数
	MinDailyTasks               int     `yaml:"minDailyTasks"`
	MaxDailyTasks               int     `yaml:"maxDailyTasks"`
	DefaultDailyTasks           int     `yaml:"defaultDailyTasks"`
	EfficiencyDefault           float64 `yaml:"efficiencyDefault"` // 未知任务的效率分
	EfficiencyBoost             float64 `yaml:"efficiencyBoost"`   // 完成一次加分
	EfficiencyPenalty           float64 `yaml:"efficiencyPenalty"` // 错过一次扣分
	BufferMinutes               int     `yaml:"bufferMinutes"`
	MaxEntryHours               int     `yaml:"maxEntryHours"`
	TopProductiveSlots          int     `yaml:"topProductiveSlots"`
}

// CircuitBreakerConfig 定义了熔断器的配置。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // 例如: "30s"
}

// ServerConfig 定义了控制 API 的配置。
type ServerConfig struct {
	Address string `yaml:"address"`
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App            AppInfo              `yaml:"app"`
	Logger         LoggerConfig         `yaml:"logger"`
	LLM            LLMConfig            `yaml:"llm"`
	Databases      DatabaseConfigs      `yaml:"databases"`
	Sources        SourceConfig         `yaml:"sources"`
	Scheduler      SchedulerConfig      `yaml:"scheduler"`
	Policy         PolicyConfig         `yaml:"policy"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
	Server         ServerConfig         `yaml:"server"`
}

// DefaultPolicy 返回默认的策略参数。
func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		ConflictConfidenceThreshold: 0.7,
		BlendPrevious:               0.7,
		BlendNew:                    0.3,
		LowCompletionRate:           0.7,
		HighCompletionRate:          0.9,
		MinDailyTasks:               3,
		MaxDailyTasks:               12,
		DefaultDailyTasks:           8,
		EfficiencyDefault:           0.5,
		EfficiencyBoost:             0.1,
		EfficiencyPenalty:           0.05,
		BufferMinutes:               15,
		MaxEntryHours:               8,
		TopProductiveSlots:          5,
	}
}

// DefaultScheduler 返回默认的调度配置。
func DefaultScheduler() SchedulerConfig {
	return SchedulerConfig{
		Tick:              "1s",
		SettleDelay:       "5s",
		SnapshotFreshness: "20m",
		PlanFreshness:     "120m",
		Phases: map[string]PhaseConfig{
			"collector":    {Enabled: true, Every: "15m"},
			"planner":      {Enabled: true, Every: "1h"},
			"executor":     {Enabled: true, Every: "30m"},
			"reviewer":     {Enabled: true, Every: "24h"},
			"fullWorkflow": {Enabled: false, Every: "24h"},
		},
	}
}

// ApplyDefaults 用默认值填充未配置的字段。
func (c *AppConfig) ApplyDefaults() {
	def := DefaultPolicy()
	p := &c.Policy
	if p.ConflictConfidenceThreshold == 0 {
		p.ConflictConfidenceThreshold = def.ConflictConfidenceThreshold
	}
	if p.BlendPrevious == 0 && p.BlendNew == 0 {
		p.BlendPrevious, p.BlendNew = def.BlendPrevious, def.BlendNew
	}
	if p.LowCompletionRate == 0 {
		p.LowCompletionRate = def.LowCompletionRate
	}
	if p.HighCompletionRate == 0 {
		p.HighCompletionRate = def.HighCompletionRate
	}
	if p.MinDailyTasks == 0 {
		p.MinDailyTasks = def.MinDailyTasks
	}
	if p.MaxDailyTasks == 0 {
		p.MaxDailyTasks = def.MaxDailyTasks
	}
	if p.DefaultDailyTasks == 0 {
		p.DefaultDailyTasks = def.DefaultDailyTasks
	}
	if p.EfficiencyDefault == 0 {
		p.EfficiencyDefault = def.EfficiencyDefault
	}
	if p.EfficiencyBoost == 0 {
		p.EfficiencyBoost = def.EfficiencyBoost
	}
	if p.EfficiencyPenalty == 0 {
		p.EfficiencyPenalty = def.EfficiencyPenalty
	}
	if p.BufferMinutes == 0 {
		p.BufferMinutes = def.BufferMinutes
	}
	if p.MaxEntryHours == 0 {
		p.MaxEntryHours = def.MaxEntryHours
	}
	if p.TopProductiveSlots == 0 {
		p.TopProductiveSlots = def.TopProductiveSlots
	}

	sd := DefaultScheduler()
	s := &c.Scheduler
	if s.Tick == "" {
		s.Tick = sd.Tick
	}
	if s.SettleDelay == "" {
		s.SettleDelay = sd.SettleDelay
	}
	if s.SnapshotFreshness == "" {
		s.SnapshotFreshness = sd.SnapshotFreshness
	}
	if s.PlanFreshness == "" {
		s.PlanFreshness = sd.PlanFreshness
	}
	if s.Phases == nil {
		s.Phases = sd.Phases
	}

	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Databases.Redis.KeyPrefix == "" {
		c.Databases.Redis.KeyPrefix = "daypilot"
	}
	if c.Databases.MongoDB.ExecutionCollection == "" {
		c.Databases.MongoDB.ExecutionCollection = "execution_logs"
	}
	if c.Databases.MongoDB.ResolutionCollection == "" {
		c.Databases.MongoDB.ResolutionCollection = "resolution_logs"
	}
	if c.LLM.Limiter.Rate == 0 {
		c.LLM.Limiter = LimitConfig{Rate: 1, Capacity: 5}
	}
}

// Validate 校验策略参数的取值范围。
func (p PolicyConfig) Validate() error {
	if p.ConflictConfidenceThreshold < 0 || p.ConflictConfidenceThreshold > 1 {
		return fmt.Errorf("conflictConfidenceThreshold must be within [0,1], got %v", p.ConflictConfidenceThreshold)
	}
	if sum := p.BlendPrevious + p.BlendNew; sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("blendPrevious + blendNew must equal 1, got %v", sum)
	}
	if p.LowCompletionRate > p.HighCompletionRate {
		return fmt.Errorf("lowCompletionRate %v exceeds highCompletionRate %v", p.LowCompletionRate, p.HighCompletionRate)
	}
	if p.MinDailyTasks <= 0 || p.MinDailyTasks > p.MaxDailyTasks {
		return fmt.Errorf("invalid daily task bounds [%d,%d]", p.MinDailyTasks, p.MaxDailyTasks)
	}
	return nil
}

// Buffer 返回条目之间的最小空闲时间。
func (p PolicyConfig) Buffer() time.Duration {
	return time.Duration(p.BufferMinutes) * time.Minute
}

// MaxEntry 返回由 AI 分析得到的单个条目允许的最长时长。
func (p PolicyConfig) MaxEntry() time.Duration {
	return time.Duration(p.MaxEntryHours) * time.Hour
}

// Location 返回计划所在的时区，未配置时使用本地时区。
func (a AppInfo) Location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("无法加载时区 '%s': %w", a.Timezone, err)
	}
	return loc, nil
}

// ParseDuration 解析配置中的时长字符串，空字符串返回 fallback。
func ParseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("无法解析时长 '%s': %w", value, err)
	}
	return d, nil
}

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件。
//
// 参数:
//
//	path: YAML 配置文件的路径。
//
// 返回值:
//
//	*AppConfig: 解析并填充默认值后的应用程序配置结构体。
//	error: 如果文件读取、解析或校验失败，则返回错误。
func LoadConfig(path string) (*AppConfig, error) {
	// 读取 YAML 文件内容。
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	var cfg AppConfig
	if err = yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("策略配置无效: %w", err)
	}
	return &cfg, nil
}
