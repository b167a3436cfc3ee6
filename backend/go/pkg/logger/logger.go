package logger

import (
	"DayPilot/backend/go/internal/models"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger 是对 logrus 的封装，以提供更方便的结构化日志记录功能。
// 每个 With* 方法返回新的 Logger，因此可以在并发的阶段之间安全共享。
type Logger struct {
	entry *logrus.Entry
}

// jsonFormatter 是所有输出共用的 JSON 格式。
func jsonFormatter() *logrus.JSONFormatter {
	return &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	}
}

// Init 初始化全局的 logrus 配置。
// level: 设置日志级别 (e.g., logrus.InfoLevel, logrus.DebugLevel)。
func Init(level logrus.Level) {
	// 设置日志格式为 JSON，便于后续的日志采集和分析。
	logrus.SetFormatter(jsonFormatter())
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(level)
}

// New 创建一个新的 Logger 实例，预设组件名和本次运行的 ID。
func New(component, runID string) *Logger {
	fields := logrus.Fields{"component": component}
	if runID != "" {
		fields["run_id"] = runID
	}
	return &Logger{entry: logrus.WithFields(fields)}
}

// Discard 返回一个丢弃所有输出的 Logger，供测试使用。
func Discard() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetFormatter(jsonFormatter())
	return &Logger{entry: logrus.NewEntry(l)}
}

// ToWriter 返回一个写入 w 的 Logger，级别为 Debug，供测试断言日志内容。
func ToWriter(w io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(jsonFormatter())
	l.SetLevel(logrus.DebugLevel)
	return &Logger{entry: logrus.NewEntry(l)}
}

// Named 返回一个切换了组件名和运行 ID 的子 Logger，沿用同一个输出。
func (l *Logger) Named(component, runID string) *Logger {
	fields := logrus.Fields{"component": component}
	if runID != "" {
		fields["run_id"] = runID
	}
	return &Logger{entry: l.entry.WithFields(fields)}
}

// WithRequest 将请求信息添加到日志条目中。
func (l *Logger) WithRequest(req models.RequestInfo) *Logger {
	return &Logger{entry: l.entry.WithField("request_info", req)}
}

// WithError 将错误信息添加到日志条目中。
func (l *Logger) WithError(err models.ErrorInfo) *Logger {
	return &Logger{entry: l.entry.WithField("error", err)}
}

// WithPayload 将自定义的业务数据添加到日志条目中。
func (l *Logger) WithPayload(payload map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithField("payload", payload)}
}

// Info 记录一条信息级别的日志。
func (l *Logger) Info(message string) {
	l.entry.Info(message)
}

// Warn 记录一条警告级别的日志。
func (l *Logger) Warn(message string) {
	l.entry.Warn(message)
}

// Error 记录一条错误级别的日志。
func (l *Logger) Error(message string) {
	l.entry.Error(message)
}

// Debug 记录一条调试级别的日志。
func (l *Logger) Debug(message string) {
	l.entry.Debug(message)
}

// Fatal 记录一条致命错误级别的日志，并终止程序。
func (l *Logger) Fatal(message string) {
	l.entry.Fatal(message)
}
