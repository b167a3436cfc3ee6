package llm

import (
	"DayPilot/backend/go/internal/config"
	"DayPilot/backend/go/internal/models"
	"context"
	"fmt"
	"time"
)

// LLM 定义了所有大型语言模型客户端必须实现的通用接口。
type LLM interface {
	GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error)
}

// NewClient 是一个工厂函数，根据提供的配置创建并返回一个实现了 LLM 接口的客户端。
func NewClient(ctx context.Context, cfg config.LLMConfig) (LLM, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("no model configured for %s provider", cfg.Provider)
	}
	timeout, err := config.ParseDuration(cfg.Timeout, 120*time.Second)
	if err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case "ollama":
		return NewOllama(cfg.Model, cfg.BaseURL, timeout)
	case "openai":
		return NewOpenAI(cfg.Model, cfg.APIKey, cfg.BaseURL)
	case "gemini":
		return NewGemini(ctx, cfg.Model, cfg.APIKey)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// splitRoles 把请求拆分为系统指令和其余的用户文本。
func splitRoles(req *models.GenerateContentRequest) (system string, user []string) {
	for _, content := range req.Content {
		for _, part := range content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			if content.Role == models.SpeakerSystem {
				system += part.Text
			} else {
				user = append(user, part.Text)
			}
		}
	}
	return system, user
}

// textResponse 用单段文本构造内部响应。
func textResponse(text, id, model string) *models.GenerateContentResponse {
	return &models.GenerateContentResponse{
		Content: []models.Content{
			{Parts: []*models.Part{{Text: text}}, Role: models.SpeakerModel},
		},
		CreateTime:   time.Now(),
		ResponseID:   id,
		ModelVersion: model,
	}
}
