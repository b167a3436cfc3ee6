package llm

import (
	"DayPilot/backend/go/internal/models"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	olla "github.com/ollama/ollama/api"
)

// Ollama 是一个用于 Ollama API 的 LLM 客户端。
type Ollama struct {
	client *olla.Client // Ollama 客户端实例。
	model  string       // 要使用的模型名称。
}

// NewOllama 创建一个新的 Ollama 客户端。
//
// 参数:
//
//	model: 要使用的模型名称。
//	baseURL: Ollama 服务的基准 URL。如果为空，则默认为 "http://localhost:11434"。
//	timeout: 单次请求的超时时间。
func NewOllama(model, baseURL string, timeout time.Duration) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	hc := &http.Client{Timeout: timeout}
	return &Ollama{client: olla.NewClient(parsedURL, hc), model: model}, nil
}

// GenerateContent 使用 Ollama API 生成内容。JSONMode 时要求模型输出 JSON。
func (o *Ollama) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	system, user := splitRoles(req)
	stream := false
	genReq := &olla.GenerateRequest{
		Model:  o.model,
		System: system,
		Prompt: strings.Join(user, "\n"),
		Stream: &stream, // 非流式传输。
	}
	if req.JSONMode {
		genReq.Format = json.RawMessage(`"json"`)
	}

	var result *olla.GenerateResponse
	err := o.client.Generate(ctx, genReq, func(resp olla.GenerateResponse) error {
		result = &resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with ollama: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("ollama returned no response")
	}
	return textResponse(result.Response, "", result.Model), nil
}
