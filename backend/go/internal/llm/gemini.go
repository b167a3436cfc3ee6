package llm

import (
	"DayPilot/backend/go/internal/models"
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini 是一个实现了 LLM 接口的结构体，用于与 Gemini API 交互。
// 规划调用彼此独立，因此每次请求都新建模型句柄而不复用聊天会话。
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini 创建一个新的 Gemini 客户端。
func NewGemini(ctx context.Context, model, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// GenerateContent 向 Gemini API 发送请求并返回响应。
func (g *Gemini) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	system, user := splitRoles(req)

	gm := g.client.GenerativeModel(g.model)
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if req.JSONMode {
		gm.ResponseMIMEType = "application/json"
	}

	parts := make([]genai.Part, 0, len(user))
	for _, u := range user {
		parts = append(parts, genai.Text(u))
	}
	resp, err := gm.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	return textResponse(fromGenaiText(resp), "", g.model), nil
}

// Close 释放底层 GenAI 客户端。
func (g *Gemini) Close() error {
	return g.client.Close()
}

// fromGenaiText 提取第一个候选中的全部文本部分。
func fromGenaiText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		break
	}
	return sb.String()
}
