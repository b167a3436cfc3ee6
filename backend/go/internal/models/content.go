package models

import "time"

// SpeakerRole 定义了消息发送者的角色。
type SpeakerRole string

const (
	SpeakerUser   SpeakerRole = "user"   // 用户角色。
	SpeakerSystem SpeakerRole = "system" // 系统指令。
	SpeakerModel  SpeakerRole = "model"  // 模型角色。
)

// Content 包含了构成单个消息的多个部分。
type Content struct {
	// 可选。构成单个消息的部分列表。
	Parts []*Part `json:"parts,omitempty"`
	// 可选。内容的生产者。
	Role SpeakerRole `json:"role,omitempty"`
}

// Part 定义了消息的单个部分。规划只需要文本。
type Part struct {
	Text string `json:"text,omitempty"`
}

// GenerateContentRequest 定义了生成内容的请求结构。
type GenerateContentRequest struct {
	Content []Content `json:"content,omitempty"` // 请求的内容列表。
	// 可选。要求模型只输出 JSON。
	JSONMode bool `json:"jsonMode,omitempty"`
}

// GenerateContentResponse 定义了生成内容的响应结构。
type GenerateContentResponse struct {
	Content      []Content `json:"content,omitempty"`      // 响应的内容列表。
	CreateTime   time.Time `json:"createTime,omitempty"`   // 响应创建时间。
	ResponseID   string    `json:"responseId,omitempty"`   // 响应ID。
	ModelVersion string    `json:"modelVersion,omitempty"` // 模型版本。
}

// Text 拼接响应中所有文本部分。
func (r *GenerateContentResponse) Text() string {
	if r == nil {
		return ""
	}
	var out string
	for _, c := range r.Content {
		for _, p := range c.Parts {
			if p != nil {
				out += p.Text
			}
		}
	}
	return out
}

// NewTextRequest 以一条系统指令和一条用户消息构造请求。
func NewTextRequest(system, user string) *GenerateContentRequest {
	req := &GenerateContentRequest{JSONMode: true}
	if system != "" {
		req.Content = append(req.Content, Content{Role: SpeakerSystem, Parts: []*Part{{Text: system}}})
	}
	req.Content = append(req.Content, Content{Role: SpeakerUser, Parts: []*Part{{Text: user}}})
	return req
}
