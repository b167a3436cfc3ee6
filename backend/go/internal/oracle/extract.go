package oracle

import (
	"encoding/json"
	"strings"
)

// ExtractJSON 从模型的自由文本回复中尽力提取第一个完整的 JSON 对象。
// 支持纯 JSON、```json 代码块以及夹杂在说明文字中的对象。
func ExtractJSON(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	if strings.HasPrefix(text, "{") && json.Valid([]byte(text)) {
		return text, true
	}
	for _, block := range fencedBlocks(text) {
		if obj, ok := scanObject(block); ok {
			return obj, true
		}
	}
	return scanObject(text)
}

// fencedBlocks 返回所有 ``` 代码块的内容。
func fencedBlocks(text string) []string {
	var blocks []string
	rest := text
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			return blocks
		}
		rest = rest[start+3:]
		// 跳过语言标记，例如 ```json
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.Contains(rest[:nl], "{") {
			rest = rest[nl+1:]
		}
		end := strings.Index(rest, "```")
		if end < 0 {
			return append(blocks, rest)
		}
		blocks = append(blocks, rest[:end])
		rest = rest[end+3:]
	}
}

// scanObject 依次尝试每个 '{'，返回第一个括号平衡且合法的 JSON 对象。
func scanObject(text string) (string, bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		if end, ok := matchBrace(text, i); ok {
			candidate := text[i : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
	}
	return "", false
}

// matchBrace 返回与 start 处 '{' 匹配的 '}' 的位置，忽略字符串中的括号。
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
