package llm

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Dialect names a streaming wire protocol.
type Dialect string

const (
	// DialectOpenAI streams "data: " lines terminated by "data: [DONE]".
	DialectOpenAI Dialect = "openai"
	// DialectAnthropic streams typed JSON events ended by content_block_stop.
	DialectAnthropic Dialect = "anthropic"
)

// AnthropicVersion is sent with every DialectAnthropic request.
const AnthropicVersion = "2023-06-01"

const defaultAnthropicMaxTokens = 2048

var defaultEndpoints = map[Dialect]string{
	DialectOpenAI:    "https://api.openai.com/v1/chat/completions",
	DialectAnthropic: "https://api.anthropic.com/v1/messages",
}

// decoder extracts text from one stream line.
type decoder interface {
	decode(line string) (text string, done bool, err error)
}

func decoderFor(d Dialect) (decoder, bool) {
	switch d {
	case DialectOpenAI:
		return openaiDecoder{}, true
	case DialectAnthropic:
		return anthropicDecoder{}, true
	}
	return nil, false
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type requestBody struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens,omitempty"`
	Messages  []message `json:"messages"`
	Stream    bool      `json:"stream"`
}

func buildBody(d Dialect, model, prompt string, maxTokens int) ([]byte, error) {
	if d == DialectAnthropic && maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return json.Marshal(requestBody{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
		Stream:    true,
	})
}

func setHeaders(h http.Header, d Dialect, key string) {
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "text/event-stream")
	switch d {
	case DialectOpenAI:
		h.Set("Authorization", "Bearer "+key)
	case DialectAnthropic:
		h.Set("x-api-key", key)
		h.Set("anthropic-version", AnthropicVersion)
	}
}

type openaiDecoder struct{}

type openaiChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (openaiDecoder) decode(line string) (string, bool, error) {
	payload, ok := strings.CutPrefix(line, "data:")
	if !ok {
		// comments, event names and blank separators
		return "", false, nil
	}
	payload = strings.TrimSpace(payload)
	if payload == "[DONE]" {
		return "", true, nil
	}

	var chunk openaiChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return "", false, &Error{Kind: KindMalformedPayload, Message: "undecodable data line", Detail: payload, Err: err}
	}
	if chunk.Error != nil {
		return "", true, &Error{Kind: KindBackend, Message: chunk.Error.Message}
	}
	if len(chunk.Choices) == 0 {
		return "", false, nil
	}
	return chunk.Choices[0].Delta.Content, false, nil
}

type anthropicDecoder struct{}

type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (anthropicDecoder) decode(line string) (string, bool, error) {
	line = strings.TrimSpace(line)
	if rest, ok := strings.CutPrefix(line, "data:"); ok {
		line = strings.TrimSpace(rest)
	}
	if !strings.HasPrefix(line, "{") {
		return "", false, nil
	}

	var ev anthropicEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		// keep-alive noise is expected on this dialect
		return "", false, nil
	}
	switch ev.Type {
	case "content_block_delta":
		return ev.Delta.Text, false, nil
	case "content_block_stop", "message_stop":
		return "", true, nil
	case "error":
		msg := ev.Error.Message
		if msg == "" {
			msg = "backend reported an error"
		}
		return "", true, &Error{Kind: KindBackend, Message: msg, Detail: ev.Error.Type}
	}
	return "", false, nil
}
