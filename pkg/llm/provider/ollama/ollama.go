// Package ollama implements the Chatter interface against Ollama's native
// /api/chat endpoint, including its NDJSON streaming format.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/engramchat/engram/pkg/llm"
	"github.com/engramchat/engram/pkg/llm/provider"
)

const (
	// DefaultModel is used when a request carries no model.
	DefaultModel = "gemma3:4b"

	// DefaultBaseURL is the default Ollama API URL.
	DefaultBaseURL = "http://localhost:11434"
)

// Chatter is an Ollama chat client.
type Chatter struct {
	baseURL    string
	httpClient *http.Client
}

// Config holds configuration for the Ollama chatter.
type Config struct {
	// BaseURL is the Ollama API URL. Defaults to DefaultBaseURL if empty.
	BaseURL string
}

// ollamaMessage is an Ollama-native message.
type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaOptions carries generation parameters in Ollama's options envelope.
type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
}

// ollamaRequest is the Ollama-native request format.
type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

// ollamaChunk represents a single response object from Ollama, streaming or not.
type ollamaChunk struct {
	Model           string        `json:"model"`
	CreatedAt       time.Time     `json:"created_at"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
	TotalDuration   int64         `json:"total_duration,omitempty"`
}

// NewChatter creates an Ollama chat client.
func NewChatter(cfg Config) *Chatter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Chatter{
		baseURL: baseURL,
		httpClient: &http.Client{
			// LLM responses can be slow
			Timeout: 5 * time.Minute,
		},
	}
}

// Name returns the canonical provider name.
func (c *Chatter) Name() string {
	return "ollama"
}

// Chat performs a blocking chat completion.
func (c *Chatter) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body, err := c.send(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var chunk ollamaChunk
	if err := json.NewDecoder(body).Decode(&chunk); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return chunk.toResponse(), nil
}

// ChatStream performs a streaming chat completion, invoking handler for each
// NDJSON chunk Ollama emits.
func (c *Chatter) ChatStream(ctx context.Context, req *llm.ChatRequest, handler provider.StreamHandler) (*llm.ChatResponse, error) {
	body, err := c.send(ctx, req, true)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var fullContent strings.Builder
	var last ollamaChunk

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var chunk ollamaChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return nil, fmt.Errorf("parsing stream chunk: %w", err)
		}
		last = chunk

		if chunk.Message.Content != "" {
			fullContent.WriteString(chunk.Message.Content)
		}

		if handler != nil {
			err := handler(llm.StreamChunk{
				Model:      chunk.Model,
				CreatedAt:  chunk.CreatedAt,
				Message:    llm.NewMessage(llm.RoleAssistant, chunk.Message.Content),
				Done:       chunk.Done,
				StopReason: chunk.DoneReason,
			})
			if err != nil {
				return nil, err
			}
		}

		if chunk.Done {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stream: %w", err)
	}

	resp := last.toResponse()
	resp.Message = llm.NewMessage(llm.RoleAssistant, fullContent.String())
	resp.Done = true
	return resp, nil
}

// send marshals and posts the request, returning the raw response body.
func (c *Chatter) send(ctx context.Context, req *llm.ChatRequest, stream bool) (io.ReadCloser, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	messages := make([]ollamaMessage, 0, len(req.Messages)+1)

	// Ollama has no separate system field; prepend it as a system message.
	if req.System != "" {
		messages = append(messages, ollamaMessage{
			Role:    string(llm.RoleSystem),
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, ollamaMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	oreq := ollamaRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
	}
	if req.Temperature != nil || req.MaxTokens != nil {
		oreq.Options = &ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		}
	}

	body, err := json.Marshal(oreq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := c.baseURL + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to ollama: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return resp.Body, nil
}

func (c ollamaChunk) toResponse() *llm.ChatResponse {
	resp := &llm.ChatResponse{
		Model:      c.Model,
		CreatedAt:  c.CreatedAt,
		Message:    llm.NewMessage(llm.RoleAssistant, c.Message.Content),
		Done:       c.Done,
		StopReason: c.DoneReason,
	}

	if c.PromptEvalCount > 0 || c.EvalCount > 0 || c.TotalDuration > 0 {
		resp.Usage = &llm.Usage{
			PromptTokens:     c.PromptEvalCount,
			CompletionTokens: c.EvalCount,
			TotalTokens:      c.PromptEvalCount + c.EvalCount,
			TotalDurationNs:  c.TotalDuration,
		}
	}

	return resp
}

// Ensure Chatter implements provider.Chatter
var _ provider.Chatter = (*Chatter)(nil)
