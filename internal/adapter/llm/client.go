package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Client is an OpenAI-compatible chat completion client.
type Client struct {
	baseURL      string
	apiKey       string
	model        string
	systemPrompt string
	httpClient   *http.Client
}

// NewClient creates a new client. connectTimeout bounds dialing and waiting
// for response headers; the body of a stream is never timed out.
func NewClient(baseURL, apiKey, model, systemPrompt string, connectTimeout time.Duration) *Client {
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       apiKey,
		model:        model,
		systemPrompt: systemPrompt,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
				ResponseHeaderTimeout: connectTimeout,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}
}

// ChatCompletionRequest represents the OpenAI chat completion request.
type ChatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

// ChatMessage represents a chat message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Choice represents a completion choice.
type Choice struct {
	Index        int          `json:"index"`
	Delta        *ChatMessage `json:"delta,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

// StreamChunk represents a single SSE chunk from the stream.
type StreamChunk struct {
	ID      string    `json:"id"`
	Object  string    `json:"object"`
	Created int64     `json:"created"`
	Model   string    `json:"model"`
	Choices []Choice  `json:"choices"`
	Error   *APIError `json:"error,omitempty"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// APIError represents the error details.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (type: %s)", e.Message, e.Type)
}

// StreamCompletion sends a streaming chat completion request.
func (c *Client) StreamCompletion(ctx context.Context, prompt string) (Stream, error) {
	messages := make([]ChatMessage, 0, 2)
	if c.systemPrompt != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: c.systemPrompt})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(&ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	ctx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "create request")
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "send request")
	}

	if resp.StatusCode != http.StatusOK {
		defer cancel()
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			return nil, errors.Errorf("LLM API error [%d]: %s", resp.StatusCode, errResp.Error)
		}
		return nil, errors.Errorf("LLM API error [%d]: %s", resp.StatusCode, string(respBody))
	}

	return &sseStream{
		body:   resp.Body,
		reader: bufio.NewReader(resp.Body),
		cancel: cancel,
	}, nil
}

// setHeaders sets common request headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// sseStream reads "data: " lines of an OpenAI-style event stream.
type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	cancel context.CancelFunc
	done   bool
}

func (s *sseStream) Recv() (string, error) {
	for !s.done {
		line, readErr := s.reader.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return "", errors.Wrap(readErr, "read stream")
		}
		if readErr == io.EOF {
			// Some servers end the body without a [DONE] marker.
			s.done = true
		}

		text, ok, err := s.parseLine(strings.TrimSpace(line))
		if err != nil {
			return "", err
		}
		if ok {
			return text, nil
		}
	}
	return "", io.EOF
}

// parseLine extracts delta text from one line; ok is false for lines that
// carry no text.
func (s *sseStream) parseLine(line string) (string, bool, error) {
	if !strings.HasPrefix(line, "data:") {
		return "", false, nil
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "[DONE]" {
		s.done = true
		return "", false, nil
	}
	if data == "" {
		return "", false, nil
	}

	var chunk StreamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		// Skip malformed chunks
		log.Debug().Err(err).Str("component", "llm").Msg("skipping malformed stream chunk")
		return "", false, nil
	}
	if chunk.Error != nil {
		return "", false, errors.Wrap(chunk.Error, "LLM stream error")
	}

	var sb strings.Builder
	for _, choice := range chunk.Choices {
		if choice.Delta != nil {
			sb.WriteString(choice.Delta.Content)
		}
	}
	if sb.Len() == 0 {
		return "", false, nil
	}
	return sb.String(), true, nil
}

func (s *sseStream) Close() error {
	s.done = true
	s.cancel()
	return s.body.Close()
}
