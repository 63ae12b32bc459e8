package textai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"writing-comparator/internal/domain"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete generates text for prompt with the default request timeout.
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return c.CompleteWithOptions(ctx, prompt, domain.CompletionOptions{MaxTokens: maxTokens})
}

// CompleteWithOptions generates text for prompt. Zero options fall back to the client defaults.
func (c *Client) CompleteWithOptions(ctx context.Context, prompt string, opts domain.CompletionOptions) (string, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.defaultMaxTokens
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.requestTimeout
	}

	req := chatRequest{
		Model:     c.chatModel,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
	}

	var content string
	err := c.call(ctx, opComplete, "/chat/completions", req, timeout, func(body []byte) error {
		var resp chatResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("invalid json response: %s", truncate(string(body), 200))
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
			return errors.New("malformed response: missing choices[0].message")
		}
		if msg := resp.Choices[0].Message; msg.Content != nil {
			content = *msg.Content
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}
