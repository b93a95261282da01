package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cardlead/internal/llm"
)

var _ llm.VisionCompleter = (*Client)(nil)

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete implements llm.VisionCompleter with a single chat/completions call
// carrying the instruction and the image in one user message.
func (c *Client) Complete(ctx context.Context, req llm.VisionRequest) (string, error) {
	rid := uuid.NewString()
	start := time.Now()

	imageURL, err := llm.ResolveImageURL(req.ImageURL)
	if err != nil {
		return "", fmt.Errorf("resolve image: %w", err)
	}

	c.log.Debug("llm.complete.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"instruction_len", len(req.Instruction),
		"inline_image", strings.HasPrefix(imageURL, "data:"),
	)

	body := map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": req.Instruction},
					{"type": "image_url", "image_url": map[string]any{"url": imageURL}},
				},
			},
		},
	}
	if c.cfg.Temperature > 0 {
		body["temperature"] = c.cfg.Temperature
	}
	if c.cfg.MaxTokens > 0 {
		body["max_tokens"] = c.cfg.MaxTokens
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, err := llm.SendJSON(ctx, c.httpClient, endpoint, body, headers, c.log)
	if err != nil {
		c.log.Warn("llm.complete.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("no choices in openai response")
	}
	msg := cc.Choices[0].Message
	content := msg.Content
	if content == "" && msg.Refusal != "" {
		// Surface structured refusals as text so the classifier sees them.
		content = msg.Refusal
	}

	c.log.Info("llm.complete.ok",
		"req_id", rid,
		"finish_reason", cc.Choices[0].FinishReason,
		"content_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}
