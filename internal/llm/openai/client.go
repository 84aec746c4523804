package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/inbox-ledger/constants"
	"github.com/joseph-ayodele/inbox-ledger/internal/llm"
	"github.com/joseph-ayodele/inbox-ledger/internal/receipt"
)

var _ llm.FieldExtractor = (*Client)(nil)

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// ExtractFields sends one page image to chat/completions and normalizes the answer.
func (c *Client) ExtractFields(ctx context.Context, image []byte) (receipt.Fields, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"image_bytes", len(image),
		"structured", c.cfg.StructuredOutput,
	)

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, err := llm.SendJSON(ctx, c.http, endpoint, c.requestBody(image), headers, c.logger)
	if err != nil {
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "error", err, "retryable", llm.IsRetryable(err),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return receipt.Fields{}, err
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil || len(cc.Choices) == 0 {
		c.logger.Warn("llm.extract.unusable_response",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return receipt.Fields{}, nil
	}
	msg := cc.Choices[0].Message
	if msg.Refusal != "" {
		c.logger.Warn("llm.extract.refused", "req_id", rid, "refusal", msg.Refusal)
		return receipt.Fields{}, nil
	}

	content := strings.TrimSpace(msg.Content)
	if span, ok := llm.ExtractJSONObject(llm.StripCodeFences(content)); ok {
		if vErr := llm.ValidateJSONAgainstSchema(c.valid, []byte(span)); vErr != nil {
			c.logger.Warn("llm.extract.schema_mismatch", "req_id", rid, "error", vErr)
		}
	}
	fields := llm.DecodeFields(content, c.logger)

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"store", fields.Store.String(),
		"date", fields.Date.String(),
		"amount", fields.Amount.String(),
		"category", fields.Category.String(),
		"finish_reason", cc.Choices[0].FinishReason,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return fields, nil
}

func (c *Client) requestBody(image []byte) map[string]any {
	responseFormat := map[string]any{"type": "json_object"}
	if c.cfg.StructuredOutput {
		responseFormat = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "receipt_fields",
				"strict": true,
				"schema": c.schema,
			},
		}
	}
	return map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"max_tokens":      c.cfg.MaxTokens,
		"response_format": responseFormat,
		"messages": []map[string]any{
			{"role": "system", "content": llm.BuildSystemPrompt()},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": llm.UserInstruction},
				{"type": "image_url", "image_url": map[string]any{
					"url":    imageDataURL(image),
					"detail": c.cfg.ImageDetail,
				}},
			}},
		},
	}
}

func imageDataURL(b []byte) string {
	mt := http.DetectContentType(b)
	if !strings.HasPrefix(mt, "image/") {
		mt = constants.MimePNG
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(b)
}
