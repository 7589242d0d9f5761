package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"call-kb-go/internal/config"
)

// ErrMalformedOutput marks structured output from the model that does not
// match the expected shape. Callers fail the unit; no partial salvage.
var ErrMalformedOutput = errors.New("malformed model output")

// Completer is the language-model collaborator: one structured prompt in,
// the raw content string of the completion out.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Client talks to an OpenAI-compatible chat-completions gateway.
type Client struct {
	apiURL  string
	apiKey  string
	model   string
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg config.Config) (*Client, error) {
	if cfg.LLMGatewayURL == "" || cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("llm gateway not configured")
	}
	rps := cfg.LLMRPS
	if rps <= 0 {
		rps = 2.0
	}
	return &Client{
		apiURL:  cfg.LLMGatewayURL,
		apiKey:  cfg.LLMAPIKey,
		model:   cfg.LLMModel,
		http:    &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends one prompt and returns the completion content. Transport
// failures and 5xx responses are retried with exponential backoff; 4xx and
// empty responses are not.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.0,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var content string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return fmt.Errorf("llm server error %d: %s", resp.StatusCode, string(raw))
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("llm error %d: %s", resp.StatusCode, string(raw)))
		}
		var parsed chatResponse
		if err := json.Unmarshal(raw, &parsed); err != nil || len(parsed.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("unexpected llm response: %s", string(raw)))
		}
		content = parsed.Choices[0].Message.Content
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 90 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", fmt.Errorf("llm completion failed: %w", err)
	}
	return content, nil
}

// DecodeStrict extracts the JSON object or array from a completion and
// decodes it into v, rejecting unknown fields. Any schema violation is
// ErrMalformedOutput: the unit fails rather than guessing.
func DecodeStrict(content string, v any) error {
	raw := extractJSON(content)
	if raw == "" {
		return fmt.Errorf("%w: no JSON found in completion", ErrMalformedOutput)
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

// extractJSON returns the outermost JSON object or array inside content.
// Models often wrap JSON in prose or code fences.
func extractJSON(content string) string {
	objStart := bytes.IndexByte([]byte(content), '{')
	arrStart := bytes.IndexByte([]byte(content), '[')
	start, closer := objStart, byte('}')
	if objStart == -1 || (arrStart != -1 && arrStart < objStart) {
		start, closer = arrStart, ']'
	}
	end := bytes.LastIndexByte([]byte(content), closer)
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return ""
}
