package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"legal-analyzer/logic/retry"
	"legal-analyzer/pkg/logger"
)

// Config describes the completion provider and the retry budget around it.
type Config struct {
	Provider  string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	// Temperature is sent as is when set, including zero; nil means
	// DefaultTemperature.
	Temperature *float32
	Timeout     time.Duration

	MaxAttempts   int
	RateLimitStep time.Duration // backoff after a 429 is attempt * RateLimitStep
	RetryDelay    time.Duration // flat delay after a network or decode failure
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Temperature == nil {
		t := DefaultTemperature
		c.Temperature = &t
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RateLimitStep <= 0 {
		c.RateLimitStep = 2 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	return c
}

const (
	DefaultBaseURL     = "https://api.groq.com/openai/v1"
	DefaultModel       = "llama-3.1-8b-instant"
	DefaultMaxTokens   = 2000
	DefaultTemperature = float32(0.1)
)

// Client calls an OpenAI-compatible /chat/completions endpoint with a bounded
// retry policy. It satisfies eino's model.BaseChatModel.
type Client struct {
	cfg        Config
	httpClient *http.Client
	policy     retry.Policy
	logger     *zap.Logger
}

var _ model.BaseChatModel = (*Client)(nil)

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for completion calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSleep replaces the sleep used between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.policy.Sleep = sleep }
}

// NewClient creates a completion client. A missing API key is a configuration error.
func NewClient(cfg Config, log *zap.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if log == nil {
		log = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     log.Named("chat"),
	}
	c.policy = Policy(cfg)
	c.policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.logger.Warn("completion attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Policy is the retry policy for completion calls: 429 backs off linearly,
// network and decode failures wait a flat delay, anything marked permanent
// (other non-2xx answers) stops immediately.
func Policy(cfg Config) retry.Policy {
	cfg = cfg.withDefaults()
	return retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		Backoff: func(attempt int, err error) time.Duration {
			if IsRateLimited(err) {
				return time.Duration(attempt) * cfg.RateLimitStep
			}
			return cfg.RetryDelay
		},
	}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature"`
}

type completionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int          `json:"index"`
		Message      *wireMessage `json:"message"`
		FinishReason string       `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate sends input as one chat completion and returns the assistant message.
func (c *Client) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	modelName, temperature, maxTokens := c.cfg.Model, *c.cfg.Temperature, c.cfg.MaxTokens
	options := model.GetCommonOptions(&model.Options{
		Model:       &modelName,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}, opts...)

	req := completionRequest{
		Model:       *options.Model,
		MaxTokens:   *options.MaxTokens,
		Temperature: *options.Temperature,
		Messages:    make([]wireMessage, 0, len(input)),
	}
	for _, m := range input {
		req.Messages = append(req.Messages, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	log := logger.WithContext(ctx, c.logger)
	start := time.Now()
	resp, err := retry.Do(ctx, c.policy, func(ctx context.Context, attempt int) (*completionResponse, error) {
		log.Debug("calling chat completion",
			zap.Int("attempt", attempt),
			zap.String("model", req.Model),
		)
		return c.do(ctx, body)
	})
	if err != nil {
		log.Error("chat completion failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return nil, err
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return nil, ErrInvalidResponse
	}
	choice := resp.Choices[0]
	log.Info("chat completion received",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("content_len", len(choice.Message.Content)),
	)

	out := &schema.Message{
		Role:    schema.Assistant,
		Content: choice.Message.Content,
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: choice.FinishReason,
		},
	}
	if resp.Usage != nil {
		out.ResponseMeta.Usage = &schema.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return out, nil
}

// Stream is served by a single Generate call.
func (c *Client) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := c.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// do performs one HTTP attempt. Errors wrapped with retry.Permanent end the loop.
func (c *Client) do(ctx context.Context, body []byte) (*completionResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, retry.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(raw)}
		if se.RateLimited() {
			return nil, se
		}
		return nil, retry.Permanent(se)
	}

	var out completionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
