package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/nimasrn/report-dispatcher/pkg/logger"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

const apiSlack = "slack"

var (
	// ErrPlatform wraps every ok:false answer from the Web API.
	ErrPlatform        = errors.New("messaging platform error")
	ErrCircuitOpen     = errors.New("messaging circuit open")
	ErrChannelNotFound = errors.New("channel not found")
)

type SlackConfig struct {
	BaseURL                 string
	Token                   string
	Timeout                 time.Duration
	RatePerSec              int
	ChannelPageSize         int
	UserPageSize            int
	MaxConns                int
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
}

func DefaultSlackConfig() SlackConfig {
	return SlackConfig{
		BaseURL:                 "https://slack.com/api",
		Timeout:                 10 * time.Second,
		RatePerSec:              1,
		ChannelPageSize:         1000,
		UserPageSize:            200,
		MaxConns:                16,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
	}
}

// SlackClient talks to the Slack Web API. Calls are never retried: a message
// that may have been accepted must not be posted twice.
type SlackClient struct {
	config           SlackConfig
	client           *fasthttp.Client
	limiter          *rate.Limiter
	metrics          *CallMetrics
	circuitOpenUntil atomic.Int64
}

func NewSlackClient(config SlackConfig) (*SlackClient, error) {
	if config.Token == "" {
		return nil, errors.New("slack token is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultSlackConfig().BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.ChannelPageSize <= 0 {
		config.ChannelPageSize = 1000
	}
	if config.UserPageSize <= 0 {
		config.UserPageSize = 200
	}
	if config.CircuitBreakerThreshold <= 0 {
		config.CircuitBreakerThreshold = 5
	}

	limit := rate.Inf
	if config.RatePerSec > 0 {
		limit = rate.Limit(config.RatePerSec)
	}

	c := &SlackClient{
		config: config,
		client: &fasthttp.Client{
			MaxConnsPerHost:     config.MaxConns,
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
		},
		limiter: rate.NewLimiter(limit, 1),
		metrics: NewCallMetrics(),
	}
	logger.Info("Slack client initialized", "base_url", config.BaseURL, "timeout", config.Timeout, "rate_per_sec", config.RatePerSec)
	return c, nil
}

// WithTransport swaps the underlying dialer. Tests use it with an in-memory listener.
func (c *SlackClient) WithTransport(client *fasthttp.Client) *SlackClient {
	c.client = client
	return c
}

func (c *SlackClient) Stats() CallStats {
	return c.metrics.Stats(apiSlack)
}

type slackEnvelope struct {
	OK               bool   `json:"ok"`
	Error            string `json:"error"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

func (e *slackEnvelope) envelope() *slackEnvelope { return e }

type slackResponse interface {
	envelope() *slackEnvelope
}

func (c *SlackClient) PostMessage(ctx context.Context, channel, text, threadTS string) (*model.PostResult, error) {
	payload := map[string]any{
		"channel": channel,
		"text":    text,
	}
	if threadTS != "" {
		payload["thread_ts"] = threadTS
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp struct {
		slackEnvelope
		Channel string `json:"channel"`
		TS      string `json:"ts"`
	}
	if err := c.call(ctx, "chat.postMessage", fasthttp.MethodPost, nil, body, "application/json; charset=utf-8", &resp); err != nil {
		return nil, err
	}
	return &model.PostResult{Channel: resp.Channel, TS: resp.TS}, nil
}

type slackMember struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RealName string `json:"real_name"`
	Deleted  bool   `json:"deleted"`
	IsBot    bool   `json:"is_bot"`
	Profile  struct {
		RealName    string `json:"real_name"`
		DisplayName string `json:"display_name"`
	} `json:"profile"`
}

// ListUsers returns the full member directory, deleted and bot accounts included.
func (c *SlackClient) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	cursor := ""
	for {
		args := fasthttp.AcquireArgs()
		args.Set("limit", strconv.Itoa(c.config.UserPageSize))
		if cursor != "" {
			args.Set("cursor", cursor)
		}

		var resp struct {
			slackEnvelope
			Members []slackMember `json:"members"`
		}
		err := c.call(ctx, "users.list", fasthttp.MethodGet, args, nil, "", &resp)
		fasthttp.ReleaseArgs(args)
		if err != nil {
			return nil, err
		}

		for _, m := range resp.Members {
			realName := m.RealName
			if realName == "" {
				realName = m.Profile.RealName
			}
			users = append(users, model.User{
				ID:          m.ID,
				Name:        m.Name,
				RealName:    realName,
				DisplayName: m.Profile.DisplayName,
				Deleted:     m.Deleted,
				IsBot:       m.IsBot,
			})
		}

		cursor = resp.ResponseMetadata.NextCursor
		if cursor == "" {
			return users, nil
		}
	}
}

func (c *SlackClient) ListChannels(ctx context.Context) ([]model.Channel, error) {
	var channels []model.Channel
	cursor := ""
	for {
		args := fasthttp.AcquireArgs()
		args.Set("types", "public_channel,private_channel")
		args.Set("limit", strconv.Itoa(c.config.ChannelPageSize))
		if cursor != "" {
			args.Set("cursor", cursor)
		}

		var resp struct {
			slackEnvelope
			Channels []model.Channel `json:"channels"`
		}
		err := c.call(ctx, "conversations.list", fasthttp.MethodGet, args, nil, "", &resp)
		fasthttp.ReleaseArgs(args)
		if err != nil {
			return nil, err
		}

		channels = append(channels, resp.Channels...)
		cursor = resp.ResponseMetadata.NextCursor
		if cursor == "" {
			return channels, nil
		}
	}
}

// ChannelID looks a channel up by name. A leading '#' is ignored.
func (c *SlackClient) ChannelID(ctx context.Context, name string) (string, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "#")
	channels, err := c.ListChannels(ctx)
	if err != nil {
		return "", err
	}
	for _, ch := range channels {
		if ch.Name == name {
			return ch.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrChannelNotFound, name)
}

func (c *SlackClient) History(ctx context.Context, channel string, limit int) ([]model.ChannelMessage, error) {
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	args.Set("channel", channel)
	args.Set("limit", strconv.Itoa(limit))

	var resp struct {
		slackEnvelope
		Messages []model.ChannelMessage `json:"messages"`
	}
	if err := c.call(ctx, "conversations.history", fasthttp.MethodGet, args, nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// UploadFile shares a local file into a channel with comment as the message
// body. It uses the external upload flow: reserve a URL, push the bytes,
// then complete the upload against the channel.
func (c *SlackClient) UploadFile(ctx context.Context, channel, path, comment, threadTS string) (*model.UploadResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload file: %w", err)
	}
	filename := filepath.Base(path)

	args := fasthttp.AcquireArgs()
	args.Set("filename", filename)
	args.Set("length", strconv.Itoa(len(content)))
	var reserve struct {
		slackEnvelope
		UploadURL string `json:"upload_url"`
		FileID    string `json:"file_id"`
	}
	err = c.call(ctx, "files.getUploadURLExternal", fasthttp.MethodPost, nil, args.QueryString(), "application/x-www-form-urlencoded", &reserve)
	fasthttp.ReleaseArgs(args)
	if err != nil {
		return nil, err
	}

	if err := c.push(ctx, reserve.UploadURL, filename, content); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"files":      []map[string]string{{"id": reserve.FileID, "title": filename}},
		"channel_id": channel,
	}
	if comment != "" {
		payload["initial_comment"] = comment
	}
	if threadTS != "" {
		payload["thread_ts"] = threadTS
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	var complete struct {
		slackEnvelope
		Files []struct {
			ID string `json:"id"`
		} `json:"files"`
	}
	if err := c.call(ctx, "files.completeUploadExternal", fasthttp.MethodPost, nil, body, "application/json; charset=utf-8", &complete); err != nil {
		return nil, err
	}

	fileID := reserve.FileID
	if len(complete.Files) > 0 && complete.Files[0].ID != "" {
		fileID = complete.Files[0].ID
	}
	return &model.UploadResult{FileID: fileID}, nil
}

func (c *SlackClient) push(ctx context.Context, uploadURL, filename string, content []byte) error {
	if uploadURL == "" {
		return fmt.Errorf("%w: empty upload url", ErrPlatform)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uploadURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/octet-stream")
	req.Header.Set("X-Filename", filename)
	req.SetBody(content)

	start := time.Now()
	if err := c.client.DoDeadline(req, resp, c.deadline(ctx)); err != nil {
		c.failed("files.upload", start)
		return fmt.Errorf("upload failed: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		c.failed("files.upload", start)
		return fmt.Errorf("upload failed: unexpected status code: %d", resp.StatusCode())
	}
	c.succeeded("files.upload", start)
	return nil
}

func (c *SlackClient) call(ctx context.Context, method, httpMethod string, query *fasthttp.Args, body []byte, contentType string, out slackResponse) error {
	if open := c.circuitOpenUntil.Load(); open > 0 && time.Now().Unix() <= open {
		return ErrCircuitOpen
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	uri := c.config.BaseURL + "/" + method
	if query != nil && query.Len() > 0 {
		uri += "?" + query.String()
	}
	req.SetRequestURI(uri)
	req.Header.SetMethod(httpMethod)
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	if contentType != "" {
		req.Header.SetContentType(contentType)
	}
	if body != nil {
		req.SetBody(body)
	}

	start := time.Now()
	if err := c.client.DoDeadline(req, resp, c.deadline(ctx)); err != nil {
		c.failed(method, start)
		return fmt.Errorf("%s request failed: %w", method, err)
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		c.failed(method, start)
		return fmt.Errorf("%s unexpected status code: %d, body: %s", method, resp.StatusCode(), resp.Body())
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		c.failed(method, start)
		return fmt.Errorf("failed to unmarshal %s response: %w", method, err)
	}

	env := out.envelope()
	if !env.OK {
		// the API answered, so the transport is healthy
		c.metrics.RecordSuccess(time.Since(start).Milliseconds())
		observe(apiSlack, method, "platform_error", time.Since(start))
		return fmt.Errorf("%w: %s: %s", ErrPlatform, method, env.Error)
	}

	c.succeeded(method, start)
	return nil
}

func (c *SlackClient) deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(c.config.Timeout)
}

func (c *SlackClient) succeeded(method string, start time.Time) {
	c.metrics.RecordSuccess(time.Since(start).Milliseconds())
	observe(apiSlack, method, "ok", time.Since(start))
}

func (c *SlackClient) failed(method string, start time.Time) {
	c.metrics.RecordFailure()
	observe(apiSlack, method, "error", time.Since(start))
	c.checkCircuitBreaker()
}

func (c *SlackClient) checkCircuitBreaker() {
	consecutiveFails := c.metrics.ConsecutiveFails.Load()
	if consecutiveFails >= int32(c.config.CircuitBreakerThreshold) {
		openUntil := time.Now().Add(c.config.CircuitBreakerTimeout).Unix()
		c.circuitOpenUntil.Store(openUntil)
		logger.Warn("Circuit breaker opened", "api", apiSlack, "consecutive_fails", consecutiveFails, "timeout", c.config.CircuitBreakerTimeout)
	}
}
