package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	// successCode is the sentinel the upstream embeds in a valid response.
	successCode = 0

	defaultTimeout = 20 * time.Second

	// maxResponseSize bounds how much of a response body we are willing to read.
	maxResponseSize = 4 * 1024 * 1024

	shareOrigin = "https://h5-share.agent61.com"
)

// SourceConfig carries the static credentials for one upstream account.
type SourceConfig struct {
	Code      string
	Channel   string
	AID       string
	Token     string
	GAID      string
	UID       string
	Pkg       string
	UserAgent string
}

// Config holds the endpoints and timing shared by all sources.
type Config struct {
	ProducerURL string
	WithdrawURL string
	Timeout     time.Duration
	// ProducerSettle is how long to wait between the producer ping and the
	// authenticated data call.
	ProducerSettle time.Duration
}

// Client fetches paginated withdrawal data for one configured source. It is
// stateless across calls apart from the static credentials.
type Client struct {
	cfg    Config
	source SourceConfig
	http   *http.Client
	logger *zap.Logger
}

func NewClient(cfg Config, source SourceConfig, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:    cfg,
		source: source,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// FetchPage retrieves one page of withdrawal records. The unauthenticated
// producer ping is sent first; its failure is logged but never propagated
// since it only feeds upstream analytics.
func (c *Client) FetchPage(ctx context.Context, page, size int) (*Page, error) {
	if err := c.callProducer(ctx); err != nil {
		c.logger.Warn("producer ping failed",
			zap.String("source", c.source.Code),
			zap.Error(err))
	}
	if err := c.settle(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(withdrawPayload{Page: page, Size: size})
	if err != nil {
		return nil, fmt.Errorf("encode withdraw payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WithdrawURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build withdraw request: %w", err)
	}
	c.applyBrowserHeaders(req)
	req.Header.Set("content-type", "application/json;charset=UTF-8")
	req.Header.Set("sec-fetch-storage-access", "active")
	req.Header.Set("token", c.source.Token)
	req.Header.Set("Referer", shareOrigin+"/")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("withdraw detail request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read withdraw response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("withdraw detail: unexpected HTTP status %d", resp.StatusCode)
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode withdraw response: %w", err)
	}
	if envelope.Code != successCode || envelope.Data == nil || envelope.Data.Records == nil {
		return nil, &Error{Code: envelope.Code, Message: envelope.Message}
	}

	current := envelope.Data.Page
	if current == 0 {
		current = page
	}
	return &Page{
		Records: envelope.Data.Records,
		Total:   envelope.Data.Total,
		Pages:   envelope.Data.Pages,
		Page:    current,
	}, nil
}

func (c *Client) callProducer(ctx context.Context) error {
	now := time.Now()
	var gaid *string
	if c.source.GAID != "" {
		gaid = &c.source.GAID
	}

	payload := producerPayload{
		Code:     c.source.Code,
		TS:       now.UnixMilli(),
		Pkg:      c.source.Pkg,
		Channel:  c.source.Channel,
		PN:       "hy",
		Platform: "vungo",
		AID:      c.source.AID,
		GAID:     gaid,
		UID:      c.source.UID,
		Type:     "event",
		ListJSON: []producerEvent{{
			TS:       strconv.FormatInt(now.Unix(), 10),
			EventKey: "tcpa_w/d_Historical",
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode producer payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ProducerURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build producer request: %w", err)
	}
	c.applyBrowserHeaders(req)
	req.Header.Set("content-type", "application/json")
	req.Header.Set("origin", shareOrigin)
	req.Header.Set("referer", shareOrigin+"/")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("producer request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("producer: unexpected HTTP status %d", resp.StatusCode)
	}
	return nil
}

// applyBrowserHeaders sets the headers the upstream expects from its own web
// client. Dropping them gets the credential flagged.
func (c *Client) applyBrowserHeaders(req *http.Request) {
	req.Header.Set("accept", "application/json, text/plain, */*")
	req.Header.Set("accept-language", "en-US,en;q=0.9")
	req.Header.Set("priority", "u=1, i")
	req.Header.Set("sec-ch-ua", `"Not)A;Brand";v="8", "Chromium";v="138", "Google Chrome";v="138"`)
	req.Header.Set("sec-ch-ua-mobile", "?0")
	req.Header.Set("sec-ch-ua-platform", `"Windows"`)
	req.Header.Set("sec-fetch-dest", "empty")
	req.Header.Set("sec-fetch-mode", "cors")
	req.Header.Set("sec-fetch-site", "cross-site")
	req.Header.Set("user-agent", c.source.UserAgent)
}

func (c *Client) settle(ctx context.Context) error {
	if c.cfg.ProducerSettle <= 0 {
		return nil
	}
	timer := time.NewTimer(c.cfg.ProducerSettle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
