// Package slack implements the delivery adapter for Slack.
//
// It talks to chat.postMessage directly with net/http; the payload is three
// fields, which does not justify an SDK dependency.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	logx "reaperd/pkg/logx"
)

const postMessageURL = "https://slack.com/api/chat.postMessage"

type Config struct {
	BotToken string
	// DefaultChannel receives messages whose destination is empty.
	DefaultChannel string
	Timeout        time.Duration
}

type Adapter struct {
	cfg  Config
	log  logx.Logger
	http *http.Client
	url  string
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("slack bot token is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{
		cfg:  cfg,
		log:  log,
		http: &http.Client{Timeout: cfg.Timeout},
		url:  postMessageURL,
	}, nil
}

func (a *Adapter) Name() string { return "slack" }

type postMessageReq struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type postMessageResp struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (a *Adapter) Send(ctx context.Context, destination, text string) error {
	dest := strings.TrimSpace(destination)
	if dest == "" {
		dest = a.cfg.DefaultChannel
	}
	if dest == "" {
		return errors.New("no destination and no default channel")
	}

	body, err := json.Marshal(postMessageReq{Channel: dest, Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+a.cfg.BotToken)

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack post: http %d", resp.StatusCode)
	}
	var pr postMessageResp
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return fmt.Errorf("slack post: decode response: %w", err)
	}
	if !pr.OK {
		return fmt.Errorf("slack post: %s", pr.Error)
	}
	a.log.Debug("message delivered", logx.String("channel", dest))
	return nil
}
