// Package proxmox is a thin client for the Proxmox VE HTTP API, limited to
// the LXC container operations the agent needs.
package proxmox

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "reaperd/pkg/logx"
)

type Config struct {
	// BaseURL of the API, e.g. "https://proxmox.example.com:8006/api2/json".
	BaseURL string
	// TokenID in "user@pam!tokenid" form.
	TokenID     string
	TokenSecret string
	Node        string
	Timeout     time.Duration
	// InsecureSkipVerify disables TLS verification. Only for lab setups with
	// self-signed certificates.
	InsecureSkipVerify bool
}

type Client struct {
	cfg  Config
	log  logx.Logger
	http *http.Client
}

// Container is one LXC entry as returned by /nodes/<node>/lxc.
type Container struct {
	VMID   json.Number `json:"vmid"`
	Name   string      `json:"name"`
	Status string      `json:"status"`
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("proxmox base_url is empty")
	}
	if strings.TrimSpace(cfg.TokenID) == "" || strings.TrimSpace(cfg.TokenSecret) == "" {
		return nil, errors.New("proxmox api token is not configured")
	}
	if strings.TrimSpace(cfg.Node) == "" {
		return nil, errors.New("proxmox node is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	hc := &http.Client{Timeout: cfg.Timeout}
	if cfg.InsecureSkipVerify {
		hc.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}
	return &Client{cfg: cfg, log: log, http: hc}, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("PVEAPIToken=%s=%s", c.cfg.TokenID, c.cfg.TokenSecret))

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("proxmox %s %s: http %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ListContainers lists LXC containers on the configured node.
func (c *Client) ListContainers(ctx context.Context) ([]Container, error) {
	var payload struct {
		Data []Container `json:"data"`
	}
	path := fmt.Sprintf("/nodes/%s/lxc", c.cfg.Node)
	if err := c.do(ctx, http.MethodGet, path, &payload); err != nil {
		return nil, err
	}
	return payload.Data, nil
}

// ContainerExists reports whether vmid is present on the node.
func (c *Client) ContainerExists(ctx context.Context, vmid string) (bool, error) {
	cts, err := c.ListContainers(ctx)
	if err != nil {
		return false, err
	}
	for _, ct := range cts {
		if ct.VMID.String() == vmid {
			return true, nil
		}
	}
	return false, nil
}

// StartContainer starts a stopped container.
func (c *Client) StartContainer(ctx context.Context, vmid string) error {
	path := fmt.Sprintf("/nodes/%s/lxc/%s/status/start", c.cfg.Node, vmid)
	return c.do(ctx, http.MethodPost, path, nil)
}

// StopContainer stops a running container.
func (c *Client) StopContainer(ctx context.Context, vmid string) error {
	path := fmt.Sprintf("/nodes/%s/lxc/%s/status/stop", c.cfg.Node, vmid)
	return c.do(ctx, http.MethodPost, path, nil)
}

// DeleteContainer deletes a container.
func (c *Client) DeleteContainer(ctx context.Context, vmid string) error {
	path := fmt.Sprintf("/nodes/%s/lxc/%s", c.cfg.Node, vmid)
	return c.do(ctx, http.MethodDelete, path, nil)
}
