package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Client talks to a running craftd daemon over its REST API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL  string // daemon root, e.g. http://127.0.0.1:8080
	Timeout  time.Duration
	Logger   *slog.Logger // optional logger for client operations
	TLS      *TLSClientConfig
	Insecure bool // skip TLS verification
}

// TLSClientConfig holds TLS settings for connecting to an HTTPS daemon.
type TLSClientConfig struct {
	Enabled    bool
	CACert     string // CA certificate file path (the daemon's tls_ca.crt)
	ServerName string // server name for verification
	SkipVerify bool
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8080",
		Timeout: 10 * time.Second,
	}
}

// New creates a craftd API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:8080"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if (config.TLS != nil && config.TLS.Enabled) || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// IsReachable checks whether the daemon answers its list endpoint.
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/servers", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Servers lists all managed servers with their resolved status.
func (c *Client) Servers(ctx context.Context) ([]ServerDetail, error) {
	var out []ServerDetail
	if err := c.getJSON(ctx, "/api/servers", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveName maps a server name to its id via the list endpoint.
func (c *Client) ResolveName(ctx context.Context, name string) (int64, error) {
	servers, err := c.Servers(ctx)
	if err != nil {
		return 0, err
	}
	for _, s := range servers {
		if s.Name == name {
			return s.ID, nil
		}
	}
	return 0, fmt.Errorf("unknown server %q", name)
}

// Status fetches the detail of one server by id.
func (c *Client) Status(ctx context.Context, id int64) (ServerDetail, error) {
	var out ServerDetail
	err := c.getJSON(ctx, fmt.Sprintf("/api/servers/%d/status", id), &out)
	return out, err
}

// Start requests a server start. The daemon responds with a conflict when a
// supervised process is already live.
func (c *Client) Start(ctx context.Context, id int64) error {
	return c.post(ctx, fmt.Sprintf("/api/servers/%d/start", id), nil)
}

// Stop requests a graceful stop via the server's configured stop command.
func (c *Client) Stop(ctx context.Context, id int64) error {
	return c.post(ctx, fmt.Sprintf("/api/servers/%d/stop", id), nil)
}

// Restart stops the server, waits for teardown and starts it again.
func (c *Client) Restart(ctx context.Context, id int64) error {
	return c.post(ctx, fmt.Sprintf("/api/servers/%d/restart", id), nil)
}

// Kill force-terminates the server process tree.
func (c *Client) Kill(ctx context.Context, id int64) error {
	return c.post(ctx, fmt.Sprintf("/api/servers/%d/kill", id), nil)
}

// SendCommand writes one console command to the running server's stdin.
func (c *Client) SendCommand(ctx context.Context, id int64, command string) error {
	return c.post(ctx, fmt.Sprintf("/api/servers/%d/command", id), map[string]string{"command": command})
}

// Logs returns up to limit recent console lines.
func (c *Client) Logs(ctx context.Context, id int64, limit int) ([]string, error) {
	var out struct {
		Logs []string `json:"logs"`
	}
	path := fmt.Sprintf("/api/servers/%d/logs?limit=%d", id, limit)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Logs, nil
}

// Sessions returns recorded runs, newest first. Requires the daemon to have
// a session store configured.
func (c *Client) Sessions(ctx context.Context, id int64, limit int) ([]Session, error) {
	var out []Session
	path := fmt.Sprintf("/api/servers/%d/sessions?limit=%d", id, limit)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}

	if config.TLS != nil {
		if config.TLS.SkipVerify {
			tlsConfig.InsecureSkipVerify = true
		}
		if config.TLS.ServerName != "" {
			tlsConfig.ServerName = config.TLS.ServerName
		}
		if config.TLS.CACert != "" {
			if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
				return nil, fmt.Errorf("failed to load CA certificate: %w", err)
			}
		}
	}
	return tlsConfig, nil
}

func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = caCertPool
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := c.checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "error", err, "path", path)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return c.checkStatus(resp)
}

func (c *Client) checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	var errorResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Error == "" {
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	return fmt.Errorf("%s: %s", resp.Status, errorResp.Error)
}
