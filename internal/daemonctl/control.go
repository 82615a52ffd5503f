// Package daemonctl inspects a vodingest daemon from the command line.
package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"vodingest/internal/api"
	"vodingest/internal/config"
	"vodingest/internal/daemon"
	"vodingest/internal/daemonrun"
	"vodingest/internal/logging"
)

// cliUserID identifies the command line client to the daemon API.
const cliUserID = "vodingest-cli"

// ErrDaemonNotRunning indicates the daemon API is unreachable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// Client queries a running daemon over its HTTP API as an admin.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a client for the configured API bind address, or nil
// when the API is disabled.
func NewClient(cfg *config.Config) *Client {
	if cfg == nil || strings.TrimSpace(cfg.API.Bind) == "" {
		return nil
	}
	return &Client{
		baseURL: "http://" + dialAddress(cfg.API.Bind),
		token:   cfg.API.Token,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// dialAddress turns a listen address into one a local client can reach.
func dialAddress(bind string) string {
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return bind
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

// Status fetches GET /api/status.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var status api.DaemonStatus
	if c == nil {
		return status, ErrDaemonNotRunning
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/status", nil)
	if err != nil {
		return status, err
	}
	req.Header.Set(daemon.HeaderUserID, cliUserID)
	req.Header.Set(daemon.HeaderUserRole, "admin")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return status, fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &body) != nil || body.Error == "" {
			body.Error = strings.TrimSpace(string(raw))
		}
		return status, fmt.Errorf("daemon status: HTTP %d: %s", resp.StatusCode, body.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("decode daemon status: %w", err)
	}
	return status, nil
}

// ProcessInfo reports whether a daemon holds the lock for this data directory
// and its recorded PID, when available.
func ProcessInfo(cfg *config.Config) (bool, int, error) {
	if cfg == nil {
		return false, 0, errors.New("configuration not available")
	}
	pid := 0
	if data, err := os.ReadFile(cfg.PIDPath()); err == nil {
		if parsed, parseErr := strconv.Atoi(strings.TrimSpace(string(data))); parseErr == nil && parsed > 0 {
			pid = parsed
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, 0, fmt.Errorf("read daemon pid file: %w", err)
	}

	if _, err := os.Stat(cfg.LockPath()); errors.Is(err, os.ErrNotExist) {
		return false, pid, nil
	}
	probe := flock.New(cfg.LockPath())
	acquired, err := probe.TryLock()
	if err != nil {
		return false, pid, fmt.Errorf("probe daemon lock: %w", err)
	}
	if acquired {
		_ = probe.Unlock()
		return false, pid, nil
	}
	return true, pid, nil
}

// BuildStatusSnapshot asks the running daemon for its status. When the daemon
// cannot be reached it opens the databases directly and reports an offline
// snapshot; live reports whether the daemon answered.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (status api.DaemonStatus, live bool, err error) {
	if cfg == nil {
		return status, false, errors.New("configuration not available")
	}

	running, pid, _ := ProcessInfo(cfg)
	if running {
		status, err = NewClient(cfg).Status(ctx)
		if err == nil {
			return status, true, nil
		}
		if !errors.Is(err, ErrDaemonNotRunning) {
			return status, false, err
		}
	}

	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	logger := logging.NewNop()
	stack, err := daemonrun.Open(queryCtx, cfg, logger)
	if err != nil {
		return status, false, err
	}
	defer stack.Close()

	d, err := daemon.New(cfg, stack.Components(), logger)
	if err != nil {
		return status, false, err
	}
	status = d.Status(queryCtx).View()
	status.Running = running
	status.PID = 0
	if running {
		status.PID = pid
	}
	return status, false, nil
}
