package routeros

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/netvend/hotspot/internal/app/service/catalog"
	"github.com/netvend/hotspot/internal/app/service/reconcile"
	"github.com/netvend/hotspot/pkg/config"
)

const defaultTimeout = 10 * time.Second

// Client drives a MikroTik hotspot through the RouterOS v7 REST API.
// BaseURL is expected to include the /rest prefix, e.g.
// https://192.168.88.1/rest.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	log      *zap.SugaredLogger
}

func NewClient(cfg *config.Config, log *zap.SugaredLogger) *Client {
	timeout := cfg.RouterOS.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.RouterOS.BaseURL, "/"),
		username: cfg.RouterOS.Username,
		password: cfg.RouterOS.Password,
		http:     &http.Client{Timeout: timeout},
		log:      log,
	}
}

type resource struct {
	ID string `json:".id"`
}

// Provision admits a device: evict any stale active session, upsert the
// hotspot user bound to the device's MAC, and return the authenticated
// login URL. The caller supplies the password, so repeating the call for
// the same purchase rewrites the identical credential.
func (c *Client) Provision(ctx context.Context, req reconcile.ProvisionRequest) (string, error) {
	var active []resource
	if err := c.get(ctx, "/ip/hotspot/active", url.Values{"mac-address": {req.DeviceMAC}}, &active); err != nil {
		return "", fmt.Errorf("list active sessions: %w", err)
	}
	for _, sess := range active {
		if err := c.delete(ctx, "/ip/hotspot/active/"+sess.ID); err != nil {
			return "", fmt.Errorf("remove active session %s: %w", sess.ID, err)
		}
		c.log.Infow("evicted active hotspot session", "device", req.DeviceMAC, "session_id", sess.ID)
	}

	user := map[string]string{
		"name":        req.DeviceMAC,
		"password":    req.Password,
		"mac-address": req.DeviceMAC,
		"profile":     req.Profile,
		"comment":     "portal:" + req.DeviceMAC,
	}
	if req.Duration > 0 {
		user["limit-uptime"] = formatUptime(req.Duration)
	}

	var existing []resource
	if err := c.get(ctx, "/ip/hotspot/user", url.Values{"name": {req.DeviceMAC}}, &existing); err != nil {
		return "", fmt.Errorf("list hotspot users: %w", err)
	}
	if len(existing) > 0 {
		if err := c.patch(ctx, "/ip/hotspot/user/"+existing[0].ID, user); err != nil {
			return "", fmt.Errorf("update hotspot user: %w", err)
		}
	} else {
		if err := c.put(ctx, "/ip/hotspot/user", user); err != nil {
			return "", fmt.Errorf("create hotspot user: %w", err)
		}
	}

	c.log.Infow("hotspot user provisioned", "device", req.DeviceMAC, "profile", req.Profile)
	return fmt.Sprintf("%s?username=%s&password=%s",
		req.LoginURL, url.QueryEscape(req.DeviceMAC), url.QueryEscape(req.Password)), nil
}

// EnsureProfile creates or updates a hotspot user profile.
func (c *Client) EnsureProfile(ctx context.Context, req catalog.ProfileRequest) error {
	payload := map[string]string{"name": req.Name}
	if req.RateLimit != "" {
		payload["rate-limit"] = req.RateLimit
	}
	if req.SessionTimeout != "" {
		payload["session-timeout"] = req.SessionTimeout
	}

	var existing []resource
	if err := c.get(ctx, "/ip/hotspot/user/profile", url.Values{"name": {req.Name}}, &existing); err != nil {
		return fmt.Errorf("list profiles: %w", err)
	}
	if len(existing) > 0 {
		if err := c.patch(ctx, "/ip/hotspot/user/profile/"+existing[0].ID, payload); err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		return nil
	}
	if err := c.put(ctx, "/ip/hotspot/user/profile", payload); err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// RemoveProfile deletes a hotspot user profile; missing profiles are a no-op.
func (c *Client) RemoveProfile(ctx context.Context, name string) error {
	var existing []resource
	if err := c.get(ctx, "/ip/hotspot/user/profile", url.Values{"name": {name}}, &existing); err != nil {
		return fmt.Errorf("list profiles: %w", err)
	}
	if len(existing) == 0 {
		return nil
	}
	if err := c.delete(ctx, "/ip/hotspot/user/profile/"+existing[0].ID); err != nil {
		return fmt.Errorf("remove profile: %w", err)
	}
	c.log.Infow("hotspot profile removed", "profile", name)
	return nil
}

// CreateVoucherUser registers a standalone prepaid credential.
func (c *Client) CreateVoucherUser(ctx context.Context, name, password, profile string, duration time.Duration) error {
	user := map[string]string{
		"name":     name,
		"password": password,
		"profile":  profile,
		"comment":  "voucher:" + time.Now().UTC().Format(time.RFC3339),
	}
	if duration > 0 {
		user["limit-uptime"] = formatUptime(duration)
	}
	if err := c.put(ctx, "/ip/hotspot/user", user); err != nil {
		return fmt.Errorf("create voucher user: %w", err)
	}
	return nil
}

func formatUptime(d time.Duration) string {
	if hours := int(d.Hours()); hours > 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	p := path
	if len(query) > 0 {
		p += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, p, nil, out)
}

func (c *Client) put(ctx context.Context, path string, body any) error {
	return c.do(ctx, http.MethodPut, path, body, nil)
}

func (c *Client) patch(ctx context.Context, path string, body any) error {
	return c.do(ctx, http.MethodPatch, path, body, nil)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("routeros %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var (
	_ reconcile.AccessController = (*Client)(nil)
	_ catalog.ProfileManager     = (*Client)(nil)
)

var Module = fx.Options(
	fx.Provide(
		NewClient,
		func(c *Client) reconcile.AccessController { return c },
		func(c *Client) catalog.ProfileManager { return c },
	),
)
