package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

const (
	activityPath     = "/device-activity"
	defaultServerURL = "http://localhost:8080"
	defaultTimeout   = 10 * time.Second

	// Server reply bodies are small; anything larger is truncated.
	maxResponseBytes = 4096
)

// Environment variables read by DefaultSyncConfig.
const (
	ServerURLEnv   = "APPLOCK_SERVER_URL"
	SyncTimeoutEnv = "APPLOCK_SYNC_TIMEOUT_SEC"
)

// SyncConfig configures the activity server client.
type SyncConfig struct {
	ServerURL string
	Timeout   time.Duration
	// FailureThreshold consecutive failures pause reporting for Cooldown.
	FailureThreshold int
	Cooldown         time.Duration
}

// DefaultSyncConfig returns the client config with environment overrides.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		ServerURL:        getEnv(ServerURLEnv, defaultServerURL),
		Timeout:          time.Duration(getIntEnv(SyncTimeoutEnv, int(defaultTimeout/time.Second))) * time.Second,
		FailureThreshold: 5,
		Cooldown:         60 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil && intVal > 0 {
			return intVal
		}
	}
	return defaultValue
}

// ActivityClient reports device activity to the guardian's server.
type ActivityClient struct {
	client   *http.Client
	endpoint string
	breaker  *failureBreaker
	logger   *zap.Logger
}

// NewActivityClient creates a client for cfg.ServerURL.
func NewActivityClient(cfg SyncConfig, logger *zap.Logger) *ActivityClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &ActivityClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		endpoint: strings.TrimRight(cfg.ServerURL, "/") + activityPath,
		breaker:  newFailureBreaker(cfg.FailureThreshold, cfg.Cooldown),
		logger:   logger,
	}
}

// LogActivity posts one activity entry with the bearer token.
func (c *ActivityClient) LogActivity(ctx context.Context, token string, entry domain.ActivityEntry) (*domain.ActivityStatus, error) {
	if !c.breaker.allow(time.Now()) {
		return nil, fmt.Errorf("activity server unavailable, reporting paused")
	}

	status, err := c.post(ctx, token, entry)
	if err != nil {
		c.breaker.recordFailure(time.Now())
		return nil, err
	}
	c.breaker.recordSuccess()
	return status, nil
}

func (c *ActivityClient) post(ctx context.Context, token string, entry domain.ActivityEntry) (*domain.ActivityStatus, error) {
	body, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal activity: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("User-Agent", "applock")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send activity: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("activity server returned status %d", resp.StatusCode)
	}

	var status domain.ActivityStatus
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &status); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	c.logger.Debug("activity synced",
		zap.String("request_id", requestID),
		zap.String("device_id", entry.DeviceID),
		zap.String("package", entry.PackageName),
		zap.String("status", status.Status))
	return &status, nil
}

// failureBreaker stops calls after threshold consecutive failures until
// cooldown elapses, then lets a single probe through.
type failureBreaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	openedAt  time.Time
}

func newFailureBreaker(threshold int, cooldown time.Duration) *failureBreaker {
	return &failureBreaker{threshold: threshold, cooldown: cooldown}
}

func (b *failureBreaker) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.threshold <= 0 || b.failures < b.threshold {
		return true
	}
	if now.Sub(b.openedAt) >= b.cooldown {
		// half-open: one more failure reopens
		b.failures = b.threshold - 1
		return true
	}
	return false
}

func (b *failureBreaker) recordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.threshold > 0 && b.failures >= b.threshold {
		b.openedAt = now
	}
}

func (b *failureBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

// Ensure ActivityClient implements domain.ActivityLogger.
var _ domain.ActivityLogger = (*ActivityClient)(nil)
