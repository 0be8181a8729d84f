package status

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EndpointStatus holds the latest probe result for a deployed endpoint.
type EndpointStatus struct {
	Healthy          bool      `json:"healthy"`
	LastCheck        time.Time `json:"last_check"`
	ResponseTime     float64   `json:"response_time_ms"`
	StatusCode       int       `json:"status_code"`
	ErrorCount       int       `json:"error_count"`
	ConsecutiveError int       `json:"consecutive_errors"`
	URL              string    `json:"url"`
}

// Checker periodically probes the deployed stack's health endpoints.
type Checker struct {
	mu                   sync.RWMutex
	endpoints            map[string]*EndpointStatus
	checkInterval        time.Duration
	httpClient           *http.Client
	maxConsecutiveErrors int
}

// NewChecker creates a checker that probes on the given interval.
func NewChecker(checkInterval time.Duration) *Checker {
	return &Checker{
		endpoints:            make(map[string]*EndpointStatus),
		checkInterval:        checkInterval,
		maxConsecutiveErrors: 3,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// AddEndpoint registers an endpoint to be probed.
func (c *Checker) AddEndpoint(name, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.endpoints[name] = &EndpointStatus{
		Healthy:   false,
		URL:       url,
		LastCheck: time.Now(),
	}
}

// Start begins the probe loop and blocks until the context is cancelled.
func (c *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(c.checkInterval)
	defer ticker.Stop()

	c.checkAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAll(ctx)
		}
	}
}

// Snapshot returns a copy of every endpoint's latest status.
func (c *Checker) Snapshot() map[string]EndpointStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	all := make(map[string]EndpointStatus, len(c.endpoints))
	for name, status := range c.endpoints {
		all[name] = *status
	}
	return all
}

// HealthyCount returns how many endpoints currently pass their probes.
func (c *Checker) HealthyCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, status := range c.endpoints {
		if status.Healthy {
			count++
		}
	}
	return count
}

func (c *Checker) checkAll(ctx context.Context) {
	c.mu.RLock()
	names := make([]string, 0, len(c.endpoints))
	for name := range c.endpoints {
		names = append(names, name)
	}
	c.mu.RUnlock()

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(endpointName string) {
			defer wg.Done()
			c.check(ctx, endpointName)
		}(name)
	}
	wg.Wait()
}

func (c *Checker) check(ctx context.Context, name string) {
	c.mu.RLock()
	endpoint, exists := c.endpoints[name]
	if !exists {
		c.mu.RUnlock()
		return
	}
	url := endpoint.URL
	c.mu.RUnlock()

	start := time.Now()
	statusCode, ok := c.probe(ctx, url)
	responseTime := float64(time.Since(start).Nanoseconds()) / 1e6

	c.mu.Lock()
	defer c.mu.Unlock()

	endpoint = c.endpoints[name]
	endpoint.LastCheck = time.Now()
	endpoint.ResponseTime = responseTime
	endpoint.StatusCode = statusCode

	if ok {
		endpoint.Healthy = true
		endpoint.ConsecutiveError = 0
		logrus.Debugf("Endpoint %s is healthy (%.2fms)", name, responseTime)
	} else {
		endpoint.ErrorCount++
		endpoint.ConsecutiveError++

		if endpoint.ConsecutiveError >= c.maxConsecutiveErrors {
			endpoint.Healthy = false
			logrus.Warnf("Endpoint %s marked unhealthy after %d consecutive errors",
				name, endpoint.ConsecutiveError)
		}
	}
}

func (c *Checker) probe(ctx context.Context, url string) (int, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logrus.Debugf("Probe failed for %s: %v", url, err)
		return 0, false
	}
	defer resp.Body.Close()

	return resp.StatusCode, resp.StatusCode >= 200 && resp.StatusCode < 400
}
