// Package checker performs single HTTP reachability probes and normalizes
// their outcome into a ProbeResult.
package checker

import (
	"context"
	"time"
)

// DefaultUserAgent identifies probe traffic to the monitored sites.
const DefaultUserAgent = "UptimeMonitorBot/1.0"

// DefaultMaxRedirects is the redirect hop limit when none is configured.
const DefaultMaxRedirects = 10

// Checker performs one probe against url, bounded by timeout.
// Implementations never return errors; failures are encoded in the result.
type Checker interface {
	Probe(ctx context.Context, url string, timeout time.Duration) ProbeResult
}
