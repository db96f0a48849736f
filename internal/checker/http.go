package checker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

// drainLimit caps how much of a response body is read before closing it.
const drainLimit = 1 << 20

var errTooManyRedirects = errors.New("too many redirects")

// HTTPOptions configures an HTTPChecker.
type HTTPOptions struct {
	UserAgent    string
	MaxRedirects int
	// Transport overrides the tuned default transport.
	Transport http.RoundTripper
}

// HTTPChecker probes URLs with GET, following redirects.
type HTTPChecker struct {
	client *http.Client
}

// NewHTTP returns an HTTPChecker sharing one client across all probes.
func NewHTTP(opts HTTPOptions) *HTTPChecker {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = DefaultMaxRedirects
	}
	rt := opts.Transport
	if rt == nil {
		rt = newTransport()
	}
	maxRedirects := opts.MaxRedirects
	return &HTTPChecker{
		client: &http.Client{
			Transport: userAgentTransport{rt: rt, userAgent: opts.UserAgent},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects: %w", maxRedirects, errTooManyRedirects)
				}
				return nil
			},
		},
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Probe issues a GET to url. Success is any final status in [200, 400).
func (c *HTTPChecker) Probe(ctx context.Context, url string, timeout time.Duration) (result ProbeResult) {
	defer func() {
		if p := recover(); p != nil {
			result = ProbeResult{
				ErrorKind: KindUnexpectedError,
				ErrorText: fmt.Sprintf("Unexpected Error: %v", p),
			}
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ProbeResult{ErrorKind: KindOtherRequestError, ErrorText: err.Error()}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return failed(err)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	resp.Body.Close()
	latency := float64(time.Since(start)) / float64(time.Millisecond)

	result = ProbeResult{HTTPStatus: resp.StatusCode, LatencyMs: latency}
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		result.Succeeded = true
		return result
	}
	result.ErrorKind = KindOtherRequestError
	result.ErrorText = fmt.Sprintf("HTTP %d", resp.StatusCode)
	return result
}

func failed(err error) ProbeResult {
	kind := classifyError(err)
	text := err.Error()
	switch kind {
	case KindTimeout:
		text = "Timeout"
	case KindConnectionError:
		text = "Connection Error"
	}
	return ProbeResult{ErrorKind: kind, ErrorText: text}
}

// classifyError maps a client error onto an ErrorKind.
func classifyError(err error) ErrorKind {
	if errors.Is(err, errTooManyRedirects) {
		return KindOtherRequestError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var (
		dnsErr    *net.DNSError
		opErr     *net.OpError
		certErr   *tls.CertificateVerificationError
		unknownCA x509.UnknownAuthorityError
		hostErr   x509.HostnameError
		recordErr tls.RecordHeaderError
	)
	switch {
	case errors.As(err, &dnsErr),
		errors.As(err, &opErr),
		errors.As(err, &certErr),
		errors.As(err, &unknownCA),
		errors.As(err, &hostErr),
		errors.As(err, &recordErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return KindConnectionError
	}
	return KindOtherRequestError
}

// userAgentTransport sets the probe User-Agent on every request, including
// redirect hops.
type userAgentTransport struct {
	rt        http.RoundTripper
	userAgent string
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.rt.RoundTrip(req)
}
