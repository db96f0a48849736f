package checker

// ErrorKind classifies why a probe failed.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindTimeout           ErrorKind = "timeout"
	KindConnectionError   ErrorKind = "connection_error"
	KindOtherRequestError ErrorKind = "other_request_error"
	KindUnexpectedError   ErrorKind = "unexpected_error"
)

// ProbeResult is the normalized outcome of a single probe.
// HTTPStatus is 0 and LatencyMs is 0 when no response was obtained.
type ProbeResult struct {
	Succeeded  bool
	HTTPStatus int
	LatencyMs  float64
	ErrorKind  ErrorKind
	ErrorText  string
}

// HasResponse reports whether the probe got an HTTP response.
func (r ProbeResult) HasResponse() bool {
	return r.HTTPStatus != 0
}
