package utils

import (
	"net/http"
)

// UserAgent is sent on outbound requests that do not carry their own.
const UserAgent = "lfspages"

var HTTPClient = &http.Client{
	Transport: newUserAgentRoundTripper(http.DefaultTransport),
}

type userAgentRoundTripper struct {
	base http.RoundTripper
}

func newUserAgentRoundTripper(base http.RoundTripper) *userAgentRoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &userAgentRoundTripper{base: base}
}

func (u *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return u.base.RoundTrip(req)
	}

	// A RoundTripper must not modify the caller's request.
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", UserAgent)
	return u.base.RoundTrip(req)
}
