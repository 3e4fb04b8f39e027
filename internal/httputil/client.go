package httputil

import (
	"net/http"
	"time"
)

const (
	DefaultTimeout = 2 * time.Minute
	UserAgent      = "gridprep (+https://github.com/lox/gridprep)"
)

// userAgent sets the User-Agent header on requests that lack one. NREL and
// NOAA ask bulk clients to identify themselves.
type userAgent struct {
	next http.RoundTripper
}

func (u userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return u.next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", UserAgent)
	return u.next.RoundTrip(req)
}

// NewClient returns a client for bulk downloads. Full PSM3 years and GRIB
// messages can take well over the usual 30 s on slow links.
func NewClient() *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConnsPerHost = 4
	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: userAgent{next: t},
	}
}
