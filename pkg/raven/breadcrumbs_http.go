// breadcrumbs_http.go records outgoing HTTP requests as breadcrumbs.

package raven

import (
	"net/http"
)

// CategoryHTTP is the breadcrumb category of outgoing requests.
const CategoryHTTP = "http"

// BreadcrumbTransport is an http.RoundTripper that adds a breadcrumb for
// every request to the active scope of the request's context.
type BreadcrumbTransport struct {
	client Client
	base   http.RoundTripper
}

// NewBreadcrumbTransport wraps base, or http.DefaultTransport when base is nil.
func NewBreadcrumbTransport(c Client, base http.RoundTripper) *BreadcrumbTransport {
	return &BreadcrumbTransport{client: c, base: base}
}

func (t *BreadcrumbTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)

	data := map[string]any{
		"method": req.Method,
		"url":    req.URL.String(),
	}
	level := LevelInfo
	if resp != nil {
		data["status_code"] = resp.StatusCode
		if resp.StatusCode >= 500 {
			level = LevelError
		}
	}
	if err != nil {
		data["error"] = err.Error()
		level = LevelError
	}
	t.client.CaptureBreadcrumb(req.Context(), Breadcrumb{
		Category: CategoryHTTP,
		Data:     data,
		Level:    level,
	})
	return resp, err
}
