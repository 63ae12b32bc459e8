// Package httpclient builds HTTP clients that share one keep-alive pool.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// sharedTransport is reused by every pooled client.
var sharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	MaxIdleConns:          32,
	MaxIdleConnsPerHost:   16,
	IdleConnTimeout:       120 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ForceAttemptHTTP2:     true,
}

// NewPooledClient returns a client on the shared transport. A zero timeout leaves
// deadlines to the request context.
func NewPooledClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: sharedTransport,
	}
}
