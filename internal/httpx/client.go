// Package httpx builds the shared HTTP client threaded through a pipeline
// run. One tuned transport serves descriptor, manifest and file fetches so
// connections are reused across the whole batch.
package httpx

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"packfetch/internal/config"
	"packfetch/internal/utils"
)

const (
	defaultMaxIdleConns          = 100
	defaultIdleConnTimeout       = 90 * time.Second
	defaultTLSHandshakeTimeout   = 10 * time.Second
	defaultResponseHeaderTimeout = 30 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	dialTimeout                  = 10 * time.Second
	keepAliveDuration            = 30 * time.Second
)

type protocolClient struct {
	name      string
	transport http.RoundTripper
}

// ClientSet owns the per-run transports. Client() hands out the shared
// *http.Client; Close releases the HTTP/3 transport when one was built.
type ClientSet struct {
	client         *http.Client
	chain          []protocolClient
	http3Transport *http3.Transport
}

// Client returns the shared client backed by the protocol fallback chain.
func (c *ClientSet) Client() *http.Client {
	return c.client
}

// Close tears the client set down at run end.
func (c *ClientSet) Close() {
	if c == nil {
		return
	}
	for _, pc := range c.chain {
		if ht, ok := pc.transport.(*http.Transport); ok {
			ht.CloseIdleConnections()
		}
	}
	if c.http3Transport != nil {
		if err := c.http3Transport.Close(); err != nil {
			utils.Debug("Error closing HTTP/3 transport: %v", err)
		}
	}
}

// fallbackTransport tries each protocol in order until one answers at the
// transport level. HTTP status codes are not fallback triggers.
type fallbackTransport struct {
	chain []protocolClient
}

func (f *fallbackTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var lastErr error
	for i, pc := range f.chain {
		resp, err := pc.transport.RoundTrip(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if i+1 < len(f.chain) {
			utils.Debug("Transport %s failed for %s, falling back: %v", pc.name, req.URL, err)
		}
	}
	return nil, lastErr
}

func buildHTTPTransport(maxConns int, forceHTTP2 bool) *http.Transport {
	transport := &http.Transport{
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: maxConns + 2,
		MaxConnsPerHost:     maxConns,
		Proxy:               http.ProxyFromEnvironment,

		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,

		// Package files are usually already compressed.
		DisableCompression: true,
		ForceAttemptHTTP2:  forceHTTP2,

		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: keepAliveDuration,
		}).DialContext,
	}

	if !forceHTTP2 {
		transport.TLSNextProto = make(map[string]func(authority string, c *tls.Conn) http.RoundTripper)
	}

	return transport
}

// SelectChain resolves the protocol preference into an ordered transport
// name list. Split out so the selection policy stays testable without
// opening sockets.
func SelectChain(preference string) []string {
	switch strings.ToLower(preference) {
	case config.ProtocolHTTP1:
		return []string{config.ProtocolHTTP1}
	case config.ProtocolHTTP2:
		return []string{config.ProtocolHTTP2, config.ProtocolHTTP1}
	case config.ProtocolHTTP3:
		return []string{config.ProtocolHTTP3, config.ProtocolHTTP1}
	default:
		return []string{config.ProtocolHTTP2, config.ProtocolHTTP1}
	}
}

// NewClientSet constructs the per-run client set. maxConns should match the
// batch admission-gate size so the connection pool covers peak concurrency.
func NewClientSet(preference string, maxConns int) *ClientSet {
	if maxConns <= 0 {
		maxConns = config.DefaultConcurrentFetches
	}

	var http3Transport *http3.Transport
	var chain []protocolClient

	for _, name := range SelectChain(preference) {
		switch name {
		case config.ProtocolHTTP1:
			chain = append(chain, protocolClient{name: name, transport: buildHTTPTransport(maxConns, false)})
		case config.ProtocolHTTP2:
			chain = append(chain, protocolClient{name: name, transport: buildHTTPTransport(maxConns, true)})
		case config.ProtocolHTTP3:
			http3Transport = &http3.Transport{
				TLSClientConfig: &tls.Config{
					NextProtos: []string{"h3"},
				},
				QUICConfig: &quic.Config{
					HandshakeIdleTimeout: defaultTLSHandshakeTimeout,
					MaxIdleTimeout:       defaultIdleConnTimeout,
					KeepAlivePeriod:      keepAliveDuration,
				},
			}
			chain = append(chain, protocolClient{name: name, transport: http3Transport})
		}
	}

	names := make([]string, 0, len(chain))
	for _, pc := range chain {
		names = append(names, pc.name)
	}
	utils.Debug("Transport selection: pref=%s chain=%s", preference, strings.Join(names, " -> "))

	client := &http.Client{
		Transport: &fallbackTransport{chain: chain},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("stopped after 10 redirects")
			}
			return nil
		},
	}

	return &ClientSet{client: client, chain: chain, http3Transport: http3Transport}
}
