package httpclient

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/dnscache"
	log "github.com/sirupsen/logrus"

	"sova-txcore/goutils/settings"
)

const (
	dnsRefreshInterval = 5 * time.Minute
	defaultRetryMax    = 5
)

var (
	resolver     = &dnscache.Resolver{}
	resolverOnce sync.Once
)

// StartDNSRefresh refreshes the shared resolver cache until ctx is done.
// Calling it more than once is a no-op.
func StartDNSRefresh(ctx context.Context) {
	resolverOnce.Do(func() {
		go func() {
			t := time.NewTicker(dnsRefreshInterval)
			defer t.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					resolver.Refresh(true)
				}
			}
		}()
	})
}

func dialCached(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ips, err := resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}

	var dialer net.Dialer

	for _, ip := range ips {
		conn, dialErr := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
		if dialErr == nil {
			return conn, nil
		}

		err = dialErr
	}

	return nil, err
}

func newTransport(config *settings.HTTPClient) *http.Transport {
	return &http.Transport{
		DialContext:         dialCached,
		MaxIdleConns:        config.MaxIdleConns,
		MaxConnsPerHost:     config.MaxConnsPerHost,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     time.Duration(config.IdleConnTimeout) * time.Second,
	}
}

// NewRPCClient returns a plain http client for JSON-RPC transports. Retries
// are left to the caller because eth_sendRawTransaction must not be replayed
// blindly.
func NewRPCClient(config *settings.HTTPClient) *http.Client {
	return &http.Client{
		Transport: newTransport(config),
		Timeout:   time.Duration(config.ConnectionTimeout) * time.Second,
	}
}

// GetDefaultHTTPClient returns a retrying client for idempotent outbound
// calls such as webhooks and issue reports.
func GetDefaultHTTPClient(config *settings.HTTPClient) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.HTTPClient = NewRPCClient(config)
	client.Logger = nil

	client.RetryMax = config.RetryMax
	if client.RetryMax <= 0 {
		client.RetryMax = defaultRetryMax
	}

	client.CheckRetry = checkRetry

	return client
}

// 4xx responses other than 429 are final.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		log.WithField("status", resp.StatusCode).Debug("not retrying client error")

		return false, nil
	}

	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
