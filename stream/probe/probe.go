/*
The probe package answers one question out-of-band from the stream itself:
does the resource the stream is addressed to still exist server-side? A
not-found class response means the backend has permanently removed it and the
client should stop reconnecting. Every other outcome, including the probe
request itself failing, is inconclusive and leaves the normal retry logic
alone.
*/
package probe

import (
	"context"
	"errors"
	"net/http"

	"github.com/lanepoint/kioskstream/httpclient"
	"github.com/lanepoint/kioskstream/logger"
)

type Result int

const (
	// Inconclusive covers "resource present", "server misbehaving" and
	// "probe failed" alike; retries proceed unaffected
	Inconclusive Result = iota

	// Gone means the backend confirmed the resource no longer exists
	Gone
)

func (r Result) String() string {
	switch r {
	case Gone:
		return "gone"
	default:
		return "inconclusive"
	}
}

type Prober interface {
	Check(ctx context.Context) Result
}

type ExistenceProbe struct {
	logger *logger.Logger
	client *httpclient.HttpClient
}

// New builds a probe against the stream's resource metadata endpoint. The
// resourceUrl addresses the same logical resource the stream itself is
// subscribed to.
func New(logger *logger.Logger, resourceUrl string) (*ExistenceProbe, error) {
	client, err := httpclient.New(logger, resourceUrl, httpclient.HTTPOptions{})
	if err != nil {
		return nil, err
	}

	return &ExistenceProbe{
		logger: logger,
		client: client,
	}, nil
}

func (p *ExistenceProbe) Check(ctx context.Context) Result {
	_, err := p.client.Head(ctx)
	if err == nil {
		return Inconclusive
	}

	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusNotFound || httpErr.StatusCode == http.StatusGone {
			p.logger.Infof("Existence probe confirmed the resource is gone: %s", err)
			return Gone
		}
	}

	p.logger.Debugf("Existence probe was inconclusive: %s", err)
	return Inconclusive
}
