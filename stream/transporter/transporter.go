// Package transporter defines the contract for the stream's underlying push
// channel. The transport is receive-only: the backend talks, the kiosk
// listens. Anything that can dial a URL, hand back raw frames on Inbound, and
// signal its death on Done can carry the stream.
package transporter

import (
	"context"
	"net/http"
	"net/url"
)

type Transporter interface {
	Done() <-chan struct{}
	Err() error
	Inbound() <-chan *[]byte
	Dial(connUrl *url.URL, headers http.Header, ctx context.Context) (err error)
	Close(reason error)
}
