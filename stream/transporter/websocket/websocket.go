/*
The websocket package establishes and ferries raw frames across the underlying
websocket connection. It sits at the lowest layer of the stream client,
handing each inbound text frame (one message per frame, UTF-8 JSON) up to the
codec for parsing. The kiosk never writes to this connection; the backend
pushes, we read.
*/
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	gorilla "github.com/gorilla/websocket"
	"gopkg.in/tomb.v2"

	"github.com/lanepoint/kioskstream/logger"
	"github.com/lanepoint/kioskstream/stream/transporter"
)

const (
	HttpsOnlyWebsocketScheme = "wss"
	HttpWebsocketScheme      = "ws"
)

var WebsocketUrlScheme = HttpsOnlyWebsocketScheme

type Websocket struct {
	tmb    tomb.Tomb
	logger *logger.Logger
	client *gorilla.Conn

	// Received frames
	inbound chan *[]byte
}

func New(logger *logger.Logger) transporter.Transporter {
	return &Websocket{
		logger:  logger,
		inbound: make(chan *[]byte, 200),
	}
}

func (w *Websocket) Close(reason error) {
	if w.tmb.Alive() {
		w.logger.Infof("Websocket connection closing because: %s", reason)

		if w.client != nil {
			w.client.Close()
		}

		w.tmb.Kill(reason)
		w.tmb.Wait()
	} else {
		w.logger.Infof("Close was called while in a dying state")
	}
}

func (w *Websocket) Done() <-chan struct{} {
	return w.tmb.Dead()
}

func (w *Websocket) Err() error {
	return w.tmb.Err()
}

func (w *Websocket) Inbound() <-chan *[]byte {
	return w.inbound
}

func (w *Websocket) Dial(connUrl *url.URL, headers http.Header, ctx context.Context) (err error) {
	// Make sure url scheme is correct
	connUrl.Scheme = WebsocketUrlScheme

	// Try to connect websocket once
	if w.client, _, err = gorilla.DefaultDialer.DialContext(ctx, connUrl.String(), headers); err != nil {
		return fmt.Errorf("error dialing websocket: %w", err)
	}

	// Reinitialize our tomb in case this is post death
	w.tmb = tomb.Tomb{}

	w.tmb.Go(w.receive)

	return nil
}

func (w *Websocket) receive() error {
	defer w.logger.Infof("Websocket connection closed")
	w.logger.Infof("Websocket connection started")

	for {
		// Read incoming frame
		if _, rawMessage, err := w.client.ReadMessage(); !w.tmb.Alive() {
			return nil
		} else if err != nil {
			// Check if it's a clean exit
			if !gorilla.IsCloseError(err, gorilla.CloseNormalClosure) {
				w.logger.Error(err)
			} else {
				w.logger.Info("Websocket connection closed normally")
			}
			return err
		} else {
			w.inbound <- &rawMessage
		}
	}
}
