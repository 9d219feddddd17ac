/*
The stream package owns the lifecycle of the kiosk's single server-push event
stream: opening it, confirming it is actually alive, classifying and surviving
its failures, and making sure no inbound event is silently lost while the
kiosk is offline.

All state lives behind one event loop goroutine. Timer fires, transport
signals, probe results and public control calls are all funneled into that
loop, so no two transitions ever race. At most one timer per role (watchdog,
reconnect, health check) is live at a time, and any transition that supersedes
a timer cancels it first.
*/
package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"time"

	"gopkg.in/tomb.v2"

	"github.com/lanepoint/kioskstream/logger"
	"github.com/lanepoint/kioskstream/stream/message"
	"github.com/lanepoint/kioskstream/stream/probe"
	"github.com/lanepoint/kioskstream/stream/queue"
	"github.com/lanepoint/kioskstream/stream/transporter"
	"github.com/lanepoint/kioskstream/stream/transporter/websocket"
)

const streamEndpoint = "api/v1/stream"

// Callbacks is the consumer surface. OnMessage receives every valid
// non-control message, live or replayed from the offline queue. OnError fires
// for every failure; only errors for which IsTerminal returns true require
// consumer intervention.
type Callbacks struct {
	OnMessage func(message.Message)
	OnConnect func()
	OnError   func(error)
}

// Status is a point-in-time observability snapshot
type Status struct {
	State              ConnectionState
	IsConnected        bool
	LastError          error
	ReconnectAttempts  int
	CircuitBreakerOpen bool
	QueuedMessages     int
	InboundBytes       int64
}

type command int

const (
	cmdConnect command = iota
	cmdDisconnect
	cmdReconnect
	cmdOnline
	cmdOffline
)

type dialResult struct {
	epoch int
	err   error
}

type probeResult struct {
	epoch  int
	result probe.Result
}

type Client struct {
	tmb    tomb.Tomb
	logger *logger.Logger
	conf   Config

	clientId string
	connUrl  *url.URL
	headers  http.Header

	transport transporter.Transporter
	prober    probe.Prober
	queue     *queue.OfflineQueue
	callbacks Callbacks

	cmdChan      chan command
	dialResults  chan dialResult
	probeResults chan probeResult

	// Everything below is owned by the event loop goroutine

	state   ConnectionState
	tracker failureTracker
	planner *reconnectPlanner
	health  *healthSchedule

	online           bool
	reconnectEnabled bool
	terminal         bool
	probedThisCycle  bool

	// Bumped whenever an in-flight dial or probe becomes stale; async results
	// carrying an older epoch are dropped
	epoch      int
	dialCancel context.CancelFunc
	graceUsed  bool

	watchdogTimer  *time.Timer
	reconnectTimer *time.Timer
	healthTimer    *time.Timer
	settleTimer    *time.Timer

	// Live transport channels; nil whenever no transport is attached
	transportDone    <-chan struct{}
	transportInbound <-chan *[]byte

	// Observability snapshot readable from any goroutine
	status statusBoard
}

// New builds a client against the backend at serviceUrl for the kiosk
// identified by clientId. The stream is addressed by the client id embedded
// in the connection URL. When storageDir is non-empty the offline queue is
// persisted there across restarts; otherwise it is memory-only.
func New(
	logger *logger.Logger,
	serviceUrl string,
	clientId string,
	headers http.Header,
	params url.Values,
	storageDir string,
	conf Config,
	callbacks Callbacks,
) (*Client, error) {
	connUrl, err := url.ParseRequestURI(serviceUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service url %s: %w", serviceUrl, err)
	}
	connUrl.Path = path.Join(connUrl.Path, streamEndpoint, clientId)
	if params != nil {
		connUrl.RawQuery = params.Encode()
	}

	wsLogger := logger.GetComponentLogger("Websocket")
	transport := websocket.New(wsLogger)

	prober, err := probe.New(logger.GetComponentLogger("Probe"), connUrl.String())
	if err != nil {
		return nil, err
	}

	var store queue.Store
	if storageDir != "" {
		if store, err = queue.NewFileStore(storageDir); err != nil {
			return nil, err
		}
	}

	return newClient(logger, transport, prober, store, connUrl, clientId, headers, conf, callbacks), nil
}

// newClient wires the client from its parts; tests inject mocks here
func newClient(
	logger *logger.Logger,
	transport transporter.Transporter,
	prober probe.Prober,
	store queue.Store,
	connUrl *url.URL,
	clientId string,
	headers http.Header,
	conf Config,
	callbacks Callbacks,
) *Client {
	conf = conf.withDefaults()

	if headers == nil {
		headers = http.Header{}
	}

	c := &Client{
		logger:    logger,
		conf:      conf,
		clientId:  clientId,
		connUrl:   connUrl,
		headers:   headers,
		transport: transport,
		prober:    prober,
		queue:     queue.New(logger.GetComponentLogger("Queue"), conf.QueueCapacity, store),
		callbacks: callbacks,

		cmdChan:      make(chan command, 16),
		dialResults:  make(chan dialResult, 1),
		probeResults: make(chan probeResult, 1),

		state:   Disconnected,
		planner: newReconnectPlanner(conf.InitialReconnectDelay, conf.MaxReconnectDelay, conf.ReconnectMultiplier),
		online:  true,
	}

	c.publishStatus()

	c.tmb.Go(c.run)

	return c
}

// Connect opens the stream if it isn't already open or opening. It returns
// immediately; progress is reported through the callbacks.
func (c *Client) Connect() error {
	if err := c.status.terminalErr(); err != nil {
		return err
	}
	c.post(cmdConnect)
	return nil
}

// Disconnect closes the stream and disables automatic reconnection until
// Connect or Reconnect is called again. It is idempotent.
func (c *Client) Disconnect() {
	c.post(cmdDisconnect)
}

// Reconnect tears the connection down, resets the retry counters, and
// connects again
func (c *Client) Reconnect() error {
	if err := c.status.terminalErr(); err != nil {
		return err
	}
	c.post(cmdReconnect)
	return nil
}

// Send always fails: the transport is receive-only
func (c *Client) Send(message.Message) error {
	return ErrSendUnsupported
}

// SetOnline feeds the host environment's liveness signal to the client.
// While offline, valid messages are queued instead of delivered; flipping
// back to online drains the queue in arrival order.
func (c *Client) SetOnline(online bool) {
	if online {
		c.post(cmdOnline)
	} else {
		c.post(cmdOffline)
	}
}

// Close shuts the client down for good and waits for its goroutines to
// finish. Must not be called from within a callback.
func (c *Client) Close(reason error) {
	if !c.tmb.Alive() {
		return
	}
	c.tmb.Kill(reason)
	c.tmb.Wait()
	c.logger.Infof("stream client done")
}

func (c *Client) Done() <-chan struct{} {
	return c.tmb.Dead()
}

func (c *Client) Err() error {
	return c.tmb.Err()
}

func (c *Client) IsConnected() bool { return c.status.snapshot().IsConnected }

func (c *Client) LastError() error { return c.status.snapshot().LastError }

func (c *Client) ReconnectAttempts() int { return c.status.snapshot().ReconnectAttempts }

func (c *Client) CircuitBreakerOpen() bool { return c.status.snapshot().CircuitBreakerOpen }

func (c *Client) Status() Status {
	s := c.status.snapshot()
	s.QueuedMessages = c.queue.Len()
	return s
}

func (c *Client) post(cmd command) {
	select {
	case c.cmdChan <- cmd:
	case <-c.tmb.Dying():
	}
}

// run is the event loop: the single goroutine that owns every state
// transition
func (c *Client) run() error {
	c.logger.Infof("Stream client started for %s", c.connUrl.String())
	defer c.logger.Infof("Stream client stopped")

	for {
		select {
		case <-c.tmb.Dying():
			c.teardown()
			return nil

		case cmd := <-c.cmdChan:
			c.handleCommand(cmd)

		case result := <-c.dialResults:
			c.handleDialResult(result)

		case result := <-c.probeResults:
			c.handleProbeResult(result)

		case <-timerC(c.watchdogTimer):
			c.watchdogTimer = nil
			c.handleWatchdogExpiry()

		case <-timerC(c.reconnectTimer):
			c.reconnectTimer = nil
			c.handleReconnectDue()

		case <-timerC(c.healthTimer):
			c.healthTimer = nil
			c.handleHealthCheckDue()

		case <-timerC(c.settleTimer):
			c.settleTimer = nil
			c.handleHealthCheckSettled()

		case <-c.transportDone:
			c.handleTransportClosed()

		case raw := <-c.transportInbound:
			c.handleInbound(*raw)
		}
	}
}

// timerC lets the loop select on a timer that may not exist; a nil channel
// never fires
func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func stopTimer(t *time.Timer) *time.Timer {
	if t != nil {
		t.Stop()
	}
	return nil
}

func (c *Client) handleCommand(cmd command) {
	switch cmd {
	case cmdConnect:
		c.connect()
	case cmdDisconnect:
		c.disconnect(fmt.Errorf("disconnect requested"))
	case cmdReconnect:
		c.disconnect(fmt.Errorf("reconnect requested"))
		c.tracker.reset()
		c.planner.reset()
		c.probedThisCycle = false
		c.health = nil
		c.connect()
	case cmdOnline:
		wasOffline := !c.online
		c.online = true
		if wasOffline {
			c.logger.Infof("Host reports we are back online")
			c.drainQueue()
		}
	case cmdOffline:
		if c.online {
			c.logger.Infof("Host reports we are offline; valid messages will be queued")
		}
		c.online = false
	}
}

// connect starts a consumer-initiated connection attempt. No-op while an
// attempt is in flight or the stream is already open.
func (c *Client) connect() {
	if c.terminal {
		return
	}

	switch c.state {
	case Connecting, Open, HealthChecking:
		return
	}

	if c.tracker.circuitOpen {
		// The health-check scheduler owns connection attempts while the
		// circuit is open; Reconnect resets the breaker for consumers who
		// really mean it
		c.logger.Infof("Ignoring connect while the circuit breaker is open")
		return
	}

	c.reconnectEnabled = true
	c.reconnectTimer = stopTimer(c.reconnectTimer)
	c.startDial(Connecting)
}

// startDial opens a new transport attempt asynchronously and arms the
// connection watchdog. The attempt's completion feeds back into the loop via
// dialResults.
func (c *Client) startDial(attemptState ConnectionState) {
	c.epoch++
	epoch := c.epoch
	c.graceUsed = false

	c.state = attemptState
	c.publishStatus()

	ctx, cancel := context.WithCancel(context.Background())
	c.dialCancel = cancel

	// The transport's inbound channel outlives individual dials, so we can
	// attach it now; a first message confirms the connection even if the dial
	// result is slow to arrive
	c.transportInbound = c.transport.Inbound()

	c.watchdogTimer = stopTimer(c.watchdogTimer)
	c.watchdogTimer = time.NewTimer(c.conf.ConnectTimeout)

	dialUrl := *c.connUrl

	c.logger.Infof("Opening stream connection to %s", dialUrl.String())

	go func() {
		err := c.transport.Dial(&dialUrl, c.headers, ctx)
		select {
		case c.dialResults <- dialResult{epoch: epoch, err: err}:
		case <-c.tmb.Dying():
		}
	}()
}

func (c *Client) handleDialResult(result dialResult) {
	if result.epoch != c.epoch {
		// A stale attempt we already cancelled or superseded. If it connected
		// anyway, close it before its receive loop can feed frames into the
		// next attempt; only a newer dial that owns the transport right now
		// (Connecting, HealthChecking, or an already-open connection) is left
		// alone.
		if result.err == nil {
			switch c.state {
			case Connecting, HealthChecking, Open:
			default:
				c.transport.Close(fmt.Errorf("connection attempt superseded"))
			}
		}
		return
	}
	c.dialCancel = nil

	if result.err != nil {
		c.handleFailure(&TransportFailureError{InnerErr: result.err})
		return
	}

	// The transport is attached; listen for its death from here on
	c.transportDone = c.transport.Done()

	// Dial success is the transport's open signal, one of the two triggers
	// that confirm the connection
	c.confirmConnection("transport open signal")
}

// confirmConnection is the single convergence point for both confirmation
// triggers: the transport's open signal and the first valid inbound message.
// It is idempotent; whichever trigger fires second is a no-op.
func (c *Client) confirmConnection(trigger string) {
	if c.state == Open {
		return
	}

	c.logger.Infof("Connection confirmed (%s)", trigger)

	c.watchdogTimer = stopTimer(c.watchdogTimer)
	c.reconnectTimer = stopTimer(c.reconnectTimer)
	c.healthTimer = stopTimer(c.healthTimer)
	c.settleTimer = stopTimer(c.settleTimer)

	c.state = Open
	c.tracker.reset()
	c.planner.reset()
	c.health = nil
	c.probedThisCycle = false
	c.publishStatus()

	if c.callbacks.OnConnect != nil {
		c.callbacks.OnConnect()
	}

	c.drainQueue()
}

func (c *Client) handleWatchdogExpiry() {
	if c.state != Connecting && c.state != HealthChecking {
		return
	}

	if !c.graceUsed {
		// One short extension to tolerate a late first message
		c.graceUsed = true
		c.logger.Infof("Connection unconfirmed after %s, granting %s grace", c.conf.ConnectTimeout, c.conf.ConnectGracePeriod)
		c.watchdogTimer = time.NewTimer(c.conf.ConnectGracePeriod)
		return
	}

	c.logger.Infof("Connection unconfirmed after grace period, forcing close")
	c.handleFailure(&ConnectionTimeoutError{Timeout: c.conf.ConnectTimeout + c.conf.ConnectGracePeriod})
}

func (c *Client) handleTransportClosed() {
	reason := c.transport.Err()
	c.handleFailure(&TransportFailureError{InnerErr: reason})
}

// handleFailure is the single failure path for dial errors, watchdog
// timeouts, and transport death
func (c *Client) handleFailure(failure error) {
	if c.terminal || c.state == Disconnected {
		return
	}

	c.logger.Errorf("Stream failure: %s", failure)

	// Invalidate any dial still in flight (watchdog expiry can race one)
	c.epoch++
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}

	c.detachTransport(failure)
	c.watchdogTimer = stopTimer(c.watchdogTimer)

	c.status.setLastError(failure)
	if c.callbacks.OnError != nil {
		c.callbacks.OnError(failure)
	}

	// On the first failure of a fresh cycle, ask the side channel whether the
	// resource still exists before deciding anything
	if !c.probedThisCycle {
		c.probedThisCycle = true
		c.startProbe()

		// Hold the retry decision until the probe reports back
		c.state = Backoff
		c.publishStatus()
		return
	}

	c.scheduleRetry()
}

func (c *Client) startProbe() {
	epoch := c.epoch

	ctx, cancel := context.WithCancel(context.Background())
	c.dialCancel = cancel

	c.logger.Infof("First failure of this cycle, probing whether the stream resource still exists")

	go func() {
		defer cancel()
		result := c.prober.Check(ctx)
		select {
		case c.probeResults <- probeResult{epoch: epoch, result: result}:
		case <-c.tmb.Dying():
		}
	}()
}

func (c *Client) handleProbeResult(result probeResult) {
	if result.epoch != c.epoch {
		return
	}
	c.dialCancel = nil

	if result.result == probe.Gone {
		c.terminate(&ResourceGoneError{ClientId: c.clientId})
		return
	}

	// Inconclusive, including probe failure: retry as normal
	c.scheduleRetry()
}

// scheduleRetry counts the failure and either opens the circuit, hands
// control to the health-check scheduler, or arms the next backoff retry
func (c *Client) scheduleRetry() {
	now := time.Now()

	if opened := c.tracker.failure(now, c.conf.CircuitBreakerThreshold); opened {
		c.logger.Infof("Circuit breaker opened after %d consecutive failures", c.tracker.consecutiveFailures)
		c.health = newHealthSchedule(c.conf, now)
		c.state = CircuitOpen
		c.publishStatus()
		c.scheduleHealthCheck()
		return
	}

	if c.tracker.circuitOpen {
		// A failed health-check attempt; the settle timer owns what happens
		// next
		c.state = CircuitOpen
		c.publishStatus()
		return
	}

	if !c.reconnectEnabled {
		c.state = Disconnected
		c.publishStatus()
		return
	}

	plan := c.planner.next()
	c.logger.Infof("Retrying connection in %s (attempt %d)", plan.delay, plan.attempt+1)

	c.state = Backoff
	c.publishStatus()

	c.reconnectTimer = stopTimer(c.reconnectTimer)
	c.reconnectTimer = time.NewTimer(plan.delay)
}

func (c *Client) handleReconnectDue() {
	if c.terminal || !c.reconnectEnabled || c.state != Backoff {
		return
	}
	c.startDial(Connecting)
}

// scheduleHealthCheck arms the next probe of the health-check scheduler,
// enforcing both hard caps first
func (c *Client) scheduleHealthCheck() {
	if err := c.health.exhausted(time.Now()); err != nil {
		c.terminate(err)
		return
	}

	interval := c.health.nextInterval()
	c.logger.Infof("Scheduling health check %d in %s", c.health.attempt, interval)

	c.healthTimer = stopTimer(c.healthTimer)
	c.healthTimer = time.NewTimer(interval)
}

func (c *Client) handleHealthCheckDue() {
	if c.terminal || !c.tracker.circuitOpen || !c.reconnectEnabled {
		return
	}

	c.startDial(HealthChecking)

	// Give the attempt a moment to resolve before deciding whether to probe
	// again
	c.settleTimer = stopTimer(c.settleTimer)
	c.settleTimer = time.NewTimer(c.conf.HealthCheckSettle)
}

func (c *Client) handleHealthCheckSettled() {
	if c.terminal {
		return
	}

	switch c.state {
	case Open, Disconnected:
		// The circuit closed (or the consumer walked away) in the meantime;
		// scheduling stops
		return
	case HealthChecking:
		// The attempt hasn't resolved yet; check back shortly, the watchdog
		// will force a resolution eventually
		c.settleTimer = time.NewTimer(c.conf.HealthCheckSettle)
		return
	}

	if !c.tracker.circuitOpen || c.health == nil {
		return
	}

	c.scheduleHealthCheck()
}

// handleInbound is the ingestion path for frames from a live transport
func (c *Client) handleInbound(raw []byte) {
	msg, ok := c.decodeFrame(raw)
	if !ok {
		return
	}

	// Any valid message is proof the connection is alive: the second
	// confirmation trigger
	c.confirmConnection("first valid message")

	c.dispatch(msg)
}

func (c *Client) decodeFrame(raw []byte) (message.Message, bool) {
	c.status.countInbound(int64(len(raw)))

	msg, err := message.Decode(raw)
	if err != nil {
		// Dropped and logged; never surfaced, never queued
		c.logger.Error(err)
		return msg, false
	}
	return msg, true
}

func (c *Client) dispatch(msg message.Message) {
	if msg.IsControl() {
		if msg.Type == message.Connected {
			c.logger.Debugf("Backend confirmed the stream subscription")
		}
		return
	}

	c.deliverOrQueue(msg)
}

// deliverOrQueue is the one delivery path: live messages and replayed queue
// entries both pass through deliver
func (c *Client) deliverOrQueue(msg message.Message) {
	if !c.online {
		c.queue.Enqueue(msg)
		return
	}
	c.deliver(msg)
}

func (c *Client) deliver(msg message.Message) {
	if c.callbacks.OnMessage != nil {
		c.callbacks.OnMessage(msg)
	}
}

// drainQueue replays queued messages in arrival order through the same
// delivery path live messages use
func (c *Client) drainQueue() {
	entries := c.queue.Drain()
	if len(entries) == 0 {
		return
	}

	c.logger.Infof("Draining %d queued messages", len(entries))
	for _, entry := range entries {
		c.deliver(entry.Message)
	}
}

// disconnect cancels every pending timer and in-flight attempt, closes the
// transport, and disables automatic reconnection
func (c *Client) disconnect(reason error) {
	c.watchdogTimer = stopTimer(c.watchdogTimer)
	c.reconnectTimer = stopTimer(c.reconnectTimer)
	c.healthTimer = stopTimer(c.healthTimer)
	c.settleTimer = stopTimer(c.settleTimer)

	// Invalidate any in-flight dial or probe
	c.epoch++
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}

	c.detachTransport(reason)

	c.reconnectEnabled = false
	c.state = Disconnected
	c.publishStatus()
}

// detachTransport drains any frames the transport already handed us, then
// closes it and stops listening to it. Drained frames are dispatched but do
// not re-confirm the connection: the transport is on its way out.
func (c *Client) detachTransport(reason error) {
	if c.transportInbound != nil {
	drain:
		for {
			select {
			case raw := <-c.transportInbound:
				if msg, ok := c.decodeFrame(*raw); ok {
					c.dispatch(msg)
				}
			default:
				break drain
			}
		}
	}

	if c.transportDone != nil {
		c.transport.Close(reason)
	}

	c.transportDone = nil
	c.transportInbound = nil
}

// terminate permanently disables reconnection and surfaces exactly one
// terminal error
func (c *Client) terminate(reason error) {
	if c.terminal {
		return
	}

	c.logger.Errorf("Stream client stopping permanently: %s", reason)

	c.terminal = true
	c.disconnect(reason)

	c.status.setTerminal(reason)
	if c.callbacks.OnError != nil {
		c.callbacks.OnError(reason)
	}
}

func (c *Client) teardown() {
	c.disconnect(fmt.Errorf("client closing"))
}

func (c *Client) publishStatus() {
	c.status.update(Status{
		State:              c.state,
		IsConnected:        c.state == Open,
		ReconnectAttempts:  c.tracker.consecutiveFailures,
		CircuitBreakerOpen: c.tracker.circuitOpen,
	})
}
