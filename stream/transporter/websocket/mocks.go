package websocket

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	gorilla "github.com/gorilla/websocket"

	"github.com/lanepoint/kioskstream/logger"
)

// MockWebsocketServer accepts a single websocket connection and pushes
// whatever frames the test hands to Push, imitating the backend's
// server-to-client event stream.
type MockWebsocketServer struct {
	logger   *logger.Logger
	listener net.Listener

	connLock sync.Mutex
	conn     *gorilla.Conn

	Addr      string
	Connected chan struct{}
}

func NewMockWebsocketServer(logger *logger.Logger) *MockWebsocketServer {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		logger.Errorf("failed to setup listener")
	}

	mockServer := &MockWebsocketServer{
		logger:    logger,
		listener:  listener,
		Addr:      fmt.Sprintf("http://localhost:%d", listener.Addr().(*net.TCPAddr).Port),
		Connected: make(chan struct{}, 1),
	}

	go func() {
		http.Serve(mockServer.listener, mockServer)
	}()

	return mockServer
}

func (m *MockWebsocketServer) Shutdown() {
	m.connLock.Lock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.connLock.Unlock()

	m.listener.Close()
}

// Push writes a single text frame to the connected client
func (m *MockWebsocketServer) Push(message []byte) error {
	m.connLock.Lock()
	defer m.connLock.Unlock()

	if m.conn == nil {
		return fmt.Errorf("no client is connected")
	}
	return m.conn.WriteMessage(gorilla.TextMessage, message)
}

// CloseClient drops the client connection without shutting the server down,
// simulating a transport failure
func (m *MockWebsocketServer) CloseClient() {
	m.connLock.Lock()
	defer m.connLock.Unlock()

	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}

func (m *MockWebsocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := gorilla.Upgrader{}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Errorf("Error during connection upgrade: %s", err)
		return
	}

	m.connLock.Lock()
	m.conn = conn
	m.connLock.Unlock()

	select {
	case m.Connected <- struct{}{}:
	default:
	}

	// Drain (and ignore) anything the client sends so control frames keep
	// flowing
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
