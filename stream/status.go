package stream

import "sync"

// statusBoard is the observability snapshot the event loop publishes and any
// goroutine may read
type statusBoard struct {
	lock sync.RWMutex

	current  Status
	terminal error
}

func (b *statusBoard) update(s Status) {
	b.lock.Lock()
	defer b.lock.Unlock()

	s.LastError = b.current.LastError
	s.InboundBytes = b.current.InboundBytes
	b.current = s
}

func (b *statusBoard) countInbound(n int64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.current.InboundBytes += n
}

func (b *statusBoard) setLastError(err error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.current.LastError = err
}

func (b *statusBoard) setTerminal(err error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.terminal = err
	b.current.LastError = err
}

func (b *statusBoard) terminalErr() error {
	b.lock.RLock()
	defer b.lock.RUnlock()

	return b.terminal
}

func (b *statusBoard) snapshot() Status {
	b.lock.RLock()
	defer b.lock.RUnlock()

	return b.current
}
