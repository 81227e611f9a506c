package netmon

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Prober checks whether the backend is reachable. Implemented by the API
// client's health check.
type Prober interface {
	HealthCheck() error
}

// Monitor tracks the last known connectivity state and notifies listeners
// on transitions. State is driven by two sources: an optional periodic
// health probe, and ReportSuccess/ReportFailure calls made whenever a real
// request completes. The monitor starts online: a wrong assumption is
// corrected by the first failed request.
type Monitor struct {
	prober   Prober
	interval time.Duration
	logger   *zap.Logger

	mu          sync.Mutex
	online      bool
	nextID      int
	onlineSubs  map[int]func()
	offlineSubs map[int]func()

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor creates a connectivity monitor. prober may be nil, in which
// case only ReportSuccess/ReportFailure drive the state.
func NewMonitor(prober Prober, interval time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		prober:      prober,
		interval:    interval,
		logger:      logger,
		online:      true,
		onlineSubs:  make(map[int]func()),
		offlineSubs: make(map[int]func()),
		stopChan:    make(chan struct{}),
	}
}

// Start launches the background probe loop
func (m *Monitor) Start() {
	if m.prober == nil || m.interval <= 0 {
		return
	}
	m.wg.Add(1)
	go m.probeLoop()
}

// Stop terminates the probe loop
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
	m.wg.Wait()
}

// IsOnline returns the last known connectivity state
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnOnline registers a callback fired when the state transitions to
// online. The returned function deregisters it.
func (m *Monitor) OnOnline(cb func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.onlineSubs[id] = cb
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.onlineSubs, id)
	}
}

// OnOffline registers a callback fired when the state transitions to
// offline. The returned function deregisters it.
func (m *Monitor) OnOffline(cb func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.offlineSubs[id] = cb
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.offlineSubs, id)
	}
}

// ReportSuccess records that a real request reached the backend
func (m *Monitor) ReportSuccess() {
	m.setOnline(true)
}

// ReportFailure records that a real request failed at the transport level
func (m *Monitor) ReportFailure() {
	m.setOnline(false)
}

func (m *Monitor) setOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online

	var subs []func()
	if online {
		for _, cb := range m.onlineSubs {
			subs = append(subs, cb)
		}
	} else {
		for _, cb := range m.offlineSubs {
			subs = append(subs, cb)
		}
	}
	m.mu.Unlock()

	m.logger.Info("Connectivity state changed", zap.Bool("online", online))

	// Listeners run outside the lock so they may query the monitor
	for _, cb := range subs {
		cb()
	}
}

func (m *Monitor) probeLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.prober.HealthCheck(); err != nil {
				m.logger.Debug("Health probe failed", zap.Error(err))
				m.setOnline(false)
			} else {
				m.setOnline(true)
			}
		case <-m.stopChan:
			return
		}
	}
}
