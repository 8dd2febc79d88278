package manager

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type AppManager struct {
	mu       sync.Mutex
	stop     chan struct{}
	stopOnce sync.Once
	errs     chan error
	wg       sync.WaitGroup
	status   func() any
	listener net.Listener
}

var Manage = NewAppManager()

func NewAppManager() *AppManager {
	return &AppManager{
		stop: make(chan struct{}),
		errs: make(chan error, 8),
	}
}

func getSocketPath() string {
	var baseDir string
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		baseDir = runtimeDir
	} else {
		baseDir = os.TempDir()
	}

	socketDir := filepath.Join(baseDir, "backlightd")
	if err := os.MkdirAll(socketDir, 0o755); err != nil {
		return filepath.Join(os.TempDir(), "backlightd-socket.sock")
	}
	return filepath.Join(socketDir, "socket.sock")
}

// Stopping is closed once shutdown has begun.
func (m *AppManager) Stopping() <-chan struct{} { return m.stop }

// SetStatus installs the function answering STATUS requests.
func (m *AppManager) SetStatus(f func() any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = f
}

// Go runs a watcher until it returns. A non-nil error is fatal and ends Wait.
func (m *AppManager) Go(f func(stop <-chan struct{}) error) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := f(m.stop); err != nil {
			select {
			case m.errs <- err:
			default:
			}
		}
	}()
}

// Wait blocks until a signal arrives, STOP is received or a watcher fails,
// then stops everything. Only a watcher failure is returned.
func (m *AppManager) Wait(signals <-chan os.Signal) error {
	var err error
	select {
	case sig := <-signals:
		log.Info().Stringer("signal", sig).Msg("received shutdown signal")
	case <-m.stop:
	case err = <-m.errs:
	}
	m.StopAll()
	return err
}

// StopAll closes the stop channel and the IPC listener, then waits briefly
// for watchers to return.
func (m *AppManager) StopAll() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	l := m.listener
	m.listener = nil
	m.mu.Unlock()
	if l != nil {
		_ = l.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		log.Warn().Msg("watchers did not stop in time")
	}
}

// Listen binds the IPC socket, replacing a stale one.
func (m *AppManager) Listen() error {
	socketPath := getSocketPath()
	_ = os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.listener = listener
	m.mu.Unlock()

	log.Info().Str("socket", socketPath).Msg("IPC server listening")
	return nil
}

// Serve accepts IPC connections until the listener is closed.
func (m *AppManager) Serve() {
	m.mu.Lock()
	listener := m.listener
	m.mu.Unlock()
	if listener == nil {
		return
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		go m.handleConnection(conn)
	}
}

func (m *AppManager) handleConnection(conn net.Conn) {
	defer conn.Close()

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		return
	}

	command := strings.TrimSpace(string(buf[:n]))

	switch command {
	case "STOP":
		log.Info().Msg("received STOP via IPC, shutting down")
		_, _ = conn.Write([]byte("OK: Shutting down."))
		m.stopOnce.Do(func() { close(m.stop) })

	case "STATUS":
		m.mu.Lock()
		status := m.status
		m.mu.Unlock()
		if status == nil {
			_, _ = conn.Write([]byte("ERR: not ready"))
			return
		}
		data, err := json.Marshal(status())
		if err != nil {
			_, _ = conn.Write([]byte("ERR: " + err.Error()))
			return
		}
		_, _ = conn.Write(data)

	default:
		_, _ = conn.Write([]byte("ERR: unknown command"))
	}
}

func (m *AppManager) ConnectIPC() (net.Conn, error) {
	return net.DialTimeout("unix", getSocketPath(), 500*time.Millisecond)
}

func (m *AppManager) SendIPCCommand(cmd string) (string, error) {
	conn, err := m.ConnectIPC()
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(cmd)); err != nil {
		return "", err
	}

	data, err := io.ReadAll(conn)
	if err != nil && err != io.EOF {
		return "", err
	}

	return string(data), nil
}
