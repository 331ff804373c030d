package hub

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dashfleet-io/dashfleet/internal/protocol"
	"github.com/dashfleet-io/dashfleet/internal/transport"
)

// Supervisor is the hub's out-of-band process control plane: it listens on
// a Unix domain socket and accepts one newline-delimited JSON request per
// connection, replying with one newline-delimited JSON reply — the
// request/reply analogue of a ZeroMQ REP socket over a connection-oriented
// transport. Command dispatch and reply shapes are carried over directly
// from the original process manager's cmd-lookup-and-reply pattern.
type Supervisor struct {
	socketPath string
	registry   *Registry
	logger     *zap.Logger

	mu        sync.Mutex
	listener  net.Listener
	processes map[string]*os.Process
}

// NewSupervisor creates a Supervisor listening at socketPath, persisting
// its registry at registryPath.
func NewSupervisor(socketPath, registryPath string, logger *zap.Logger) (*Supervisor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry, err := NewRegistry(registryPath)
	if err != nil {
		return nil, err
	}
	return &Supervisor{
		socketPath: socketPath,
		registry:   registry,
		logger:     logger.Named("supervisor"),
		processes:  make(map[string]*os.Process),
	}, nil
}

// Start sanitizes a stale socket file (if any), binds, and begins accepting
// connections in a background goroutine.
func (s *Supervisor) Start() error {
	if err := transport.SanitizeUnixSocket(s.socketPath); err != nil {
		return err
	}
	l, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("supervisor: listen: %w", err)
	}
	s.listener = l

	go s.acceptLoop()
	return nil
}

// Stop closes the listener. Already-spawned child processes are left
// running — stopping the supervisor is not the same as stopping every
// served application.
func (s *Supervisor) Stop() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Supervisor) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.logger.Debug("supervisor listener closed", zap.Error(err))
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Supervisor) handleConn(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return
	}

	resp := s.dispatch(line)
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = conn.Write(data)
}

func (s *Supervisor) dispatch(line []byte) protocol.SupervisorReply {
	var req protocol.SupervisorRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return protocol.SupervisorReply{Status: "error", Message: fmt.Sprintf("invalid request: %v", err)}
	}

	switch req.Cmd {
	case "start":
		return s.cmdStart(req.Args)
	case "stop":
		return s.cmdStop(req.Args)
	case "restart":
		return s.cmdRestart(req.Args)
	case "list":
		return s.cmdList()
	case "delete":
		return s.cmdDelete(req.Args)
	default:
		return protocol.SupervisorReply{Status: "error", Message: fmt.Sprintf("Unknown command: %s", req.Cmd)}
	}
}

func (s *Supervisor) cmdStart(rawArgs json.RawMessage) protocol.SupervisorReply {
	var args protocol.StartArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return protocol.SupervisorReply{Status: "error", Message: "invalid start args"}
	}
	if args.Name == "" || args.AppPath == "" {
		return protocol.SupervisorReply{Status: "error", Message: "name and app_path are required"}
	}

	if _, ok := s.registry.Get(args.Name); ok {
		if s.isAlive(args.Name) {
			return protocol.SupervisorReply{Status: "error", Message: fmt.Sprintf("%s is already running", args.Name)}
		}
	}

	cmd := buildServeCmd(args.AppPath, args.Argv)
	if err := cmd.Start(); err != nil {
		return protocol.SupervisorReply{Status: "error", Message: fmt.Sprintf("failed to start %s: %v", args.Name, err)}
	}

	s.mu.Lock()
	s.processes[args.Name] = cmd.Process
	s.mu.Unlock()

	entry := RegistryEntry{PID: cmd.Process.Pid, AppPath: args.AppPath, StartTimeUnix: time.Now().Unix()}
	if err := s.registry.Set(args.Name, entry); err != nil {
		s.logger.Warn("failed to persist registry after start", zap.Error(err))
	}

	// Reap the process asynchronously so it never becomes a zombie; the
	// supervisor does not block the request on the child's lifetime.
	go func() {
		_, _ = cmd.Process.Wait()
		s.mu.Lock()
		delete(s.processes, args.Name)
		s.mu.Unlock()
	}()

	return protocol.SupervisorReply{Status: "ok", Message: fmt.Sprintf("started %s (pid %d)", args.Name, cmd.Process.Pid)}
}

func (s *Supervisor) cmdStop(rawArgs json.RawMessage) protocol.SupervisorReply {
	var args protocol.NamedArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return protocol.SupervisorReply{Status: "error", Message: "invalid stop args"}
	}

	entry, ok := s.registry.Get(args.Name)
	if !ok {
		return protocol.SupervisorReply{Status: "error", Message: fmt.Sprintf("%s is not tracked", args.Name)}
	}

	if err := stopPID(entry.PID); err != nil {
		return protocol.SupervisorReply{Status: "error", Message: fmt.Sprintf("failed to stop %s: %v", args.Name, err)}
	}

	s.mu.Lock()
	delete(s.processes, args.Name)
	s.mu.Unlock()

	return protocol.SupervisorReply{Status: "ok", Message: fmt.Sprintf("stopped %s", args.Name)}
}

func (s *Supervisor) cmdRestart(rawArgs json.RawMessage) protocol.SupervisorReply {
	var args protocol.NamedArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return protocol.SupervisorReply{Status: "error", Message: "invalid restart args"}
	}

	entry, ok := s.registry.Get(args.Name)
	if !ok {
		return protocol.SupervisorReply{Status: "error", Message: fmt.Sprintf("%s is not tracked", args.Name)}
	}

	_ = stopPID(entry.PID)

	startArgs, _ := json.Marshal(protocol.StartArgs{Name: args.Name, AppPath: entry.AppPath})
	return s.cmdStart(startArgs)
}

func (s *Supervisor) cmdList() protocol.SupervisorReply {
	return protocol.SupervisorReply{Status: "ok", Data: s.registry.All()}
}

func (s *Supervisor) cmdDelete(rawArgs json.RawMessage) protocol.SupervisorReply {
	var args protocol.NamedArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return protocol.SupervisorReply{Status: "error", Message: "invalid delete args"}
	}

	if entry, ok := s.registry.Get(args.Name); ok {
		_ = stopPID(entry.PID)
	}
	if err := s.registry.Delete(args.Name); err != nil {
		return protocol.SupervisorReply{Status: "error", Message: fmt.Sprintf("failed to delete %s: %v", args.Name, err)}
	}
	return protocol.SupervisorReply{Status: "ok", Message: fmt.Sprintf("deleted %s", args.Name)}
}

func (s *Supervisor) isAlive(name string) bool {
	entry, ok := s.registry.Get(name)
	if !ok {
		return false
	}
	proc, err := os.FindProcess(entry.PID)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// buildServeCmd constructs the exec.Cmd that launches a served application,
// OS-conditionally the same way the hooks runner chooses its shell — except
// here the target is a long-lived server process, started detached rather
// than run to completion.
func buildServeCmd(appPath string, argv []string) *exec.Cmd {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command(appPath, argv...)
	} else {
		cmd = exec.Command(appPath, argv...)
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	}
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Env = os.Environ()
	return cmd
}

func stopPID(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}
