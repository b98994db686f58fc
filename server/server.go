package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/0xADE/ade-appsd/internal/appindex"
	"github.com/0xADE/ade-appsd/parser"
)

// DefaultLookupTimeout bounds how long an app command waits for a rebuild
const DefaultLookupTimeout = 10 * time.Second

// Index is the part of the installed apps service exposed over the socket
type Index interface {
	MatchingApps(q appindex.Query) []appindex.AppRecord
	Apps() []appindex.AppRecord
	Slugs() []string
	WaitAppByID(ctx context.Context, id string) (appindex.AppRecord, bool, error)
	Rebuild(ctx context.Context) (appindex.RebuildResult, error)
	Stats() appindex.Stats
}

// Server handles Unix socket connections and command execution
type Server struct {
	listener      net.Listener
	index         Index
	logger        *slog.Logger
	lookupTimeout time.Duration
	stopped       bool
	mu            sync.RWMutex
	conns         sync.WaitGroup
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLookupTimeout bounds the wait of app commands issued during a rebuild
func WithLookupTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.lookupTimeout = d
		}
	}
}

func newServer(idx Index, opts ...Option) *Server {
	s := &Server{
		index:         idx,
		logger:        slog.Default(),
		lookupTimeout: DefaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServer listens on socketPath, replacing a stale socket file
func NewServer(socketPath string, idx Index, opts ...Option) (*Server, error) {
	// Create directory if needed
	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return nil, err
	}

	// Remove existing socket if it exists
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}

	s := newServer(idx, opts...)
	s.listener = listener
	return s, nil
}

// Start accepts connections until ctx is done or Stop is called
func (s *Server) Start(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Stop() })
	defer stop()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.RLock()
			stopped := s.stopped
			s.mu.RUnlock()
			if stopped {
				s.conns.Wait()
				return nil
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

// Stop closes the listener; Start returns once open connections finish
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	return s.listener.Close()
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	s.logger.Debug("new connection accepted")

	// Unblock pending reads on shutdown
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	p, err := parser.NewParser(conn)
	if err != nil {
		s.logger.Warn("failed to create parser", "error", err)
		s.writeError(conn, "parser", "invalid header", err.Error())
		return
	}

	for {
		cmd, err := p.ParseCommand()
		if errors.Is(err, parser.ErrSyntax) {
			s.logger.Warn("parse error", "error", err)
			s.writeError(conn, "parser", "parse error", err.Error())
			continue
		}
		if err != nil {
			if err != io.EOF {
				s.logger.Debug("connection read failed", "error", err)
			}
			s.logger.Debug("connection closed by client")
			return
		}

		s.logger.Debug("executing command", "cmd", cmd.Name, "args", len(cmd.Args))
		s.executeCommand(ctx, conn, cmd)
	}
}

func (s *Server) executeCommand(ctx context.Context, w io.Writer, cmd *parser.Command) {
	switch cmd.Name {
	case parser.CmdMatch:
		s.handleMatch(w, cmd)
	case parser.CmdMatchExp:
		s.handleMatchExp(w, cmd)
	case parser.CmdApp:
		s.handleApp(ctx, w, cmd)
	case parser.CmdApps:
		s.handleApps(w)
	case parser.CmdSlugs:
		s.handleSlugs(w)
	case parser.CmdReindex:
		s.handleReindex(ctx, w, cmd)
	case parser.CmdStats:
		s.handleStats(w)
	default:
		s.writeError(w, cmd.Name, "unknown command", "Command not recognized")
	}
}

func (s *Server) handleMatch(w io.Writer, cmd *parser.Command) {
	text, ok := cmd.StringArg(0)
	if !ok || len(cmd.Args) != 1 {
		s.writeError(w, cmd.Name, "invalid argument", "match requires one string parameter")
		return
	}
	s.writeMatches(w, cmd.Name, s.index.MatchingApps(appindex.Query{Text: text}))
}

func (s *Server) handleMatchExp(w io.Writer, cmd *parser.Command) {
	if len(cmd.Args) != 1 {
		s.writeError(w, cmd.Name, "invalid argument", "match-exp requires one experience id")
		return
	}

	// Experience ids are numeric in the catalog; accept both spellings
	var exp string
	switch arg := cmd.Args[0]; arg.Type {
	case parser.TypeString:
		exp = arg.Str
	case parser.TypeInt:
		exp = strconv.FormatInt(arg.Int, 10)
	default:
		s.writeError(w, cmd.Name, "invalid argument", "match-exp requires one experience id")
		return
	}
	s.writeMatches(w, cmd.Name, s.index.MatchingApps(appindex.Query{ExperienceID: exp}))
}

func (s *Server) writeMatches(w io.Writer, name string, apps []appindex.AppRecord) {
	s.logger.Debug("matched apps", "cmd", name, "count", len(apps))
	attrs := []attr{
		{"cmd", name},
		{"status", "0"},
		{"list-len", strconv.Itoa(len(apps))},
		{"signature", appindex.Signature(apps)},
	}
	s.writeResponse(w, attrs, appLines(apps))
}

func (s *Server) handleApp(ctx context.Context, w io.Writer, cmd *parser.Command) {
	id, ok := cmd.StringArg(0)
	if !ok || len(cmd.Args) != 1 {
		s.writeError(w, cmd.Name, "invalid argument", "app requires one string parameter")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	rec, found, err := s.index.WaitAppByID(ctx, id)
	if err != nil {
		s.writeError(w, cmd.Name, "timeout", err.Error())
		return
	}
	if !found {
		s.writeError(w, cmd.Name, "not found", "No installed app with this id")
		return
	}

	s.writeResponse(w, []attr{
		{"cmd", cmd.Name},
		{"status", "0"},
		{"id", rec.ID},
		{"name", rec.Name},
		{"icon", rec.IconOrDefault()},
		{"app-url", rec.AppURL},
		{"slug", rec.Slug},
	}, nil)
}

func (s *Server) handleApps(w io.Writer) {
	apps := s.index.Apps()
	s.writeResponse(w, []attr{
		{"cmd", parser.CmdApps},
		{"status", "0"},
		{"list-len", strconv.Itoa(len(apps))},
	}, appLines(apps))
}

func (s *Server) handleSlugs(w io.Writer) {
	slugs := s.index.Slugs()
	if slugs == nil {
		slugs = []string{}
	}
	s.writeResponse(w, []attr{
		{"cmd", parser.CmdSlugs},
		{"status", "0"},
		{"list-len", strconv.Itoa(len(slugs))},
	}, slugs)
}

func (s *Server) handleReindex(ctx context.Context, w io.Writer, cmd *parser.Command) {
	if len(cmd.Args) != 0 {
		s.writeError(w, cmd.Name, "invalid argument", "reindex takes no parameters")
		return
	}

	res, err := s.index.Rebuild(ctx)
	if err != nil {
		s.writeError(w, cmd.Name, "reindex failed", err.Error())
		return
	}

	s.writeResponse(w, []attr{
		{"cmd", cmd.Name},
		{"status", "0"},
		{"generation", strconv.FormatUint(res.Generation, 10)},
		{"indexed", strconv.Itoa(res.Apps)},
		{"failed", strconv.Itoa(res.Failed)},
		{"stale", strconv.FormatBool(res.Stale)},
	}, nil)
}

func (s *Server) handleStats(w io.Writer) {
	st := s.index.Stats()
	s.writeResponse(w, []attr{
		{"cmd", parser.CmdStats},
		{"status", "0"},
		{"apps", strconv.Itoa(st.Apps)},
		{"terms", strconv.Itoa(st.Terms)},
		{"complete", strconv.FormatBool(st.Complete)},
		{"generation", strconv.FormatUint(st.Generation, 10)},
		{"rebuilds", strconv.FormatUint(st.Rebuilds, 10)},
		{"lookup-failures", strconv.FormatUint(st.LookupFailures, 10)},
		{"stale-entries", strconv.FormatUint(st.StaleEntries, 10)},
		{"catalog-failures", strconv.FormatUint(st.CatalogFailures, 10)},
		{"persist-failures", strconv.FormatUint(st.PersistFailures, 10)},
		{"abandoned-calls", strconv.FormatInt(st.Abandoned, 10)},
	}, nil)
}

type attr struct {
	key, value string
}

func appLines(apps []appindex.AppRecord) []string {
	lines := make([]string, len(apps))
	for i, a := range apps {
		lines[i] = a.ID + " " + a.Name
	}
	return lines
}

// writeResponse writes the TXT01 header, the attrs block and a blank line.
// A non-nil body adds a lines attr followed by that many body lines.
func (s *Server) writeResponse(w io.Writer, attrs []attr, body []string) {
	var b strings.Builder
	b.WriteString(parser.Protocol)
	for _, a := range attrs {
		fmt.Fprintf(&b, "%s: %s\n", a.key, oneLine(a.value))
	}
	if body != nil {
		fmt.Fprintf(&b, "lines: %d\n", len(body))
	}
	b.WriteByte('\n')
	for _, line := range body {
		b.WriteString(oneLine(line))
		b.WriteByte('\n')
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		s.logger.Warn("failed to write response", "error", err)
		return
	}
	s.logger.Debug("response written", "bytes", b.Len())
}

func (s *Server) writeError(w io.Writer, cmd, errType, desc string) {
	s.logger.Debug("writing error response", "cmd", cmd, "type", errType, "desc", desc)
	s.writeResponse(w, []attr{
		{"error-cmd", cmd},
		{"error", errType},
		{"desc", desc},
	}, nil)
}

func oneLine(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
