// Package external implements a line-based TCP query protocol over the
// bearoff engine, modelled on gnubg's external player interface.
//
// Protocol overview:
// - Server listens on a TCP port
// - Client connects and sends one command per line
// - Commands include: evaluation, position, distribution, cubeful, info, version, exit
// - Positions are sent in FIBS board format or as gnubg position IDs
// - Each response is one or more lines; errors start with "Error:"
package external

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bgbearoff/bearoff/internal/positionid"
	"github.com/bgbearoff/bearoff/pkg/engine"
)

const (
	protocolVersion = "bearoff external protocol 1.0"

	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Server implements the external protocol server.
type Server struct {
	engine   *engine.Engine
	listener net.Listener
	mu       sync.Mutex
	running  bool
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	options  ServerOptions
}

// ServerOptions configures the external protocol server.
type ServerOptions struct {
	Host          string // Host to bind to
	Port          int    // TCP port to listen on (0 = any free port)
	Precision     int    // Decimal places in numeric replies
	PromptEnabled bool   // Send prompts after responses
}

// DefaultServerOptions returns sensible defaults.
func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		Port:          1234,
		Precision:     6,
		PromptEnabled: true,
	}
}

// NewServer creates a new external protocol server.
func NewServer(eng *engine.Engine, opts ServerOptions) *Server {
	if opts.Precision <= 0 {
		opts.Precision = DefaultServerOptions().Precision
	}
	return &Server{
		engine:  eng,
		options: opts,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start begins listening for connections.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("server already running")
	}

	addr := net.JoinHostPort(s.options.Host, strconv.Itoa(s.options.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.running = true
	log.Info().Str("addr", listener.Addr().String()).Msg("external protocol listening")

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every open connection, and waits for the
// connection handlers to return.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	err := s.listener.Close()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// acceptLoop accepts incoming connections.
func (s *Server) acceptLoop() {
	defer s.wg.Done()
	var delay time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()
			if !running {
				return // Server stopped
			}
			// back off like net/http's Serve
			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay = min(2*delay, maxAcceptDelay)
			}
			log.Warn().Err(err).Dur("retry", delay).Msg("external accept failed")
			time.Sleep(delay)
			continue
		}
		delay = 0

		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handleConnection(conn)
	}
}

// handleConnection handles a single client connection.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("external client connected")

	session := &session{server: s, prompt: s.options.PromptEnabled, precision: s.options.Precision}
	scanner := bufio.NewScanner(conn)
	w := bufio.NewWriter(conn)

	session.writePrompt(w)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		w.WriteString(session.processCommand(line))
		if session.closed {
			w.Flush()
			return
		}
		session.writePrompt(w)
		if err := w.Flush(); err != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Debug().Err(err).Msg("external client read failed")
	}
}

// session holds the per-connection settings changed by "set".
type session struct {
	server    *Server
	prompt    bool
	precision int
	closed    bool
}

func (c *session) writePrompt(w *bufio.Writer) {
	if c.prompt {
		w.WriteString("> ")
		w.Flush()
	}
}

// processCommand processes a single command and returns the response.
func (c *session) processCommand(cmd string) string {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return "Error: empty command\n"
	}

	command := strings.ToLower(parts[0])

	switch command {
	case "version":
		return protocolVersion + "\n"

	case "help":
		return helpResponse()

	case "exit", "quit":
		c.closed = true
		return "Goodbye\n"

	case "set":
		return c.handleSet(parts[1:])

	case "info":
		return c.handleInfo()

	case "evaluation", "eval":
		return c.handleEvaluation(cmd)

	case "position", "pos":
		return c.handlePosition(parts[1:])

	case "distribution", "dist":
		return c.handleDistribution(parts[1:])

	case "cubeful":
		return c.handleCubeful(parts[1:])

	default:
		// Try to parse as FIBS board directly
		if strings.HasPrefix(cmd, "board:") {
			return c.handleEvaluation(cmd)
		}
		return fmt.Sprintf("Error: unknown command '%s'\n", command)
	}
}

// helpResponse returns help text.
func helpResponse() string {
	return `Available commands:
  version                   - Show version information
  help                      - Show this help
  set <opt> <value>         - Set option (prompt, precision)
  info                      - Describe the loaded databases
  evaluation board:...      - Evaluate a FIBS board
  position <id>             - Evaluate a gnubg position ID
  distribution <id> [side]  - One-sided distribution (side 1 = on roll, 0 = opponent)
  cubeful <id>              - Two-sided equities
  exit                      - Close connection
`
}

// handleSet handles the set command.
func (c *session) handleSet(args []string) string {
	if len(args) < 2 {
		return "Error: set requires option and value\n"
	}

	option := strings.ToLower(args[0])
	value := args[1]

	switch option {
	case "prompt":
		c.prompt = value == "on" || value == "true" || value == "1"
		return fmt.Sprintf("prompt set to %v\n", c.prompt)

	case "precision":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > 9 {
			return "Error: precision must be 1-9\n"
		}
		c.precision = n
		return fmt.Sprintf("precision set to %d\n", n)

	default:
		return fmt.Sprintf("Error: unknown option '%s'\n", option)
	}
}

func (c *session) handleInfo() string {
	var b strings.Builder
	dbs := c.server.engine.Info()
	if len(dbs) == 0 {
		return "no databases loaded\n"
	}
	for _, info := range dbs {
		fmt.Fprintf(&b, "%s %s points=%d chequers=%d positions=%d storage=%s\n",
			info.Type, info.Generator, info.Points, info.Chequers, info.Positions, info.Storage)
	}
	return b.String()
}

// formatFloats joins values with the session's precision.
func (c *session) formatFloats(values ...float64) string {
	fields := make([]string, len(values))
	for i, v := range values {
		fields[i] = strconv.FormatFloat(v, 'f', c.precision, 64)
	}
	return strings.Join(fields, " ") + "\n"
}

func errorLine(err error) string {
	return fmt.Sprintf("Error: %v\n", err)
}

func (c *session) evaluate(board engine.Board) string {
	eval, err := c.server.engine.Evaluate(board)
	if err != nil {
		return errorLine(err)
	}
	return c.formatFloats(eval.Equity, eval.WinProb, eval.WinG, eval.WinBG, eval.LoseG, eval.LoseBG)
}

// handleEvaluation handles the evaluation command.
// Returns equity and the five output probabilities for a FIBS board.
func (c *session) handleEvaluation(cmd string) string {
	boardStart := strings.Index(cmd, "board:")
	if boardStart < 0 {
		return "Error: no board specified\n"
	}

	fb, err := ParseFIBSBoard(cmd[boardStart:])
	if err != nil {
		return errorLine(err)
	}
	board, err := fb.ToBoard()
	if err != nil {
		return errorLine(err)
	}
	return c.evaluate(board)
}

func parsePositionArg(args []string) (engine.Board, error) {
	if len(args) == 0 {
		return engine.Board{}, errors.New("no position specified")
	}
	pos := args[0]
	if idx := strings.Index(pos, ":"); idx >= 0 {
		pos = pos[:idx]
	}
	return positionid.BoardFromPositionID(pos)
}

// handlePosition evaluates a gnubg position ID.
func (c *session) handlePosition(args []string) string {
	board, err := parsePositionArg(args)
	if err != nil {
		return errorLine(err)
	}
	return c.evaluate(board)
}

// handleDistribution returns the mean and stddev of rolls followed by the
// finish probabilities up to the last non-zero bucket.
func (c *session) handleDistribution(args []string) string {
	board, err := parsePositionArg(args)
	if err != nil {
		return errorLine(err)
	}
	side := 1
	if len(args) > 1 {
		if side, err = strconv.Atoi(args[1]); err != nil || (side != 0 && side != 1) {
			return "Error: side must be 0 or 1\n"
		}
	}

	d, err := c.server.engine.Distribution(board, side)
	if err != nil {
		return errorLine(err)
	}
	last := 0
	for i, p := range d.Prob {
		if p != 0 {
			last = i
		}
	}
	values := []float64{float64(d.AverageRolls[0]), float64(d.AverageRolls[1])}
	for _, p := range d.Prob[:last+1] {
		values = append(values, float64(p))
	}
	return c.formatFloats(values...)
}

// handleCubeful returns the equities stored for a two-sided position.
func (c *session) handleCubeful(args []string) string {
	board, err := parsePositionArg(args)
	if err != nil {
		return errorLine(err)
	}
	_, ev, err := c.server.engine.Cubeful(board)
	if err != nil {
		return errorLine(err)
	}
	values := make([]float64, len(ev))
	for i, v := range ev {
		values[i] = float64(v)
	}
	return c.formatFloats(values...)
}
