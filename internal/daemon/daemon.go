// Package daemon runs the long-lived meetscribe process: it owns the capture
// pipeline, the transport connection, the session state machine and the
// unix-socket control surface.
package daemon

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/meetscribe/meetscribe/internal/answer"
	"github.com/meetscribe/meetscribe/internal/bus"
	"github.com/meetscribe/meetscribe/internal/capture"
	"github.com/meetscribe/meetscribe/internal/config"
	"github.com/meetscribe/meetscribe/internal/metrics"
	"github.com/meetscribe/meetscribe/internal/notify"
	"github.com/meetscribe/meetscribe/internal/pipeline"
	"github.com/meetscribe/meetscribe/internal/session"
	"github.com/meetscribe/meetscribe/internal/transport"
)

type Daemon struct {
	configManager *config.Manager
	metrics       *metrics.Metrics
	notifier      notify.Notifier
	transport     *transport.Client
	machine       *session.Machine
	pipe          *pipeline.Pipeline

	cancel context.CancelFunc
}

// eventSink forwards state-machine events to the daemon log, the desktop
// notifier and the metrics registry.
type eventSink struct {
	notifier notify.Notifier
	metrics  *metrics.Metrics
}

func (s *eventSink) TranscriptLineAdded(line session.TranscriptLine) {
	log.Printf("daemon: transcript line %d [%s]: %s", line.ID, line.Speaker, line.Text)
}

func (s *eventSink) AnswerResolved(req session.QuestionRequest) {
	if req.Status == session.StatusFailed {
		s.metrics.AnswerFailures.Inc()
		s.notifier.Error(fmt.Sprintf("Answer for question %d failed", req.QuestionID))
		return
	}
	log.Printf("daemon: question %d answered (%d chars)", req.QuestionID, len(req.Answer))
}

// New assembles a daemon from the current configuration. Nothing is started
// yet; Run does that.
func New() (*Daemon, error) {
	configManager, err := config.NewManager()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := configManager.GetConfig()

	m := metrics.New()
	notifier := notify.New(cfg.Notifications.Enabled, cfg.Notifications.Type)

	tr := transport.NewClient(transport.Config{
		Endpoint:          cfg.Transport.Endpoint,
		SampleRate:        cfg.Capture.SampleRate,
		ReconnectDelay:    cfg.Transport.ReconnectDelay,
		ReconnectMaxDelay: cfg.Transport.ReconnectMaxDelay,
		PingInterval:      cfg.Transport.PingInterval,
		WriteTimeout:      cfg.Transport.WriteTimeout,
	}, transport.Hooks{
		OnSendDropped: m.SendsDropped.Inc,
		OnReconnect:   m.Reconnects.Inc,
		OnStateChange: func(s transport.State) {
			if s == transport.StateOpen {
				m.ConnectionState.Set(1)
			} else {
				m.ConnectionState.Set(0)
			}
		},
	})

	adapter, err := answer.NewAdapter(answer.Config{
		Provider: cfg.Answer.Provider,
		APIKey:   cfg.ResolveAPIKey(cfg.Answer.Provider),
		Model:    cfg.Answer.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create answer adapter: %w", err)
	}

	machine := session.NewMachine(answer.NewClient(adapter),
		&eventSink{notifier: notifier, metrics: m}, cfg.Answer.Timeout)

	rec := capture.NewSession(capture.Config{
		SampleRate:     cfg.Capture.SampleRate,
		Channels:       cfg.Capture.Channels,
		ChunkSize:      cfg.Capture.ChunkSize,
		ReadBufferSize: cfg.Capture.ReadBufferSize,
		PendingChunks:  cfg.Capture.PendingChunks,
		Device:         cfg.Capture.Device,
	}, capture.NewPactlLister(), capture.NewPwRecordStreamer(), tr, notifier, capture.Hooks{
		OnChunk:    m.ChunksEmitted.Inc,
		OnOverflow: m.ChunksDropped.Inc,
	})

	pipe := pipeline.New(rec, tr, machine, m.TranscriptLines.Inc)

	return &Daemon{
		configManager: configManager,
		metrics:       m,
		notifier:      notifier,
		transport:     tr,
		machine:       machine,
		pipe:          pipe,
	}, nil
}

// Run blocks until the daemon is told to quit, either by signal or by the
// `q` bus command.
func (d *Daemon) Run(ctx context.Context) error {
	if err := bus.CheckExistingDaemon(); err != nil {
		return err
	}

	listener, err := bus.Listen()
	if err != nil {
		return fmt.Errorf("failed to create control socket: %w", err)
	}
	defer listener.Close()

	if err := bus.CreatePidFile(); err != nil {
		return fmt.Errorf("failed to create pid file: %w", err)
	}
	defer func() {
		if err := bus.RemovePidFile(); err != nil {
			log.Printf("daemon: failed to remove pid file: %v", err)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.cancel = cancel

	if err := d.configManager.StartWatching(runCtx); err != nil {
		log.Printf("daemon: config watching disabled: %v", err)
	}
	defer d.configManager.Stop()

	if cfg := d.configManager.GetConfig(); cfg.Metrics.Enabled {
		go d.metrics.Serve(runCtx, cfg.Metrics.Addr)
	}

	d.transport.Run(runCtx)
	defer d.transport.Shutdown()
	defer d.pipe.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	conns := make(chan net.Conn)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-runCtx.Done():
				default:
					log.Printf("daemon: accept error: %v", err)
				}
				close(conns)
				return
			}
			conns <- conn
		}
	}()

	log.Printf("daemon: running (pid %d, proto %s)", os.Getpid(), bus.ProtoVer)

	for {
		select {
		case sig := <-sigCh:
			log.Printf("daemon: received signal %v, shutting down", sig)
			return nil
		case <-runCtx.Done():
			return nil
		case conn, ok := <-conns:
			if !ok {
				return nil
			}
			go d.handleConnection(runCtx, conn)
		}
	}
}

func (d *Daemon) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		log.Printf("daemon: failed to read command: %v", err)
		return
	}

	resp := d.dispatch(ctx, strings.TrimSpace(line))
	if _, err := fmt.Fprint(conn, resp); err != nil {
		log.Printf("daemon: failed to write response: %v", err)
	}
}

// dispatch executes one control command and renders its response. Commands
// are single letters, some with an id argument.
func (d *Daemon) dispatch(ctx context.Context, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "ERR empty command\n"
	}

	switch fields[0] {
	case "t":
		recording, err := d.pipe.Toggle(ctx)
		if err != nil {
			return fmt.Sprintf("ERR %v\n", err)
		}
		if recording {
			return "OK recording\n"
		}
		return "OK idle\n"

	case "s":
		lines, pending := d.machine.Counts()
		return fmt.Sprintf("STATUS state=%s transport=%s lines=%d pending=%d\n",
			d.pipe.Status(), d.transport.State(), lines, pending)

	case "x":
		var b strings.Builder
		for _, l := range d.machine.Lines() {
			marker := " "
			if l.IsQuestion {
				marker = "?"
			}
			fmt.Fprintf(&b, "%d%s [%s] %s\n", l.ID, marker, l.Speaker, l.Text)
		}
		b.WriteString("END\n")
		return b.String()

	case "m":
		id, err := parseID(fields)
		if err != nil {
			return fmt.Sprintf("ERR %v\n", err)
		}
		if !d.machine.MarkQuestion(ctx, id) {
			return fmt.Sprintf("ERR cannot mark line %d\n", id)
		}
		d.metrics.AnswerRequests.Inc()
		return fmt.Sprintf("OK marked %d\n", id)

	case "a":
		id, err := parseID(fields)
		if err != nil {
			return fmt.Sprintf("ERR %v\n", err)
		}
		req, ok := d.machine.Request(id)
		if !ok {
			return fmt.Sprintf("ERR no answer request for line %d\n", id)
		}
		return fmt.Sprintf("ANSWER %d %s %s\n", req.QuestionID, req.Status, req.Answer)

	case "v":
		return fmt.Sprintf("VERSION proto=%s\n", bus.ProtoVer)

	case "q":
		log.Printf("daemon: quit requested over control socket")
		d.cancel()
		return "OK shutting down\n"

	default:
		return fmt.Sprintf("ERR unknown command %q\n", fields[0])
	}
}

func parseID(fields []string) (int64, error) {
	if len(fields) < 2 {
		return 0, fmt.Errorf("missing line id")
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid line id %q", fields[1])
	}
	return id, nil
}
