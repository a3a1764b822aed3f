package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/sync/errgroup"

	"github.com/telqo/gsmbridge/dispatch"
	"github.com/telqo/gsmbridge/modem"
	"github.com/telqo/gsmbridge/smsdb"
)

// messagePartSize is the per-part payload bound used when splitting an
// outgoing message, matching the text-mode capacity of a concatenated
// segment.
const messagePartSize = 153

// Gateway owns the store, the worker pool and one monitored session
// per configured device.
type Gateway struct {
	cfg       *Config
	logger    *slog.Logger
	store     *smsdb.Store
	pool      *dispatch.Pool
	publisher *Publisher
	devices   map[string]*device
}

type device struct {
	session *modem.Session
	monitor *modem.Monitor
}

// DeviceStatus is one device's state as exposed over HTTP.
type DeviceStatus struct {
	ID          string      `json:"id"`
	Connected   bool        `json:"connected"`
	Initialized bool        `json:"initialized"`
	Stats       modem.Stats `json:"stats"`
}

// NewGateway builds the store, the publisher and a monitor per
// configured device. The gateway does not connect anything until Run.
func NewGateway(cfg *Config, logger *slog.Logger) (*Gateway, error) {
	if len(cfg.Devices) == 0 {
		return nil, fmt.Errorf("no devices configured")
	}

	store, err := smsdb.Open(cfg.Database, time.Duration(cfg.IncomingTTL)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("open sms store: %w", err)
	}

	publisher, err := NewPublisher(cfg.MQTTBroker, cfg.MQTTPrefix, logger.With("component", "publisher"))
	if err != nil {
		store.Close()
		return nil, err
	}

	g := &Gateway{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		pool:      dispatch.NewPool(dispatch.DefaultQueueCapacity),
		publisher: publisher,
		devices:   make(map[string]*device),
	}

	for id, dc := range cfg.Devices {
		session, err := modem.NewSession(id, modem.SerialDialer{
			PortName: dc.Port,
			BaudRate: dc.BaudRate,
		})
		if err != nil {
			g.close()
			return nil, fmt.Errorf("device %s: %w", id, err)
		}

		handler := &modem.Handler{
			Store:     store,
			Reporter:  publisher,
			OnMessage: publisher.Message,
			Logger:    logger.With("component", "handler"),
		}
		health := &modem.HealthChecker{
			Mode:   audioMode(dc.Audio),
			Logger: logger.With("component", "health"),
		}

		g.devices[id] = &device{
			session: session,
			monitor: modem.NewMonitor(session, g.pool, handler, health,
				store, publisher, logger, modem.Config{}),
		}
	}
	return g, nil
}

func audioMode(s string) modem.AudioMode {
	switch s {
	case "tty":
		return modem.AudioModeTTY
	case "alsa":
		return modem.AudioModeALSA
	default:
		return modem.AudioModeExternal
	}
}

// Run supervises every device until the context is canceled, then
// tears the gateway down.
func (g *Gateway) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	for id, d := range g.devices {
		id, d := id, d
		eg.Go(func() error {
			g.supervise(ctx, id, d)
			return nil
		})
	}
	err := eg.Wait()
	g.close()
	return err
}

// supervise keeps one device's monitor alive: connect, run until the
// monitor exits, then reconnect after a backoff delay. Exits on
// shutdown.
func (g *Gateway) supervise(ctx context.Context, id string, d *device) {
	logger := g.logger.With("device", id)
	delay := &backoff.Backoff{
		Min:    time.Second,
		Max:    time.Minute,
		Jitter: true,
	}

	for {
		if err := d.session.Connect(); err != nil {
			logger.Warn("Failed to connect device", "error", err)
			if !sleepCtx(ctx, delay.Duration()) {
				return
			}
			continue
		}

		if err := d.monitor.Start(); err != nil {
			logger.Error("Failed to start monitor", "error", err)
			if !sleepCtx(ctx, delay.Duration()) {
				return
			}
			continue
		}
		logger.Info("Device monitor started")

		select {
		case <-ctx.Done():
			d.monitor.Stop()
			return
		case <-d.monitor.Done():
		}

		logger.Warn("Device monitor exited, reconnecting")
		if !sleepCtx(ctx, delay.Duration()) {
			return
		}
	}
}

// sleepCtx waits d or until ctx is canceled, reporting whether the
// full wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (g *Gateway) close() {
	g.pool.Shutdown()
	g.publisher.Close()
	if err := g.store.Close(); err != nil {
		g.logger.Error("Failed to close sms store", "error", err)
	}
}

// Send splits a message into parts, registers the message in the store
// and queues the transmission on the device's session. The parts
// themselves are recorded by the response handler as the modem
// acknowledges each submission with the reference it assigned, which
// is the reference later delivery reports carry.
func (g *Gateway) Send(deviceID, to, message string, report bool) error {
	d, ok := g.devices[deviceID]
	if !ok {
		return fmt.Errorf("unknown device %q", deviceID)
	}

	parts := splitMessage(message, messagePartSize)

	uid, err := g.store.CreateOutgoing(deviceID, to,
		len(parts), time.Duration(g.cfg.OutgoingTTL)*time.Second, report)
	if err != nil {
		return fmt.Errorf("register message: %w", err)
	}

	if err := d.session.Submit(modem.SendSequence(to, parts, uid)...); err != nil {
		g.abandon(uid)
		return fmt.Errorf("queue message: %w", err)
	}

	g.logger.Info("Message queued", "device", deviceID, "to", to,
		"parts", len(parts), "uid", uid)
	return nil
}

// abandon drops delivery tracking for a message whose submission
// failed partway.
func (g *Gateway) abandon(uid int64) {
	if _, err := g.store.ClearOutgoing(uid); err != nil {
		g.logger.Warn("Failed to clear abandoned message", "uid", uid, "error", err)
	}
}

// Devices returns the status of every configured device, sorted by id.
func (g *Gateway) Devices() []DeviceStatus {
	out := make([]DeviceStatus, 0, len(g.devices))
	for id, d := range g.devices {
		out = append(out, DeviceStatus{
			ID:          id,
			Connected:   d.session.Connected(),
			Initialized: d.session.Initialized(),
			Stats:       d.session.Snapshot(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// splitMessage cuts text into rune-safe chunks of at most size bytes
// per part boundary, never splitting inside a rune.
func splitMessage(text string, size int) []string {
	if len(text) <= size {
		return []string{text}
	}

	var parts []string
	var current []rune
	length := 0
	for _, r := range text {
		rl := len(string(r))
		if length+rl > size {
			parts = append(parts, string(current))
			current = current[:0]
			length = 0
		}
		current = append(current, r)
		length += rl
	}
	if len(current) > 0 {
		parts = append(parts, string(current))
	}
	return parts
}
