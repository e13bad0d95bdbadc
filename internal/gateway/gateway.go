// Package gateway owns the runtime: both WebSocket connections, the command
// consumer, the event writer, and the heartbeat loop. One Gateway value holds
// everything that used to be process-global state.
package gateway

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/binance"
	"main/internal/clock"
	"main/internal/obs"
	"main/internal/shm"
	"main/pkg/websocket"
)

const (
	wsHost = "fstream.binance.com"
	wsPort = "443"
)

// Config is the gateway's operational surface.
type Config struct {
	Symbol     string // e.g. "BNBUSDT"
	Leverage   int
	RecordPath string // optional market-flow recording file
}

// Gateway wires the bus, the REST executor and the two streams together.
type Gateway struct {
	cfg     Config
	bus     *shm.Bus
	client  *binance.Client
	exec    *binance.Executor
	writer  *EventWriter
	metrics *obs.Metrics
	flow    *FlowRecorder

	public    *websocket.Conn
	user      *websocket.Conn
	listenKey string

	running  atomic.Bool
	stopOnce sync.Once
	// wg tracks the reader goroutines and renewal workers (the user-stream
	// reader feeds the event writer); writerWG tracks the writer itself,
	// which must outlive them.
	wg       sync.WaitGroup
	writerWG sync.WaitGroup
}

// New assembles a gateway over an already-mapped bus.
func New(cfg Config, bus *shm.Bus, client *binance.Client) *Gateway {
	g := &Gateway{
		cfg:     cfg,
		bus:     bus,
		client:  client,
		metrics: obs.NewMetrics(),
	}
	g.writer = NewEventWriter(&bus.Event, g.metrics, func(err error) {
		g.stop("event ring failure: " + err.Error())
	})
	g.exec = binance.NewExecutor(client, g.writer, &bus.Account)
	return g
}

// Metrics exposes the counters for logging.
func (g *Gateway) Metrics() *obs.Metrics {
	return g.metrics
}

// Bootstrap runs the startup sequence: honor a pending emergency flush,
// reset the bus, configure trading, reconcile the account, fetch precisions,
// obtain the listen key, and connect both streams. Returned errors are
// startup-fatal; trading setup, account reconciliation and the user stream
// only log a warning on failure.
func (g *Gateway) Bootstrap(ctx context.Context) error {
	if g.bus.Account.StrategyStatus() == shm.StatusEmergencyFlush {
		logs.Warnf("strategy left emergency flush status, canceling all %s orders", g.cfg.Symbol)
		g.exec.CancelAllSync(ctx, g.cfg.Symbol)
	}
	g.bus.Reset(clock.NowNs())

	g.exec.SetupTrading(ctx, g.cfg.Symbol, g.cfg.Leverage)

	if err := g.exec.FetchAccountInfo(ctx, g.cfg.Symbol); err != nil {
		logs.Warnf("account reconciliation failed, continuing: %+v", err)
	}
	if err := g.exec.FetchAndSetPrecision(ctx, g.cfg.Symbol); err != nil {
		return errors.Wrap(err, "fetch precision")
	}

	listenKey, err := g.client.StartListenKey(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch listenKey")
	}
	g.listenKey = listenKey

	if g.cfg.RecordPath != "" {
		flow, err := OpenFlowRecorder(g.cfg.RecordPath)
		if err != nil {
			return errors.Wrap(err, "open flow recorder")
		}
		g.flow = flow
	}

	symbol := strings.ToLower(g.cfg.Symbol)
	public, err := websocket.Dial(ctx, wsHost, wsPort, "/ws/"+symbol+"@aggTrade?timeUnit=MICROSECOND")
	if err != nil {
		return errors.Wrap(err, "connect public stream")
	}
	g.public = public
	if err := g.public.WriteText(subscribeMessage(symbol)); err != nil {
		return errors.Wrap(err, "subscribe public stream")
	}
	logs.Infof("public stream connected: %s", g.cfg.Symbol)

	user, err := websocket.Dial(ctx, wsHost, wsPort, "/ws/"+g.listenKey)
	if err != nil {
		// Market processing works without fills; the strategy falls back
		// to REST order queries.
		logs.Warnf("user stream unavailable, continuing without fills: %+v", err)
	} else {
		g.user = user
		logs.Info("user stream connected")
	}
	return nil
}

func subscribeMessage(symbol string) []byte {
	msg := make([]byte, 0, 128)
	msg = append(msg, `{"method":"SUBSCRIBE","params":["`...)
	msg = append(msg, symbol...)
	msg = append(msg, `@aggTrade","`...)
	msg = append(msg, symbol...)
	msg = append(msg, `@bookTicker","`...)
	msg = append(msg, symbol...)
	msg = append(msg, `@forceOrder"],"id":1}`...)
	return msg
}

// stop flips the running flag once and unblocks the readers.
func (g *Gateway) stop(reason string) {
	g.stopOnce.Do(func() {
		logs.Infof("gateway stopping: %s", reason)
		g.running.Store(false)
		if g.public != nil {
			_ = g.public.Close()
		}
		if g.user != nil {
			_ = g.user.Close()
		}
	})
}
