package gateway

import (
	"context"
	"strconv"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/clock"
	"main/internal/shm"
)

const (
	tickInterval     = 100 * time.Millisecond
	pingInterval     = 10 * time.Second
	listenKeyRenewal = 30 * time.Minute
	statsInterval    = 60 * time.Second
)

// Run executes the event loop until stop: heartbeat, periodic PING,
// listen-key renewal, and the command drain, with readers and the event
// writer running alongside. Blocks until shutdown completes.
func (g *Gateway) Run(ctx context.Context) {
	g.running.Store(true)

	g.writerWG.Add(1)
	go func() {
		defer g.writerWG.Done()
		g.writer.Run()
	}()

	g.wg.Add(1)
	go g.runReader(g.public, "public stream", g.publicHandler())
	if g.user != nil {
		g.wg.Add(1)
		go g.runReader(g.user, "user stream", g.userHandler())
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	lastPing := clock.MonoNs()
	lastRenewal := clock.MonoNs()
	lastStats := clock.MonoNs()

	for g.running.Load() {
		g.bus.Account.Beat(clock.NowNs())
		now := clock.MonoNs()

		if now-lastPing >= uint64(pingInterval) {
			g.sendPings()
			lastPing = now
		}
		if g.listenKey != "" && now-lastRenewal >= uint64(listenKeyRenewal) {
			g.renewListenKey(ctx)
			lastRenewal = now
		}
		if now-lastStats >= uint64(statsInterval) {
			s := g.metrics.Snapshot()
			logs.Infof("stats: market=%d dropped=%d events=%d commands=%d lag=%d",
				s.MarketFrames, s.MarketDropped, s.OrderEvents, s.Commands, g.bus.Event.Depth())
			lastStats = now
		}

		g.drainCommands(ctx)

		select {
		case <-ctx.Done():
			g.stop("signal received")
		case <-ticker.C:
		}
	}

	g.shutdown()
}

// drainCommands empties the command ring, dispatching each frame. The slot
// is released before the REST call finishes; the executor owns its copy.
func (g *Gateway) drainCommands(ctx context.Context) {
	var cmd shm.CommandFrame
	for {
		ok, err := g.bus.Command.Pop(&cmd)
		if err != nil {
			// Underflow means a corrupted producer; nothing sane remains.
			g.stop("command ring underflow")
			return
		}
		if !ok {
			return
		}
		g.metrics.Command()
		if derr := g.exec.Dispatch(ctx, &cmd); derr != nil {
			logs.Warnf("command %d dropped: %+v", cmd.RequestID, derr)
		}
	}
}

// sendPings emits the unsolicited heartbeat PING carrying a nanosecond
// timestamp on every live connection.
func (g *Gateway) sendPings() {
	payload := strconv.AppendUint(make([]byte, 0, 24), clock.NowNs(), 10)
	if err := g.public.WritePing(payload); err != nil {
		g.stop("public stream ping failed: " + err.Error())
		return
	}
	g.metrics.PingSent()
	if g.user != nil {
		payload = strconv.AppendUint(payload[:0], clock.NowNs(), 10)
		if err := g.user.WritePing(payload); err != nil {
			// Losing the user stream degrades fills, not market data.
			logs.Warnf("user stream ping failed: %+v", err)
			return
		}
		g.metrics.PingSent()
	}
}

// renewListenKey keeps the user stream token alive. Renewal runs on a worker
// so a slow round trip never stalls the loop; a failed renewal leaves the
// user stream to expire, which the strategy must tolerate.
func (g *Gateway) renewListenKey(ctx context.Context) {
	g.metrics.ListenRenewal()
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.client.KeepAliveListenKey(ctx); err != nil {
			logs.Errorf("listenKey renewal failed, user stream will expire: %+v", err)
			return
		}
		logs.Info("listenKey renewed")
	}()
}

// shutdown finishes in dependency order: in-flight REST workers complete
// and submit, the readers and renewal workers join, and only then — with
// every producer gone — the writer closes and drains everything into the
// ring. The liveness flag drops last; the bus stays mapped for the caller.
func (g *Gateway) shutdown() {
	g.stop("shutdown")
	g.exec.Wait()
	g.wg.Wait()
	g.writer.Close()
	g.writerWG.Wait()
	if err := g.flow.Close(); err != nil {
		logs.Warnf("close flow recorder: %+v", err)
	}
	g.bus.Account.SetGatewayAlive(false)
	logs.Info("gateway stopped")
}
