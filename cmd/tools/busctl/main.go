// busctl attaches to the gateway bus from the strategy side: inspect the
// snapshot, tail the market ring, inject commands, and drain order events.
// It is the manual stand-in for a strategy process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"main/internal/shm"
	"main/pkg/exception"
)

// Per-order notional guardrails: the exchange minimum and a manual-tool
// ceiling against fat fingers.
const (
	minOrderUSDT = 5.5
	maxOrderUSDT = 20.0
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "status":
		err = runStatus(args)
	case "watch":
		err = runWatch(args)
	case "order":
		err = runOrder(args)
	case "cancel":
		err = runCancel(args)
	case "cancel-all":
		err = runCancelAll(args)
	case "flush":
		err = runFlush(args)
	case "drain":
		err = runDrain(args)
	case "flow":
		err = runFlow(args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("busctl %s: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: busctl <command> [flags]

commands:
  status      print snapshot and ring cursors
  watch       tail the market ring
  order       push a NEW command and drain its events
  cancel      push a CANCEL command
  cancel-all  push a CANCEL_ALL command
  flush       set the emergency-flush strategy status
  drain       print pending order events
  flow        dump a recorded market flow file`)
}

func shmFlag(fs *flag.FlagSet) *string {
	return fs.String("shm-name", shm.DefaultName, "shared memory object name")
}

func attach(name string) (*shm.Handle, error) {
	h, err := shm.Attach(name)
	if err != nil {
		return nil, fmt.Errorf("attach %s (is the gateway running?): %w", name, err)
	}
	return h, nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	name := shmFlag(fs)
	_ = fs.Parse(args)

	h, err := attach(*name)
	if err != nil {
		return err
	}
	defer h.Close()
	bus := h.Bus()

	a := &bus.Account
	healthAge := time.Duration(uint64(time.Now().UnixNano()) - a.SystemHealth())
	fmt.Printf("gateway alive:      %v (health %s ago)\n", a.GatewayAlive(), healthAge.Round(time.Millisecond))
	fmt.Printf("strategy alive:     %v status=%d\n", a.StrategyAlive(), a.StrategyStatus())
	fmt.Printf("usdt balance:       %.4f\n", a.USDTBalance())
	fmt.Printf("position:           %.6f @ %.4f\n", a.PositionAmt(), a.AvgPrice())
	fmt.Printf("precision:          price=%d quantity=%d\n", a.PricePrecision(), a.QuantityPrecision())
	fmt.Printf("market write_index: %d\n", bus.Market.WriteIndex())
	fmt.Printf("command depth:      %d\n", bus.Command.Depth())
	fmt.Printf("event depth:        %d\n", bus.Event.Depth())
	return nil
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	name := shmFlag(fs)
	_ = fs.Parse(args)

	h, err := attach(*name)
	if err != nil {
		return err
	}
	defer h.Close()
	bus := h.Bus()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus.Account.SetStrategyAlive(true)
	defer bus.Account.SetStrategyAlive(false)

	// Skip history: consume whatever is already published without printing.
	var cur shm.MarketCursor
	var frame shm.MarketFrame
	for cur.Poll(&bus.Market, &frame) {
	}
	for ctx.Err() == nil {
		if !cur.Poll(&bus.Market, &frame) {
			time.Sleep(time.Millisecond)
			continue
		}
		printMarketFrame(&frame, cur.Skipped)
	}
	return nil
}

func printMarketFrame(f *shm.MarketFrame, skipped uint64) {
	ts := time.Unix(0, int64(f.TExchNs)).UTC().Format("15:04:05.000000")
	switch f.Type {
	case shm.MarketTrade:
		fmt.Printf("%s trade  px=%.4f qty=%.4f side=%+d skipped=%d\n", ts, f.Price, f.Quantity, f.Side, skipped)
	case shm.MarketBookTicker:
		fmt.Printf("%s book   bid=%.4f/%.4f ask=%.4f/%.4f\n", ts, f.BidP, f.BidQ, f.AskP, f.AskQ)
	case shm.MarketLiquidation:
		fmt.Printf("%s liq    px=%.4f qty=%.4f side=%+d\n", ts, f.Price, f.Quantity, f.Side)
	}
}

func runOrder(args []string) error {
	fs := flag.NewFlagSet("order", flag.ExitOnError)
	name := shmFlag(fs)
	symbol := fs.String("symbol", "BNBUSDT", "symbol")
	side := fs.String("side", "buy", "buy or sell")
	price := fs.Float64("price", 0, "limit price (0 = market order)")
	qty := fs.Float64("qty", 0, "base asset quantity")
	tif := fs.String("tif", "gtc", "gtc, ioc or fok")
	cid := fs.String("cid", "", "client order id (default: generated)")
	wait := fs.Duration("wait", 5*time.Second, "how long to drain events afterwards")
	_ = fs.Parse(args)

	if *qty <= 0 {
		return exception.ErrInvalidArgument
	}
	if *price > 0 {
		notional := *price * *qty
		if notional < minOrderUSDT || notional > maxOrderUSDT {
			return fmt.Errorf("notional %.2f USDT outside [%.2f, %.2f]", notional, minOrderUSDT, maxOrderUSDT)
		}
	}

	h, err := attach(*name)
	if err != nil {
		return err
	}
	defer h.Close()
	bus := h.Bus()

	var cmd shm.CommandFrame
	cmd.RequestID = uint64(time.Now().UnixNano())
	cmd.TriggerMs = uint64(time.Now().UnixMilli())
	if *cid == "" {
		*cid = "busctl-" + strconv.FormatInt(time.Now().Unix(), 10)
	}
	cmd.SetClientOrderID(*cid)
	cmd.SetSymbol(*symbol)
	cmd.Action = shm.ActionNew
	cmd.Side = parseSide(*side)
	cmd.Tif = parseTif(*tif)
	cmd.Quantity = *qty
	if *price > 0 {
		cmd.Type = shm.OrderLimit
		cmd.Price = *price
	} else {
		cmd.Type = shm.OrderMarket
	}

	if err := bus.Command.Push(&cmd); err != nil {
		return err
	}
	fmt.Printf("command pushed: cid=%s\n", *cid)
	return drainEvents(bus, *wait)
}

func runCancel(args []string) error {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	name := shmFlag(fs)
	symbol := fs.String("symbol", "BNBUSDT", "symbol")
	cid := fs.String("cid", "", "client order id to cancel")
	wait := fs.Duration("wait", 5*time.Second, "how long to drain events afterwards")
	_ = fs.Parse(args)

	if *cid == "" {
		return exception.ErrInvalidArgument
	}

	h, err := attach(*name)
	if err != nil {
		return err
	}
	defer h.Close()
	bus := h.Bus()

	var cmd shm.CommandFrame
	cmd.RequestID = uint64(time.Now().UnixNano())
	cmd.TriggerMs = uint64(time.Now().UnixMilli())
	cmd.SetClientOrderID(*cid)
	cmd.SetSymbol(*symbol)
	cmd.Action = shm.ActionCancel

	if err := bus.Command.Push(&cmd); err != nil {
		return err
	}
	return drainEvents(bus, *wait)
}

func runCancelAll(args []string) error {
	fs := flag.NewFlagSet("cancel-all", flag.ExitOnError)
	name := shmFlag(fs)
	symbol := fs.String("symbol", "BNBUSDT", "symbol")
	_ = fs.Parse(args)

	h, err := attach(*name)
	if err != nil {
		return err
	}
	defer h.Close()

	var cmd shm.CommandFrame
	cmd.RequestID = uint64(time.Now().UnixNano())
	cmd.SetSymbol(*symbol)
	cmd.Action = shm.ActionCancelAll

	if err := h.Bus().Command.Push(&cmd); err != nil {
		return err
	}
	fmt.Println("cancel-all pushed")
	return nil
}

func runFlush(args []string) error {
	fs := flag.NewFlagSet("flush", flag.ExitOnError)
	name := shmFlag(fs)
	_ = fs.Parse(args)

	h, err := attach(*name)
	if err != nil {
		return err
	}
	defer h.Close()

	h.Bus().Account.SetStrategyStatus(shm.StatusEmergencyFlush)
	fmt.Println("emergency flush status set; the gateway honors it at next startup")
	return nil
}

func runDrain(args []string) error {
	fs := flag.NewFlagSet("drain", flag.ExitOnError)
	name := shmFlag(fs)
	wait := fs.Duration("wait", time.Second, "how long to keep draining")
	_ = fs.Parse(args)

	h, err := attach(*name)
	if err != nil {
		return err
	}
	defer h.Close()
	return drainEvents(h.Bus(), *wait)
}

func drainEvents(bus *shm.Bus, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	var event shm.OrderEventFrame
	for time.Now().Before(deadline) {
		ok, err := bus.Event.Pop(&event)
		if err != nil {
			return err
		}
		if !ok {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		printEvent(&event)
	}
	return nil
}

func printEvent(e *shm.OrderEventFrame) {
	ts := time.Unix(0, int64(e.TimestampNs)).UTC().Format("15:04:05.000")
	fmt.Printf("%s %-12s cid=%s side=%+d fill=%.4f@%.4f remaining=%.4f update=%d",
		ts, shm.EventTypeName(e.EventType), e.ClientOrderIDString(), e.Side,
		e.FillQty, e.FillPrice, e.RemainingQty, e.LastUpdateID)
	if e.EventType == shm.EvtRejected {
		fmt.Printf(" code=%d msg=%q", e.ErrorCode, e.ErrorMsgString())
	}
	fmt.Println()
}

func runFlow(args []string) error {
	fs := flag.NewFlagSet("flow", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: busctl flow <file>")
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, shm.MarketRecordSize)
	var frame shm.MarketFrame
	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}
		if err := shm.DecodeMarket(buf, &frame); err != nil {
			return err
		}
		printMarketFrame(&frame, 0)
	}
}

func parseSide(s string) int32 {
	if s == "sell" || s == "SELL" {
		return -1
	}
	return 1
}

func parseTif(s string) int32 {
	switch s {
	case "ioc", "IOC":
		return shm.TifIOC
	case "fok", "FOK":
		return shm.TifFOK
	default:
		return shm.TifGTC
	}
}
