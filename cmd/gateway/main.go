package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	pyroscope "github.com/grafana/pyroscope-go"

	"main/internal/binance"
	"main/internal/gateway"
	"main/internal/shm"
)

func main() {
	symbol := flag.String("symbol", "BNBUSDT", "USDⓈ-M futures symbol to trade")
	leverage := flag.Int("leverage", 20, "leverage applied at startup")
	shmName := flag.String("shm-name", shm.DefaultName, "shared memory object name")
	recordPath := flag.String("record", "", "record market frames to this file, truncating it first (optional)")
	pyroAddr := flag.String("pyroscope", "", "pyroscope server address (optional)")
	flag.Parse()

	if err := run(*symbol, *leverage, *shmName, *recordPath, *pyroAddr); err != nil {
		log.Fatalf("gateway: %v", err)
	}
}

func run(symbol string, leverage int, shmName, recordPath, pyroAddr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	creds, err := binance.CredentialsFromEnv()
	if err != nil {
		return err
	}

	if pyroAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "nowcore/gateway",
			ServerAddress:   pyroAddr,
			Logger:          emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
			},
		})
		if err != nil {
			return err
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	handle, err := shm.Create(shmName)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := handle.Close(); cerr != nil {
			log.Printf("close bus: %v", cerr)
		}
	}()
	log.Printf("bus mapped: %s (%d bytes)", shmName, shm.BusSize)

	client := binance.NewClient(creds, binance.DefaultBaseURL)
	g := gateway.New(gateway.Config{
		Symbol:     symbol,
		Leverage:   leverage,
		RecordPath: recordPath,
	}, handle.Bus(), client)

	if err := g.Bootstrap(ctx); err != nil {
		return err
	}
	g.Run(ctx)
	return nil
}

type emptyLogger struct{}

func (emptyLogger) Infof(string, ...interface{})  {}
func (emptyLogger) Debugf(string, ...interface{}) {}
func (emptyLogger) Errorf(string, ...interface{}) {}
