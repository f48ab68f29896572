// Command injector runs the departure injector on a periodic trigger,
// dispatching upcoming departures to a downstream receiver over NATS
// request/reply.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rdt-serviceinfo/serviceinfo/internal/config"
	"github.com/rdt-serviceinfo/serviceinfo/internal/filter"
	"github.com/rdt-serviceinfo/serviceinfo/internal/inject"
	"github.com/rdt-serviceinfo/serviceinfo/internal/store"
)

func main() {
	configPath := flag.String("c", "config/injector.yaml", "Configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("injector: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svcStore, err := store.New(ctx, cfg.ScheduleStore)
	if err != nil {
		log.Printf("injector: %v", err)
		os.Exit(1)
	}
	defer svcStore.Close()

	subject := cfg.Injector.Subject
	if subject == "" {
		subject = "injector.departures"
	}

	transport, err := inject.NewTransport(cfg.Injector.InjectorServer, subject)
	if err != nil {
		log.Printf("injector: %v", err)
		os.Exit(1)
	}
	defer transport.Close()

	window := cfg.Injector.Window
	if window <= 0 {
		window = 30
	}
	inclusion := filter.ParseConfig(map[string]interface{}{"include": map[string]interface{}{"store": cfg.Injector.Selection}})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down injector")
		cancel()
	}()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	log.Println("Injector starting")
	runCycle(ctx, svcStore, transport, window, inclusion)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCycle(ctx, svcStore, transport, window, inclusion)
		}
	}
}

func runCycle(ctx context.Context, svcStore *store.Store, transport *inject.Transport, window int, inclusion filter.InclusionFilter) {
	sent, failed, err := inject.Run(ctx, svcStore, transport, window, inclusion, time.Now())
	if err != nil {
		log.Printf("injector: cycle failed: %v", err)
		return
	}
	log.Printf("injector: cycle complete, %d sent, %d failed", sent, failed)
}
