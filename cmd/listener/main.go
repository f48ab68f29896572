// Command listener runs the realtime ingest pipeline: it subscribes to the
// ARNU transport, decompresses and parses each message, and writes the
// resulting decisions into the actual tier of the service store.
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
	"github.com/rdt-serviceinfo/serviceinfo/internal/ingest"
	"github.com/rdt-serviceinfo/serviceinfo/internal/store"
	"github.com/rdt-serviceinfo/serviceinfo/internal/timetable"
)

func main() {
	configPath := flag.String("c", "config/arnu-listener.yaml", "Configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("listener: %v", err)
		os.Exit(1)
	}

	log.Println("Realtime listener starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tt, err := timetable.New(ctx, cfg.IffDatabase, time.Local)
	if err != nil {
		log.Printf("listener: %v", err)
		os.Exit(1)
	}
	defer tt.Close()

	svcStore, err := store.New(ctx, cfg.ScheduleStore)
	if err != nil {
		log.Printf("listener: %v", err)
		os.Exit(1)
	}
	defer svcStore.Close()

	subject := cfg.ArnuSource.Subject
	if subject == "" {
		subject = "arnu.messages"
	}

	pipeline, err := ingest.New(ingest.Config{
		NatsURL: cfg.ArnuSource.Socket,
		Subject: subject,
		Queue:   cfg.ArnuSource.Queue,
		Workers: 4,
	}, tt, svcStore)
	if err != nil {
		log.Printf("listener: %v", err)
		os.Exit(1)
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down realtime listener")
		cancel()
	}()

	if err := pipeline.Run(ctx, ingest.Config{
		Subject: subject,
		Queue:   cfg.ArnuSource.Queue,
	}); err != nil {
		log.Printf("listener: %v", err)
		os.Exit(1)
	}
}
