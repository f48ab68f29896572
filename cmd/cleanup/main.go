// Command cleanup sweeps service dates older than a threshold out of the
// service store.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/rdt-serviceinfo/serviceinfo/internal/cleanup"
	"github.com/rdt-serviceinfo/serviceinfo/internal/config"
	"github.com/rdt-serviceinfo/serviceinfo/internal/store"
)

func main() {
	configPath := flag.String("c", "config/cleanup.yaml", "Configuration file")
	threshold := flag.Int("t", 7, "Retention threshold in days")
	selection := flag.String("s", "all", "Tier selection: actual|scheduled|all")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("cleanup: %v", err)
		os.Exit(1)
	}

	sel := cleanup.Selection(*selection)
	switch sel {
	case cleanup.SelectionActual, cleanup.SelectionScheduled, cleanup.SelectionAll:
	default:
		log.Printf("cleanup: unknown selection %q", *selection)
		os.Exit(1)
	}

	ctx := context.Background()

	svcStore, err := store.New(ctx, cfg.ScheduleStore)
	if err != nil {
		log.Printf("cleanup: %v", err)
		os.Exit(1)
	}
	defer svcStore.Close()

	log.Printf("Cleaning up service dates older than %d days", *threshold)
	removed, err := cleanup.Run(ctx, svcStore, sel, *threshold, time.Now())
	if err != nil {
		log.Printf("cleanup: %v", err)
		os.Exit(1)
	}

	log.Printf("Removed %d service dates from the store", removed)
}
