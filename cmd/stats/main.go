// Command stats prints a single counter or aggregate from the service
// store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rdt-serviceinfo/serviceinfo/internal/config"
	"github.com/rdt-serviceinfo/serviceinfo/internal/model"
	"github.com/rdt-serviceinfo/serviceinfo/internal/stats"
	"github.com/rdt-serviceinfo/serviceinfo/internal/store"
)

func main() {
	configPath := flag.String("c", "config/serviceinfo.yaml", "Configuration file")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("Usage: stats -c <config> <COUNTER>")
		fmt.Println("COUNTER is one of: messages, services, actual_services, scheduled_services")
		os.Exit(1)
	}
	counter := flag.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("stats: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.ScheduleStore.Host, cfg.ScheduleStore.Port),
		Password: cfg.ScheduleStore.Password,
		DB:       cfg.ScheduleStore.Database,
	})
	defer client.Close()

	counters := stats.NewCounters(client)

	svcStore, err := store.New(ctx, cfg.ScheduleStore)
	if err != nil {
		log.Printf("stats: %v", err)
		os.Exit(1)
	}
	defer svcStore.Close()

	switch counter {
	case "messages":
		value, err := counters.Messages(ctx)
		exitOnErr(err)
		fmt.Println(value)
	case "services":
		value, err := counters.Services(ctx)
		exitOnErr(err)
		fmt.Println(value)
	case "actual_services":
		value, err := stats.StoredServices(ctx, svcStore, model.TierActual)
		exitOnErr(err)
		fmt.Println(value)
	case "scheduled_services":
		value, err := stats.StoredServices(ctx, svcStore, model.TierScheduled)
		exitOnErr(err)
		fmt.Println(value)
	default:
		fmt.Println("Unknown type")
		os.Exit(1)
	}
}

func exitOnErr(err error) {
	if err != nil {
		log.Printf("stats: %v", err)
		os.Exit(1)
	}
}
