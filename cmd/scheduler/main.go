// Command scheduler loads a service date from the timetable database and
// stores every service into the scheduled tier of the service store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rdt-serviceinfo/serviceinfo/internal/config"
	"github.com/rdt-serviceinfo/serviceinfo/internal/filter"
	"github.com/rdt-serviceinfo/serviceinfo/internal/model"
	"github.com/rdt-serviceinfo/serviceinfo/internal/store"
	"github.com/rdt-serviceinfo/serviceinfo/internal/timetable"
)

func main() {
	configPath := flag.String("c", "config/scheduler.yaml", "Configuration file")
	dateArg := flag.String("d", "", "Service date (YYYY-MM-DD), defaults to today")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("scheduler: %v", err)
		os.Exit(1)
	}

	serviceDate := time.Now()
	if *dateArg != "" {
		parsed, err := time.Parse("2006-01-02", *dateArg)
		if err != nil {
			log.Printf("scheduler: invalid -d date %q: %v", *dateArg, err)
			os.Exit(1)
		}
		serviceDate = parsed
	}
	serviceDate = time.Date(serviceDate.Year(), serviceDate.Month(), serviceDate.Day(), 0, 0, 0, 0, time.Local)

	log.Println("Scheduler starting")

	ctx := context.Background()

	tt, err := timetable.New(ctx, cfg.IffDatabase, time.Local)
	if err != nil {
		log.Printf("scheduler: %v", err)
		os.Exit(1)
	}
	defer tt.Close()

	svcStore, err := store.New(ctx, cfg.ScheduleStore)
	if err != nil {
		log.Printf("scheduler: %v", err)
		os.Exit(1)
	}
	defer svcStore.Close()

	inclusion := filter.ParseConfig(cfg.Scheduler.Filter)

	log.Printf("Getting services for %s", serviceDate.Format("2006-01-02"))
	ids, err := tt.ServicesForDate(ctx, serviceDate)
	if err != nil {
		log.Printf("scheduler: %v", err)
		os.Exit(1)
	}
	log.Printf("Found %d scheduled services on %s", len(ids), serviceDate.Format("2006-01-02"))

	stored := 0
	for _, id := range ids {
		services, err := tt.ServiceDetail(ctx, id, serviceDate)
		if err != nil {
			log.Printf("scheduler: skipping service %s: %v", id, err)
			continue
		}

		for _, svc := range services {
			if !filter.IsServiceIncluded(svc, inclusion) {
				continue
			}
			if err := svcStore.StoreService(ctx, svc, model.TierScheduled); err != nil {
				log.Printf("scheduler: can't store service %s: %v", svc.ServiceID, err)
				continue
			}
			stored++
		}
	}

	log.Printf("%d services stored to schedule", stored)
	fmt.Println("Scheduler done")
}
