// Command archiver writes a service date's combined-tier services from the
// store into the archive database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rdt-serviceinfo/serviceinfo/internal/archive"
	"github.com/rdt-serviceinfo/serviceinfo/internal/config"
	"github.com/rdt-serviceinfo/serviceinfo/internal/store"
)

func main() {
	configPath := flag.String("c", "config/archiver.yaml", "Configuration file")
	dateArg := flag.String("d", "", "Service date to archive (YYYY-MM-DD), defaults to yesterday")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("archiver: %v", err)
		os.Exit(1)
	}

	serviceDate := time.Now().AddDate(0, 0, -1)
	if *dateArg != "" {
		parsed, err := time.Parse("2006-01-02", *dateArg)
		if err != nil {
			log.Printf("archiver: invalid -d date %q: %v", *dateArg, err)
			os.Exit(1)
		}
		serviceDate = parsed
	}

	ctx := context.Background()

	db := cfg.ArchiveDatabase
	connString := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		db.Host, db.Port, db.Database, db.User, db.Password, sslModeOrDefault(db.SSLMode))

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		log.Printf("archiver: unable to connect to archive database: %v", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Printf("archiver: unable to ping archive database: %v", err)
		os.Exit(1)
	}

	svcStore, err := store.New(ctx, cfg.ScheduleStore)
	if err != nil {
		log.Printf("archiver: %v", err)
		os.Exit(1)
	}
	defer svcStore.Close()

	log.Printf("Archiving services for %s", serviceDate.Format("2006-01-02"))

	archiver := archive.New(pool)
	processed, err := archiver.Run(ctx, svcStore, serviceDate)
	if err != nil {
		log.Printf("archiver: %v", err)
		os.Exit(1)
	}

	log.Printf("%d services stored to archive", processed)
}

func sslModeOrDefault(mode string) string {
	if mode == "" {
		return "disable"
	}
	return mode
}
