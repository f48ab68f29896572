// Command httpserver exposes the stateless HTTP read surface over the
// service store, falling back to the timetable source on a miss.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/rdt-serviceinfo/serviceinfo/internal/config"
	"github.com/rdt-serviceinfo/serviceinfo/internal/filter"
	"github.com/rdt-serviceinfo/serviceinfo/internal/httpapi"
	"github.com/rdt-serviceinfo/serviceinfo/internal/store"
	"github.com/rdt-serviceinfo/serviceinfo/internal/timetable"
)

func main() {
	configPath := flag.String("c", "config/http-server.yaml", "Configuration file")
	port := flag.Int("p", 8080, "Listen port")
	bind := flag.String("b", "0.0.0.0", "Bind address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("httpserver: %v", err)
		os.Exit(1)
	}

	ctx := context.Background()

	tt, err := timetable.New(ctx, cfg.IffDatabase, time.Local)
	if err != nil {
		log.Printf("httpserver: %v", err)
		os.Exit(1)
	}
	defer tt.Close()

	svcStore, err := store.New(ctx, cfg.ScheduleStore)
	if err != nil {
		log.Printf("httpserver: %v", err)
		os.Exit(1)
	}
	defer svcStore.Close()

	inclusion := filter.ParseConfig(cfg.Scheduler.Filter)

	app := fiber.New(fiber.Config{
		AppName:      "serviceinfo HTTP surface",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	})
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))

	server := httpapi.NewServer(svcStore, tt, inclusion)
	server.Register(app)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "404",
			"message": "endpoint not found",
		})
	})

	addr := fmt.Sprintf("%s:%d", *bind, *port)
	log.Printf("HTTP read surface listening on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Printf("httpserver: %v", err)
		os.Exit(1)
	}
}
