// Command replay is a diagnostic tool for parsing a dump of ARNU messages
// (one XML document per line) against the timetable source, without
// writing anything to the service store.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rdt-serviceinfo/serviceinfo/internal/config"
	"github.com/rdt-serviceinfo/serviceinfo/internal/realtime"
	"github.com/rdt-serviceinfo/serviceinfo/internal/timetable"
)

func main() {
	configPath := flag.String("c", "config/scheduler.yaml", "Configuration file")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("Usage: replay -c <config> <message-file>")
		os.Exit(1)
	}
	messageFile := flag.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("replay: %v", err)
		os.Exit(1)
	}

	ctx := context.Background()

	tt, err := timetable.New(ctx, cfg.IffDatabase, time.Local)
	if err != nil {
		log.Printf("replay: %v", err)
		os.Exit(1)
	}
	defer tt.Close()

	file, err := os.Open(messageFile)
	if err != nil {
		log.Printf("replay: file %s could not be opened: %v", messageFile, err)
		os.Exit(1)
	}
	defer file.Close()

	log.Println("Test tool starting")

	msgCount := 0
	serviceCount := 0

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		msgCount++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		decisions := realtime.ParseMessage(ctx, line, tt)
		for _, decision := range decisions {
			serviceCount++
			fmt.Printf("%s %s/%s -> %s\n", decision.Action, decision.Service.ServiceDateString(),
				decision.Service.Servicenumber, decision.Service.ServiceID)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("replay: error reading %s: %v", messageFile, err)
		os.Exit(1)
	}

	log.Printf("Finished processing %d services from %d ARNU messages", serviceCount, msgCount)
}
