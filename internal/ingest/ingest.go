// Package ingest implements the realtime ingest pipeline: a NATS subscriber
// feeding a bounded in-process work queue drained by one or more workers,
// each isolated against per-message panics and errors.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/nats-io/nats.go"

	"github.com/rdt-serviceinfo/serviceinfo/internal/model"
	"github.com/rdt-serviceinfo/serviceinfo/internal/realtime"
)

// ServiceSink is the subset of the store the ingest pipeline writes to.
type ServiceSink interface {
	StoreService(ctx context.Context, svc *model.Service, tier model.Tier) error
	Delete(ctx context.Context, date, number string, tier model.Tier) error
}

// Pipeline owns the NATS subscription, work queue, and worker pool.
type Pipeline struct {
	conn     *nats.Conn
	sub      *nats.Subscription
	resolver realtime.StationResolver
	sink     ServiceSink

	queue   chan []byte
	workers int

	wg sync.WaitGroup
}

// Config carries the pipeline's tunables.
type Config struct {
	NatsURL    string
	Subject    string
	Queue      string
	Workers    int
	QueueDepth int
}

// New dials the NATS server and prepares (but does not start) the pipeline.
func New(cfg Config, resolver realtime.StationResolver, sink ServiceSink) (*Pipeline, error) {
	conn, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		return nil, fmt.Errorf("ingest: connect to %s: %w", cfg.NatsURL, err)
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	depth := cfg.QueueDepth
	if depth < 1 {
		depth = 256
	}

	return &Pipeline{
		conn:     conn,
		resolver: resolver,
		sink:     sink,
		queue:    make(chan []byte, depth),
		workers:  workers,
	}, nil
}

// Run subscribes and starts the worker pool; it blocks until ctx is
// cancelled, then unsubscribes, closes the work queue and lets the workers
// finish the messages already queued.
func (p *Pipeline) Run(ctx context.Context, cfg Config) error {
	handler := func(msg *nats.Msg) {
		payload, err := decompress(msg.Data)
		if err != nil {
			log.Printf("ingest: discarding message on %s: %v", msg.Subject, err)
			return
		}
		p.enqueue(payload)
	}

	var sub *nats.Subscription
	var err error
	if cfg.Queue != "" {
		sub, err = p.conn.QueueSubscribe(cfg.Subject, cfg.Queue, handler)
	} else {
		sub, err = p.conn.Subscribe(cfg.Subject, handler)
	}
	if err != nil {
		return fmt.Errorf("ingest: subscribe to %s: %w", cfg.Subject, err)
	}
	p.sub = sub

	// Workers get a context that outlives cancellation, so queued messages
	// can still be parsed and stored during shutdown.
	workerCtx := context.WithoutCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(workerCtx)
	}

	<-ctx.Done()

	if err := p.sub.Unsubscribe(); err != nil {
		log.Printf("ingest: unsubscribe error: %v", err)
	}
	close(p.queue)
	p.wg.Wait()
	p.conn.Close()
	return nil
}

// enqueue pushes bytes onto the bounded queue. When full, the oldest pending
// message is dropped with a logged warning rather than blocking the socket
// reader indefinitely.
func (p *Pipeline) enqueue(payload []byte) {
	select {
	case p.queue <- payload:
	default:
		select {
		case <-p.queue:
			log.Printf("ingest: work queue full, dropped oldest message")
		default:
		}
		select {
		case p.queue <- payload:
		default:
			log.Printf("ingest: work queue still full, dropping incoming message")
		}
	}
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for payload := range p.queue {
		p.processMessage(ctx, payload)
	}
}

// processMessage isolates a single message: a panic or error here is logged
// and the worker continues with the next message.
func (p *Pipeline) processMessage(ctx context.Context, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ingest: recovered from panic processing message: %v", r)
		}
	}()

	decisions := realtime.ParseMessage(ctx, payload, p.resolver)
	for _, decision := range decisions {
		if err := p.apply(ctx, decision); err != nil {
			log.Printf("ingest: dropping decision for service %s: %v", decision.Service.ServiceID, err)
		}
	}
}

func (p *Pipeline) apply(ctx context.Context, decision realtime.Decision) error {
	switch decision.Action {
	case realtime.ActionStore:
		return p.sink.StoreService(ctx, decision.Service, model.TierActual)
	case realtime.ActionRemove:
		return p.sink.Delete(ctx, decision.Service.ServiceDateString(), decision.Service.Servicenumber, model.TierActual)
	default:
		return fmt.Errorf("unknown ingest action %q", decision.Action)
	}
}

// decompress gunzips a single message payload. NATS delivers one frame per
// message, so no frame-joining step is needed here.
func decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip header: %w", err)
	}
	defer reader.Close()

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gzip body: %w", err)
	}
	return out, nil
}
