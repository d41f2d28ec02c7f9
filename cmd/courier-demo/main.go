// Command courier-demo publishes a burst of orders and price quotes through a
// courier hub and prints what every kind of subscriber saw.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	// Load COURIER_* settings from a .env file when present
	_ "github.com/joho/godotenv/autoload"

	"github.com/caarlos0/env/v11"
	"github.com/casualjim/courier"
	"github.com/casualjim/courier/pkg/slogx"
	"github.com/fatih/color"
	"github.com/k0kubun/pp/v3"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

type config struct {
	LogLevel   string        `env:"LOG_LEVEL" envDefault:"info"`
	NoColor    bool          `env:"NO_COLOR"`
	Orders     int           `env:"ORDERS" envDefault:"10"`
	Quotes     int           `env:"QUOTES" envDefault:"20"`
	RenderTime time.Duration `env:"RENDER_TIME" envDefault:"20ms"`
}

func loadConfig() (config, error) {
	var cfg config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "COURIER_"}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg config, out io.Writer) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	output := zerolog.ConsoleWriter{Out: out, NoColor: cfg.NoColor, TimeFormat: time.Stamp}
	log = zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: level}),
	))
	return nil
}

type order struct {
	ID    string `json:"id"`
	Total int    `json:"total"`
}

type quote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

type tally struct {
	Orders         int
	Revenue        int
	Audited        int
	QuotesStreamed int
	QuotesRendered []float64
	Snapshots      int
	FirstQuote     quote
	Failures       int
}

func run(ctx context.Context, cfg config, w io.Writer) (*tally, error) {
	var (
		mu       sync.Mutex
		t        tally
		failures atomic.Int32
	)

	hub := courier.NewHub(
		courier.WithLogger(slog.Default().With(slogx.LoggerName("courier-demo"))),
		courier.WithFailureSink(func(ctx context.Context, id string, err error) {
			failures.Add(1)
			slog.WarnContext(ctx, "handler failed", slogx.SubscriptionID(id), slogx.Error(err))
		}),
		courier.WithGlobalFilters(courier.NewLoggingFilter[order](nil)),
	)
	defer hub.Close()

	orders := courier.SubscriberOf[order](hub)
	quotes := courier.SubscriberOf[quote](hub)

	// sync handler: bookkeeping on the publisher's goroutine
	if _, err := courier.SubscribeFunc(orders, func(_ context.Context, o order) error {
		mu.Lock()
		defer mu.Unlock()
		t.Orders++
		t.Revenue += o.Total
		return nil
	}); err != nil {
		return nil, err
	}

	// async handler behind the logging filter, forced to run sequentially
	if _, err := courier.SubscribeAwaitFunc(orders, func(_ context.Context, o order) error {
		mu.Lock()
		defer mu.Unlock()
		t.Audited++
		return nil
	}, courier.SubscribeParallel); err != nil {
		return nil, err
	}

	// switch: only the newest quote is rendered
	if _, err := courier.SubscribeAwaitFunc(quotes, func(ctx context.Context, q quote) error {
		select {
		case <-time.After(cfg.RenderTime):
		case <-ctx.Done():
			return ctx.Err()
		}
		mu.Lock()
		defer mu.Unlock()
		t.QuotesRendered = append(t.QuotesRendered, q.Price)
		return nil
	}, courier.SubscribeSwitch); err != nil {
		return nil, err
	}

	// drop: snapshots are skipped while one is being written
	if _, err := courier.SubscribeAwaitFunc(quotes, func(context.Context, quote) error {
		time.Sleep(cfg.RenderTime)
		mu.Lock()
		defer mu.Unlock()
		t.Snapshots++
		return nil
	}, courier.SubscribeDrop); err != nil {
		return nil, err
	}

	streamCtx, stopStream := context.WithCancel(ctx)
	stream, _, err := courier.Stream(streamCtx, quotes, cfg.Quotes)
	if err != nil {
		stopStream()
		return nil, err
	}
	var streamed sync.WaitGroup
	streamed.Add(1)
	go func() {
		defer streamed.Done()
		for range stream {
			mu.Lock()
			t.QuotesStreamed++
			mu.Unlock()
		}
	}()

	firstQuote := make(chan quote, 1)
	firstErr := make(chan error, 1)
	if cfg.Quotes > 0 {
		firstReady := make(chan struct{})
		go func() {
			q, err := courier.First(ctx, subscribeSignal(quotes, firstReady))
			firstQuote <- q
			firstErr <- err
		}()
		<-firstReady
	}

	orderPub := courier.PublisherOf[order](hub)
	for i := range cfg.Orders {
		o := order{ID: fmt.Sprintf("o-%03d", i+1), Total: (i + 1) * 10}
		if err := orderPub.PublishAsync(ctx, o, courier.PublishParallel); err != nil {
			return nil, err
		}
	}

	quotePub := courier.PublisherOf[quote](hub)
	for i := range cfg.Quotes {
		q := quote{Symbol: "GOPH", Price: 100 + float64(i)/4}
		if i == cfg.Quotes-1 {
			// wait for the last quote so the switch handler settles
			if err := quotePub.PublishAsync(ctx, q, courier.PublishParallel); err != nil {
				return nil, err
			}
			continue
		}
		if err := quotePub.Publish(ctx, q); err != nil {
			return nil, err
		}
	}

	stopStream()
	streamed.Wait()

	// a dropped-strategy snapshot may still be running
	mu.Lock()
	result := t
	result.QuotesRendered = slices.Clone(t.QuotesRendered)
	mu.Unlock()

	if cfg.Quotes > 0 {
		if err := <-firstErr; err != nil {
			return nil, err
		}
		result.FirstQuote = <-firstQuote
	}
	result.Failures = int(failures.Load())

	report(w, cfg, &result)
	return &result, nil
}

// subscribeSignal closes ready once a subscription went through s.
func subscribeSignal[T any](s courier.Subscriber[T], ready chan struct{}) courier.Subscriber[T] {
	return &signalSubscriber[T]{Subscriber: s, ready: ready}
}

type signalSubscriber[T any] struct {
	courier.Subscriber[T]
	ready chan struct{}
	once  sync.Once
}

func (s *signalSubscriber[T]) Subscribe(h courier.Handler[T]) (courier.Subscription, error) {
	defer s.once.Do(func() { close(s.ready) })
	return s.Subscriber.Subscribe(h)
}

func report(w io.Writer, cfg config, t *tally) {
	color.NoColor = cfg.NoColor

	fmt.Fprintf(w, "%s: %d (revenue %d)\n", color.GreenString("orders"), t.Orders, t.Revenue)
	fmt.Fprintf(w, "%s: %d\n", color.CyanString("audited"), t.Audited)
	fmt.Fprintf(w, "%s: %d\n", color.CyanString("streamed quotes"), t.QuotesStreamed)
	fmt.Fprintf(w, "%s: %v\n", color.MagentaString("rendered quotes"), t.QuotesRendered)
	fmt.Fprintf(w, "%s: %d\n", color.MagentaString("snapshots"), t.Snapshots)
	if t.Failures > 0 {
		fmt.Fprintf(w, "%s: %d\n", color.RedString("failures"), t.Failures)
	}

	printer := pp.New()
	printer.SetOutput(w)
	printer.SetColoringEnabled(!cfg.NoColor)
	printer.Println(t)
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := setupLogging(cfg, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	slog.Info("running courier demo", slog.Int("orders", cfg.Orders), slog.Int("quotes", cfg.Quotes))
	if _, err := run(context.Background(), cfg, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("demo failed")
	}
}
