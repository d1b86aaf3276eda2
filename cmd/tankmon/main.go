// Command tankmon ingests tank telemetry over MQTT, maintains current state
// and bounded history for a fixed tank set, evaluates alarms, and serves a
// JSON API over the state.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/tank-monitor/internal/config"
	"github.com/sweeney/tank-monitor/internal/ingest"
	"github.com/sweeney/tank-monitor/internal/persist"
	"github.com/sweeney/tank-monitor/internal/retention"
	"github.com/sweeney/tank-monitor/internal/store"
	"github.com/sweeney/tank-monitor/internal/transport"
	"github.com/sweeney/tank-monitor/internal/web"
)

func main() {
	envFile := flag.String("env", ".env", "environment file to load (missing file is ignored)")
	broker := flag.String("broker", "", "MQTT broker host (overrides MQTT_HOST)")
	port := flag.Int("port", 0, "MQTT broker port (overrides MQTT_PORT)")
	httpAddr := flag.String("http", "", "HTTP API address (overrides HTTP_ADDR, empty keeps env value)")
	sweepEvery := flag.Duration("sweep-interval", 24*time.Hour, "retention sweep interval")
	flag.Parse()

	cfg := config.Load(*envFile)
	if *broker != "" {
		cfg.MQTTHost = *broker
	}
	if *port != 0 {
		cfg.MQTTPort = *port
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}

	if err := run(cfg, *sweepEvery); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg config.Config, sweepEvery time.Duration) error {
	// Persistence gateway first: the snapshot seeds the store.
	gateway, err := persist.NewFileGateway(cfg.DataDir, cfg.HistoryFile)
	if err != nil {
		return fmt.Errorf("init persistence: %w", err)
	}
	defer gateway.Close()

	st := store.New(store.Options{
		MaxTanks:         cfg.MaxTanks,
		TankHeight:       cfg.TankHeight,
		HighLimitPct:     cfg.HighLimitPct,
		StorageDays:      cfg.StorageDays,
		MaxHistoryPoints: cfg.MaxHistoryPoints,
		Persist:          gateway.Write,
	})

	snap, err := gateway.Load()
	if err != nil {
		log.Printf("snapshot load failed, starting fresh: %v", err)
	} else {
		st.LoadSnapshot(snap)
	}

	// Transport + ingestion.
	client := transport.NewClient(transport.Options{
		Host:      cfg.MQTTHost,
		Port:      cfg.MQTTPort,
		ClientID:  cfg.MQTTClientID,
		Username:  cfg.MQTTUsername,
		Password:  cfg.MQTTPassword,
		TLS:       cfg.MQTTUseTLS,
		Keepalive: cfg.MQTTKeepalive,
	})

	processor := ingest.New(st, cfg.TankDataTopic, cfg.AdjustmentsTopic)
	client.OnMessage(processor.HandleMessage)

	// Subscribe on every successful (re)connection; the client replays
	// recorded subscriptions itself, this also covers the first connect.
	client.OnStatus(func(ev transport.StatusEvent) {
		if ev.State != transport.StateConnected {
			return
		}
		for _, topic := range []string{cfg.TankDataTopic, cfg.AdjustmentsTopic} {
			if err := client.Subscribe(topic, 0); err != nil {
				log.Printf("subscribe %s failed: %v", topic, err)
			}
		}
	})

	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Disconnect()

	// Retention.
	sched := retention.New(st, sweepEvery)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start retention scheduler: %w", err)
	}
	defer sched.Stop()

	// HTTP API.
	srv := web.New(cfg.HTTPAddr, st, client, cfg.AdjustmentsTopic)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()
	defer srv.Shutdown(context.Background())
	log.Printf("http api listening on %s", cfg.HTTPAddr)

	log.Printf("started: broker=%s:%d tanks=%d topics=[%s %s]",
		cfg.MQTTHost, cfg.MQTTPort, cfg.MaxTanks, cfg.TankDataTopic, cfg.AdjustmentsTopic)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("shutting down: %v", sig)
	return nil
}
