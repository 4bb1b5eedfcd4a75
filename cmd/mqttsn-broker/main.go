// Command mqttsn-broker runs the MQTT-SN broker over UDP, with an admin
// HTTP surface for metrics, health, and live packet tracing.
//
// Grounded on the teacher's cmd/mqtt-server/main.go: flag-selected JSON
// config loaded into the package-level CONFIG, then an errgroup
// supervising every listener the config turns on.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	mqttsn "github.com/golang-io/mqttsn"
	"github.com/golang-io/mqttsn/admin"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	configPath := flag.String("config", "./config/dev.json", "Path to config file")
	flag.Parse()

	if b, err := os.ReadFile(*configPath); err == nil {
		if err := json.Unmarshal(b, mqttsn.CONFIG); err != nil {
			log.Fatalf("parse config: %v", err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("read config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	trace := admin.NewTraceHub()
	stat := mqttsn.NewStat()

	transport, err := mqttsn.NewUDPTransport(mqttsn.CONFIG.UDP.URL, trace)
	if err != nil {
		log.Fatalf("bind UDP %s: %v", mqttsn.CONFIG.UDP.URL, err)
	}
	defer transport.Close()

	broker := mqttsn.NewBroker(transport, mqttsn.NewRealClock(), trace, stat)
	adminSrv := admin.New(stat, broker.Conns, trace)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return transport.Run(gctx.Done())
	})
	group.Go(func() error {
		return broker.Run(gctx)
	})
	if mqttsn.CONFIG.Admin.URL != "" {
		group.Go(func() error {
			return adminSrv.ListenAndServe(mqttsn.CONFIG.Admin.URL)
		})
	}

	log.Printf("mqtt-sn broker listening on %s", mqttsn.CONFIG.UDP.URL)
	if err := group.Wait(); err != nil && gctx.Err() == nil {
		log.Fatal(err)
	}
}
