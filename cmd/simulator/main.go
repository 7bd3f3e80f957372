// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

// Package main is a synthetic traffic generator for development and
// load testing. It publishes sensor-shaped flow and alert events onto
// the bus at a configurable rate, in the same wire format the campus
// sensors emit, so a full pipeline can run without real taps.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/campuswatch/campuswatch/internal/ingest"
	"github.com/campuswatch/campuswatch/internal/logging"
	"github.com/campuswatch/campuswatch/internal/normalize"
)

var (
	protocols  = []string{"tcp", "udp", "icmp"}
	states     = []string{"ESTABLISHED", "CLOSED", "SYN_SENT", "FIN_WAIT"}
	signatures = []string{
		"ET SCAN Nmap Scripting Engine User-Agent Detected",
		"ET POLICY SSH session on non-standard port",
		"ET MALWARE Possible Cobalt Strike Beacon",
		"ET DOS Possible SYN Flood",
		"ET EXPLOIT Apache Log4j RCE Attempt",
	}
	categories = []string{"recon", "policy-violation", "malware", "dos", "exploit"}
)

func main() {
	var (
		url       = flag.String("url", "nats://127.0.0.1:4222", "NATS server URL")
		flowRate  = flag.Float64("flows", 50, "flow events per second")
		alertRate = flag.Float64("alerts", 0.5, "alert events per second")
		duration  = flag.Duration("duration", 0, "how long to run (0 = until interrupted)")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "PRNG seed")
	)
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console"})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	if err := ingest.EnsureStream(ctx, *url, ingest.DefaultStreamConfig()); err != nil {
		logging.Fatal().Err(err).Msg("Failed to provision event stream")
	}

	publisher, err := ingest.NewPublisher(ingest.DefaultPublisherConfig(*url), ingest.NewBusLogger())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create publisher")
	}
	defer publisher.Close()

	rng := rand.New(rand.NewSource(*seed))
	logging.Info().
		Float64("flows_per_sec", *flowRate).
		Float64("alerts_per_sec", *alertRate).
		Str("url", *url).
		Msg("Simulator started")

	done := make(chan struct{}, 2)
	go pump(ctx, done, publisher, normalize.TopicFlows, *flowRate, func() any { return randomFlow(rng) })
	go pump(ctx, done, publisher, normalize.TopicAlerts, *alertRate, func() any { return randomAlert(rng) })

	<-done
	<-done
	logging.Info().Msg("Simulator stopped")
}

// pump publishes events of one kind at the given rate until the context
// ends.
func pump(ctx context.Context, done chan<- struct{}, publisher message.Publisher, topic string, perSecond float64, generate func() any) {
	defer func() { done <- struct{}{} }()
	if perSecond <= 0 {
		<-ctx.Done()
		return
	}

	limiter := rate.NewLimiter(rate.Limit(perSecond), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		payload, err := json.Marshal(generate())
		if err != nil {
			logging.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
			continue
		}

		msg := message.NewMessage(watermill.NewUUID(), payload)
		if err := publisher.Publish(topic, msg); err != nil {
			logging.Error().Err(err).Str("topic", topic).Msg("Publish failed")
		}
	}
}

func randomIP(rng *rand.Rand, internal bool) string {
	if internal {
		return fmt.Sprintf("10.%d.%d.%d", rng.Intn(32), rng.Intn(256), 1+rng.Intn(254))
	}
	return fmt.Sprintf("%d.%d.%d.%d", 1+rng.Intn(222), rng.Intn(256), rng.Intn(256), 1+rng.Intn(254))
}

// randomFlow emits the Zeek-style field names the normalizer accepts.
func randomFlow(rng *rand.Rand) any {
	sent := rng.Intn(65536)
	received := rng.Intn(1 << 20)
	return map[string]any{
		"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		"id.orig_h":  randomIP(rng, true),
		"id.resp_h":  randomIP(rng, rng.Intn(4) == 0),
		"id.orig_p":  1024 + rng.Intn(64511),
		"id.resp_p":  []int{80, 443, 22, 53, 3389, 8080}[rng.Intn(6)],
		"proto":      protocols[rng.Intn(len(protocols))],
		"orig_bytes": sent,
		"resp_bytes": received,
		"orig_pkts":  1 + sent/1400,
		"resp_pkts":  1 + received/1400,
		"conn_state": states[rng.Intn(len(states))],
		"duration":   rng.Float64() * 120,
	}
}

// randomAlert emits Suricata EVE style fields with numeric severity.
func randomAlert(rng *rand.Rand) any {
	idx := rng.Intn(len(signatures))
	return map[string]any{
		"timestamp":    time.Now().UTC().Format(time.RFC3339Nano),
		"src_ip":       randomIP(rng, rng.Intn(2) == 0),
		"dest_ip":      randomIP(rng, true),
		"src_port":     1024 + rng.Intn(64511),
		"dest_port":    []int{80, 443, 22, 445}[rng.Intn(4)],
		"proto":        "tcp",
		"signature":    signatures[idx],
		"signature_id": 2000000 + idx,
		"category":     categories[idx],
		"severity":     1 + rng.Intn(4),
	}
}
