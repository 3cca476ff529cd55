package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"product-rec-agent/pkg/events"
	pktNats "product-rec-agent/pkg/nats"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

// diagnostics tails the agent diagnostics stream.
func main() {
	durable := flag.String("durable", "", "durable consumer name (empty: only new events)")
	eventType := flag.String("type", "", "filter by event type, e.g. CHILD_APP_ERROR")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	url := os.Getenv("NATS_URL")
	if url == "" {
		log.Fatal("Error: NATS_URL is not set")
	}

	sub, err := pktNats.NewSubscriber(url)
	if err != nil {
		log.Fatalf("Error: Failed to connect to NATS: %v", err)
	}
	defer sub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	subject := pktNats.SubjectPrefix + ".>"
	if *eventType != "" {
		subject = pktNats.Subject(*eventType)
	}

	if err := sub.Subscribe(ctx, subject, *durable, printEvent); err != nil {
		log.Fatalf("Error: %v", err)
	}

	color.Cyan("Listening on %s (Ctrl+C to stop)", subject)
	<-ctx.Done()
}

func printEvent(_ context.Context, e events.Event) error {
	stamp := e.Timestamp().Format("15:04:05")
	data := e.Payload()

	switch e.EventType() {
	case events.TypeToolAuthRequired:
		color.Yellow("%s %s %v", stamp, e.EventType(), data["tool_name"])
	default:
		color.Red("%s %s %v", stamp, e.EventType(), data["message"])
	}
	for k, v := range data {
		if k == "message" {
			continue
		}
		fmt.Printf("    %s: %v\n", k, v)
	}
	return nil
}
