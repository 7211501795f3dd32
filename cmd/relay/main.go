package main

import (
	"log"
	"net/http"
	"os"

	"studymesh/internal/infrastructure/signal"
	"studymesh/pkg/logger"
)

func main() {
	address := os.Getenv("STUDYMESH_RELAY_ADDRESS")
	if address == "" {
		address = ":8081"
	}
	level := os.Getenv("STUDYMESH_LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	slog := logger.NewSugared(level, "json")
	relay := signal.NewRelay(slog)

	http.HandleFunc("/ws", relay.HandleWebSocket)
	http.HandleFunc("/health", relay.HealthCheck)

	slog.Infow("starting signaling relay", "address", address)
	log.Fatal(http.ListenAndServe(address, nil))
}
