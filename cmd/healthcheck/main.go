// Package main is a minimal HTTP health check binary for use in distroless
// containers. It exits 0 when the subscriber /health endpoint returns HTTP
// 200, and 1 otherwise. Compile with CGO_ENABLED=0 for a fully static binary.
//
// The target defaults to http://localhost:8080/health. SUBSCRIBER_HEALTHCHECK_URL
// overrides it; otherwise SUBSCRIBER_SERVER_PORT or PORT changes the port.
package main

import (
	"net/http"
	"os"
	"time"
)

func healthURL() string {
	if u := os.Getenv("SUBSCRIBER_HEALTHCHECK_URL"); u != "" {
		return u
	}
	port := "8080"
	if p := os.Getenv("SUBSCRIBER_SERVER_PORT"); p != "" {
		port = p
	} else if p := os.Getenv("PORT"); p != "" {
		port = p
	}
	return "http://localhost:" + port + "/health"
}

func main() {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(healthURL())
	if err != nil {
		os.Exit(1)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
