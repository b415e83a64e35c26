// Package main provides a minimal health probe for container images that
// ship without wget or curl. It hits the attendance server's /health
// endpoint and exits non-zero on any failure, which is all a Docker
// HEALTHCHECK needs.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"
)

const (
	defaultPort    = "3002"
	requestTimeout = 5 * time.Second
)

func main() {
	os.Exit(run(os.Getenv("PORT")))
}

func run(port string) int {
	if port == "" {
		port = defaultPort
	}

	client := &http.Client{Timeout: requestTimeout}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%s/health", port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	// The handler answers 503 while the database is unreachable; anything
	// but 200 counts as unhealthy.
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check returned non-OK status: %d\n", resp.StatusCode)
		return 1
	}
	return 0
}
