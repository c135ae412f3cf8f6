// Command backfill replays historical telemetry through the direct ingest
// endpoint. Input is NDJSON, one message per line, in the same envelope the
// endpoint accepts:
//
//	{"timestamp":"2026-08-30T12:00:00Z","deviceId":"wx-17","payload":{"Temperature":21.5}}
//
// Lines rejected by the server are logged and skipped; the replay continues.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"
)

type config struct {
	baseURL  string
	file     string
	deviceID string
	rate     int
	timeout  time.Duration
	dryRun   bool
}

func main() {
	cfg := parseConfig()
	if cfg.baseURL == "" {
		log.Fatal("base-url is required")
	}

	in := os.Stdin
	if cfg.file != "" && cfg.file != "-" {
		f, err := os.Open(cfg.file)
		if err != nil {
			log.Fatalf("open input: %v", err)
		}
		defer f.Close()
		in = f
	}

	client := &http.Client{Timeout: cfg.timeout}
	endpoint := cfg.baseURL + "/api/v1/ingest"

	var interval time.Duration
	if cfg.rate > 0 {
		interval = time.Second / time.Duration(cfg.rate)
	}

	sent, accepted, failed := 0, 0, 0
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		body, err := prepareMessage(raw, cfg.deviceID)
		if err != nil {
			log.Printf("line %d: %v, skipped", line, err)
			failed++
			continue
		}

		if cfg.dryRun {
			sent++
			continue
		}

		count, err := post(client, endpoint, body)
		sent++
		if err != nil {
			log.Printf("line %d: %v", line, err)
			failed++
		} else {
			accepted += count
		}

		if interval > 0 {
			time.Sleep(interval)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("read input: %v", err)
	}

	log.Printf("backfill done: sent=%d accepted=%d failed=%d dry-run=%v", sent, accepted, failed, cfg.dryRun)
	if failed > 0 {
		os.Exit(1)
	}
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.baseURL, "base-url", envOrDefault("BASE_URL", "http://localhost:8080"), "ingest API base URL")
	flag.StringVar(&cfg.file, "file", "-", "NDJSON input file, - for stdin")
	flag.StringVar(&cfg.deviceID, "device-id", "", "override deviceId on every message")
	flag.IntVar(&cfg.rate, "rate", envOrInt("RATE", 0), "messages per second, 0 for unthrottled")
	flag.DurationVar(&cfg.timeout, "timeout", 30*time.Second, "per-request timeout")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "validate input without sending")
	flag.Parse()
	return cfg
}

// prepareMessage validates one NDJSON line and applies the device override.
func prepareMessage(raw []byte, deviceID string) ([]byte, error) {
	var msg map[string]any
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if deviceID != "" {
		msg["deviceId"] = deviceID
	}
	if msg["deviceId"] == "" || msg["deviceId"] == nil {
		return nil, fmt.Errorf("missing deviceId")
	}
	return json.Marshal(msg)
}

func post(client *http.Client, endpoint string, body []byte) (int, error) {
	resp, err := client.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("server returned %d: %s", resp.StatusCode, bytes.TrimSpace(payload))
	}

	var result struct {
		Accepted []json.RawMessage `json:"accepted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return len(result.Accepted), nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
