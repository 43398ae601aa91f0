// eventgen seeds a running GSOCC pipeline with synthetic security events.
// Useful for exercising the velocity and risk escalation paths locally.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steelmarket-systems/gsocc/internal/models"
)

var (
	targetURL string
	count     int
	interval  time.Duration
	eventType string
	severity  string
	sourceIP  string
	burst     bool
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
)

func main() {
	root := &cobra.Command{
		Use:   "eventgen",
		Short: "Generate synthetic security events against a GSOCC pipeline",
		RunE:  run,
	}

	root.Flags().StringVar(&targetURL, "url", "http://localhost:8090", "base URL of the pipeline service")
	root.Flags().IntVar(&count, "count", 10, "number of events to send")
	root.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "delay between events")
	root.Flags().StringVar(&eventType, "type", "", "fixed event type (random when empty)")
	root.Flags().StringVar(&severity, "severity", "", "fixed severity (random when empty)")
	root.Flags().StringVar(&sourceIP, "source-ip", "", "fixed source IP (random when empty)")
	root.Flags().BoolVar(&burst, "burst", false, "send all events from one IP with no delay to trip the velocity rule")

	if err := root.Execute(); err != nil {
		errorColor.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}

	burstIP := sourceIP
	if burst && burstIP == "" {
		burstIP = gofakeit.IPv4Address()
	}

	sent := 0
	for i := 0; i < count; i++ {
		req := generateEvent(burstIP)

		body, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}

		resp, err := client.Post(targetURL+"/api/v1/events", "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("send event: %w", err)
		}
		resp.Body.Close()

		if resp.StatusCode >= 400 {
			return fmt.Errorf("pipeline rejected event: %s", resp.Status)
		}
		sent++

		if !burst && interval > 0 && i < count-1 {
			time.Sleep(interval)
		}
	}

	successColor.Printf("✓ sent %d events to %s\n", sent, targetURL)
	return nil
}

var eventTypes = []models.EventType{
	models.EventLoginFailed,
	models.EventRateLimitExceeded,
	models.EventSQLInjectionAttempt,
	models.EventXSSAttempt,
	models.EventUnauthorizedAccess,
	models.EventAnomalousBehavior,
	models.EventSystemError,
}

var severities = []models.Severity{
	models.SeverityLow,
	models.SeverityMedium,
	models.SeverityHigh,
	models.SeverityCritical,
}

func generateEvent(fixedIP string) *models.IngestRequest {
	et := models.EventType(eventType)
	if eventType == "" {
		et = eventTypes[rand.Intn(len(eventTypes))]
	}

	sev := models.Severity(severity)
	if severity == "" {
		sev = severities[rand.Intn(len(severities))]
	}

	ip := fixedIP
	if ip == "" {
		ip = gofakeit.IPv4Address()
	}

	return &models.IngestRequest{
		EventType: et,
		Severity:  sev,
		SourceIP:  ip,
		UserID:    gofakeit.UUID(),
		SessionID: gofakeit.UUID(),
		Endpoint:  "/" + gofakeit.Word(),
		Payload: map[string]interface{}{
			"user_agent": gofakeit.UserAgent(),
			"country":    gofakeit.CountryAbr(),
		},
	}
}
