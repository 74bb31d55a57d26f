package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"glamtrack/internal/channel"
	"glamtrack/internal/config"
	"glamtrack/internal/domain"
	"glamtrack/internal/position"
	"glamtrack/internal/session"
)

// main runs one tracking session against the relay with a simulated
// position stream. It is the reference harness for the client engine;
// mobile apps embed the same packages behind a device-backed provider.
func main() {
	orderID := flag.String("order", "", "order id to track (required)")
	customerID := flag.String("customer", "", "customer id on the order")
	professionalID := flag.String("professional", "", "professional id on the order")
	role := flag.String("role", string(domain.SubjectCustomer), "which party this process represents: CUSTOMER or PROFESSIONAL")
	token := flag.String("token", "", "access token for the relay")
	flag.Parse()

	if *orderID == "" {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.Validate(cfg.Tracking); err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	subject := domain.SubjectCustomer
	if *role == string(domain.SubjectProfessional) {
		subject = domain.SubjectProfessional
	}

	provider := &position.SimProvider{
		Granted: true,
		Fixes:   simRoute(subject),
		Cadence: 2 * time.Second,
	}

	client := channel.New(channel.Config{
		Endpoint: cfg.Tracking.Endpoint,
		Token: func() (string, bool) {
			return *token, *token != ""
		},
		HandshakeTimeout:     cfg.Tracking.HandshakeTimeout,
		MaxReconnectAttempts: cfg.Tracking.MaxReconnectAttempts,
	})

	sess := session.New(session.Config{
		Order: domain.OrderRef{
			OrderID:        *orderID,
			CustomerID:     *customerID,
			ProfessionalID: *professionalID,
		},
		Subject:         subject,
		ArrivalRadiusKm: cfg.Tracking.ArrivalRadiusKm,
		DefaultSpeedKmh: cfg.Tracking.DefaultSpeedKmh,
	}, session.Deps{
		OpenPositions: func(ctx context.Context) (session.PositionSource, error) {
			return position.Open(ctx, provider, position.Config{
				DesiredAccuracy:   position.AccuracyHigh,
				MinInterval:       cfg.Tracking.MinUpdateInterval,
				MinDistanceMeters: cfg.Tracking.MinDistanceMeters,
			})
		},
		Channel: client,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sess.Start(ctx); err != nil {
		log.Fatalf("failed to start tracking: %v", err)
	}
	log.Printf("tracking order %s as %s", *orderID, subject)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-quit:
			log.Println("stopping tracking...")
			sess.Stop()
			for range sess.Events() {
			}
			return

		case event, ok := <-sess.Events():
			if !ok {
				return
			}
			logEvent(event)
			if event.Type == domain.EventStateChanged && event.State.IsTerminal() {
				sess.Stop()
			}
		}
	}
}

// logEvent prints one tracking event in a compact single-line form.
func logEvent(event domain.TrackingEvent) {
	switch event.Type {
	case domain.EventStateChanged:
		if event.Reason != "" {
			log.Printf("state=%s reason=%s %s", event.State, event.Reason, event.Detail)
			return
		}
		log.Printf("state=%s %s", event.State, event.Detail)

	case domain.EventProximityUpdated:
		if event.Snapshot == nil {
			return
		}
		if event.Snapshot.HasETA {
			log.Printf("distance=%.3fkm eta=%dmin", event.Snapshot.DistanceKm, event.Snapshot.ETAMinutes)
			return
		}
		log.Printf("distance=%.3fkm", event.Snapshot.DistanceKm)

	case domain.EventProfessionalAssigned:
		log.Printf("professional assigned: %s", event.Detail)

	case domain.EventRemoteNotification:
		log.Printf("notice: %s", event.Detail)
	}
}

// simRoute returns a short scripted approach route. The professional
// walks toward the customer; the customer stays put.
func simRoute(subject domain.Subject) []domain.GeoPoint {
	if subject == domain.SubjectCustomer {
		return []domain.GeoPoint{
			{Latitude: 30.9010, Longitude: 75.8573},
		}
	}
	return []domain.GeoPoint{
		{Latitude: 30.9100, Longitude: 75.8600},
		{Latitude: 30.9070, Longitude: 75.8590},
		{Latitude: 30.9040, Longitude: 75.8582},
		{Latitude: 30.9020, Longitude: 75.8576},
		{Latitude: 30.90135, Longitude: 75.85745},
	}
}
