package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voluntra.org/internal/auth"
	"voluntra.org/internal/events"
	"voluntra.org/internal/httpapi"
	"voluntra.org/internal/ids"
	"voluntra.org/internal/obs"
	"voluntra.org/internal/permission"
	"voluntra.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	obs.Init()

	verifier, err := buildVerifier()
	if err != nil {
		log.Fatalf("verifier: %v", err)
	}

	var (
		directory   auth.Directory
		permSource  permission.Source
		eventSvc    events.Service
		billing     httpapi.SubscriptionUpdater
		readyProbe  httpapi.ReadyProbe
		closeStores func()
	)

	if dsn := os.Getenv("VOLUNTRA_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		directory = store
		permSource = store
		eventSvc = store
		billing = store
		readyProbe = httpapi.ReadyProbe{DB: store.DB()}
		closeStores = func() { _ = store.Close() }
	} else {
		log.Println("VOLUNTRA_PG_DSN not set; using in-memory stores with demo fixtures")
		memDir, memEvents := demoFixtures()
		directory = memDir
		permSource = permission.NewMemorySource(permission.Builtins...)
		eventSvc = memEvents
		billing = memDir
		closeStores = func() {}
	}

	permStore, err := permission.NewStore(permSource)
	if err != nil {
		log.Fatalf("permission store: %v", err)
	}
	permCache, err := permission.NewCache(permStore, permission.WithSoftTTL(cacheTTL()))
	if err != nil {
		log.Fatalf("permission cache: %v", err)
	}

	pipeline, err := auth.NewPipeline(verifier, directory, permCache)
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}

	api, err := httpapi.New(httpapi.Config{
		Pipeline:      pipeline,
		Events:        eventSvc,
		Permissions:   permStore,
		Billing:       billing,
		ReadyProbe:    readyProbe,
		Version:       version,
		BillingSecret: os.Getenv("VOLUNTRA_BILLING_SECRET"),
	})
	if err != nil {
		log.Fatalf("httpapi: %v", err)
	}

	addr := os.Getenv("VOLUNTRA_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting voluntra-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	closeStores()
	log.Println("Stopped")
}

func buildVerifier() (*auth.Verifier, error) {
	var opts []auth.VerifierOption
	if secret := os.Getenv("VOLUNTRA_AUTH_SECRET"); secret != "" {
		opts = append(opts, auth.WithHS256Secret(secret))
	}
	if pemData := os.Getenv("VOLUNTRA_AUTH_PUBLIC_KEY"); pemData != "" {
		opts = append(opts, auth.WithRS256PublicKey(pemData))
	}
	if issuer := os.Getenv("VOLUNTRA_ISSUER"); issuer != "" {
		opts = append(opts, auth.WithExpectedIssuer(issuer))
	}
	return auth.NewVerifier(opts...)
}

func cacheTTL() time.Duration {
	raw := os.Getenv("VOLUNTRA_PERMISSION_CACHE_TTL")
	if raw == "" {
		return 5 * time.Minute
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("invalid VOLUNTRA_PERMISSION_CACHE_TTL %q; using default", raw)
		return 5 * time.Minute
	}
	return d
}

// demoFixtures seeds a trial organization with one admin profile so the
// service is explorable without a database.
func demoFixtures() (*auth.MemoryDirectory, *events.InMemory) {
	dir := auth.NewMemoryDirectory()
	now := time.Now().UTC()
	trialEnds := now.Add(14 * 24 * time.Hour)

	orgID := ids.New()
	dir.AddOrganization(auth.Organization{
		ID:                 orgID,
		Name:               "Demo Organization",
		SubscriptionStatus: auth.SubscriptionTrial,
		TrialEndsAt:        &trialEnds,
		CreatedAt:          now,
		UpdatedAt:          now,
	})
	dir.AddProfile(auth.Profile{
		ID:             ids.New(),
		SubjectID:      "demo-admin",
		OrganizationID: orgID,
		Role:           auth.RoleAdmin,
		IsActive:       true,
		DisplayName:    "Demo Admin",
		CreatedAt:      now,
		UpdatedAt:      now,
	})

	eventSvc := events.NewInMemory()
	dir.RegisterResource("event", func(ctx context.Context, id string) (string, error) {
		orgID, err := eventSvc.OwnerOrg(ctx, id)
		if err != nil {
			return "", auth.ErrNotFound
		}
		return orgID, nil
	})
	return dir, eventSvc
}
