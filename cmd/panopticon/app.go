package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/jonathan/panopticon/internal/cache"
	"github.com/jonathan/panopticon/internal/classify"
	"github.com/jonathan/panopticon/internal/config"
	"github.com/jonathan/panopticon/internal/crm"
	"github.com/jonathan/panopticon/internal/lead"
	"github.com/jonathan/panopticon/internal/syncer"
)

// app holds the wired service graph shared by the subcommands.
type app struct {
	cfg          *config.Config
	store        *cache.Store
	client       *crm.Client
	orchestrator *syncer.Orchestrator
}

// buildApp loads configuration and wires the full service graph. The caller
// owns closing the returned app.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	store, err := cache.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}

	syncCtx := crm.NewSyncContext()
	tokens := crm.NewTokenManager(cfg.CRMTokenURL, crm.Credentials{
		ClientID:     cfg.CRMClientID,
		ClientSecret: cfg.CRMClientSecret,
		RefreshToken: cfg.CRMRefreshToken,
	})
	client := crm.NewClient(cfg.CRMBaseURL, tokens, syncCtx)

	batch := syncer.NewBatchFetcher(client, tokens, store, store, cfg.WorkerCount)
	engine := classify.NewEngine(classify.Thresholds{
		StaleDays:        cfg.StaleDays,
		LegacyStaleDays:  cfg.LegacyStaleDays,
		LegacyAtRiskDays: cfg.LegacyAtRiskDays,
		NameMatch:        cfg.NameMatch,
		StrongNameMatch:  cfg.StrongNameMatch,
	})

	directory, err := loadDirectory()
	if err != nil {
		store.Close()
		return nil, err
	}

	orchestrator := syncer.NewOrchestrator(client, store, batch, engine, directory, syncCtx)

	return &app{
		cfg:          cfg,
		store:        store,
		client:       client,
		orchestrator: orchestrator,
	}, nil
}

// Close releases the app's resources.
func (a *app) Close() {
	a.store.Close()
}

// loadDirectory reads the optional locator contact table. LOCATOR_CONTACTS
// names a JSON file of [{"name","phone","email"}]; unset means no contact
// links on classified leads.
func loadDirectory() (lead.Directory, error) {
	path := os.Getenv("LOCATOR_CONTACTS")
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read LOCATOR_CONTACTS file: %w", err)
	}
	var contacts []lead.Contact
	if err := json.Unmarshal(raw, &contacts); err != nil {
		return nil, fmt.Errorf("failed to parse LOCATOR_CONTACTS file: %w", err)
	}
	log.Printf("[app] loaded %d locator contacts", len(contacts))
	return lead.NewStaticDirectory(contacts), nil
}
