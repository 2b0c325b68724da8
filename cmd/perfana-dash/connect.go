package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/perfana/perfana-dash/pkg/builder"
	"github.com/perfana/perfana-dash/pkg/config"
	"github.com/perfana/perfana-dash/pkg/ddp"
	"github.com/perfana/perfana-dash/pkg/logger"
	"github.com/perfana/perfana-dash/pkg/models"
	"github.com/perfana/perfana-dash/pkg/remote"
	"github.com/perfana/perfana-dash/pkg/store"
	"github.com/perfana/perfana-dash/pkg/testrun"
)

var errNotFound = errors.New("not found")

// perfana is one connection to the Perfana server and the documents it
// delivered
type perfana struct {
	store  *store.Store
	client *ddp.Client
	remote *remote.Client
	views  *builder.Builder
}

func connect(ctx context.Context, cfg *config.Config) (*perfana, error) {
	endpoint, err := cfg.DDPURL()
	if err != nil {
		return nil, err
	}

	st := store.New()
	client := ddp.NewClient(endpoint, http.Header{}, st)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}

	p := &perfana{
		store:  st,
		client: client,
		remote: remote.New(client, cfg.CallTimeout),
		views:  builder.NewBuilder(st, cfg, nil),
	}
	if cfg.Token != "" {
		login, err := p.remote.Login(ctx, cfg.Token)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("login failed: %w", err)
		}
		logger.Debugf("Logged in as %s", login.UserID)
	}
	return p, nil
}

func (p *perfana) Close() {
	if err := p.client.Close(); err != nil {
		logger.Debugf("close: %v", err)
	}
}

// subscribe opens each publication and waits for its initial data
func (p *perfana) subscribe(ctx context.Context, subs []builder.Subscription) error {
	for _, s := range subs {
		sub, err := p.client.Subscribe(s.Name, s.Params...)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", s.Name, err)
		}
		if err := sub.Wait(ctx); err != nil {
			return fmt.Errorf("subscription %s: %w", s.Name, err)
		}
	}
	return nil
}

// load fetches everything the views of a test run need
func (p *perfana) load(ctx context.Context, route testrun.RouteParams) (*models.TestRun, error) {
	if err := p.subscribe(ctx, builder.RouteSubscriptions(route)); err != nil {
		return nil, err
	}
	run, ok := testrun.Resolve(p.store, route)
	if !ok {
		return nil, fmt.Errorf("test run %s: %w", route.TestRunID, errNotFound)
	}
	if err := p.subscribe(ctx, builder.WorkloadSubscriptions(run)); err != nil {
		return nil, err
	}
	return run, nil
}
