// Package service wires the resolution core for the binaries.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/faro-watch/faro/backend/internal/metrics"
	"github.com/faro-watch/faro/backend/pkg/curation"
	"github.com/faro-watch/faro/backend/pkg/graph"
	"github.com/faro-watch/faro/backend/pkg/leaselock"
	"github.com/faro-watch/faro/backend/pkg/logger"
	"github.com/faro-watch/faro/backend/pkg/match"
	"github.com/faro-watch/faro/backend/pkg/pipeline"
	"github.com/faro-watch/faro/backend/pkg/registry"
	"github.com/faro-watch/faro/backend/pkg/score"
	"github.com/faro-watch/faro/backend/pkg/store"
)

type Config struct {
	Store   store.Store
	Locker  leaselock.Locker
	Metrics *metrics.Registry
	// Parallel bounds the articles of a batch processed at once.
	Parallel int
}

type Service struct {
	Store    store.Store
	Locker   leaselock.Locker
	Matcher  *match.Holder
	Curation *curation.Workflow
	Pipeline *pipeline.Pipeline
	Scorer   *score.Scorer
}

// New builds the core over the stored registry snapshot.
func New(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.Locker == nil {
		cfg.Locker = leaselock.NewLocal()
	}
	s := &Service{
		Store:   cfg.Store,
		Locker:  cfg.Locker,
		Matcher: match.NewHolder(nil),
		Scorer:  score.New(),
	}
	if err := s.ReloadRegistry(ctx); err != nil {
		return nil, err
	}

	admitter := graph.NewAdmitter(cfg.Store, graph.NewUpserter(cfg.Store))

	curationCfg := curation.Config{
		Queue:    cfg.Store,
		Mentions: cfg.Store,
		Articles: cfg.Store,
		Matcher:  s.Matcher,
		Admitter: admitter,
	}
	pipelineCfg := pipeline.Config{
		Store:    cfg.Store,
		Locker:   cfg.Locker,
		Parallel: cfg.Parallel,
	}
	if cfg.Metrics != nil {
		curationCfg.Observer = cfg.Metrics
		pipelineCfg.Observer = cfg.Metrics
	}
	s.Curation = curation.New(curationCfg)
	pipelineCfg.Curation = s.Curation
	s.Pipeline = pipeline.New(pipelineCfg)
	return s, nil
}

// ReloadRegistry swaps in the identities currently stored.
func (s *Service) ReloadRegistry(ctx context.Context) error {
	identities, err := s.Store.ListIdentities(ctx)
	if err != nil {
		return fmt.Errorf("failed to list identities: %w", err)
	}
	reg, err := registry.New(identities)
	if err != nil {
		return err
	}
	s.Matcher.Replace(reg)
	logger.Info("[Service] Registry loaded", "identities", reg.Len())
	return nil
}

// ImportRegistry replaces the stored registry with the snapshot at path and
// starts matching against it. The import holds the registry-import lease and
// waits for the pipeline-batch lease, so it never overlaps a batch run.
// Runs in flight keep the snapshot they started with.
func (s *Service) ImportRegistry(ctx context.Context, path string) (int, error) {
	reg, err := registry.Load(path)
	if err != nil {
		return 0, err
	}
	err = s.Locker.WithLease(ctx, leaselock.KeyRegistryImport, leaselock.Options{TTL: time.Minute}, func(ctx context.Context) error {
		return s.Locker.WithLease(ctx, leaselock.KeyPipelineBatch, leaselock.Options{TTL: time.Minute, Wait: true}, func(ctx context.Context) error {
			return s.Store.ReplaceIdentities(ctx, reg.Identities())
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to import registry %s: %w", path, err)
	}
	s.Matcher.Replace(reg)
	logger.Info("[Service] Registry imported", "path", path, "identities", reg.Len())
	return reg.Len(), nil
}

// RefreshRegistry reloads the stored registry every interval until ctx is
// done, picking up imports made by other processes.
func (s *Service) RefreshRegistry(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ReloadRegistry(ctx); err != nil {
				logger.Error("[Service] Failed to reload registry", "err", err)
			}
		}
	}
}
