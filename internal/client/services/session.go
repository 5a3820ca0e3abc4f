package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dpetrovs/finsync/internal/client/cache"
	"github.com/dpetrovs/finsync/internal/client/repositories/meta"
	clientsync "github.com/dpetrovs/finsync/internal/client/sync"
	"github.com/dpetrovs/finsync/internal/client/transport"
	"github.com/dpetrovs/finsync/internal/common"
	"github.com/dpetrovs/finsync/internal/logging"
)

// SyncAllRequestType is the RPC request type of a full snapshot fetch.
const SyncAllRequestType = "sync_all"

// cacheSchemaEpoch is bumped whenever the on-disk snapshot format changes;
// a mismatch invalidates the cache and forces a full fetch.
const cacheSchemaEpoch = 1

// staleAfter is how long without a successful round trip before a cold
// start prefers a full fetch over resuming from the watermark.
const staleAfter = 7 * 24 * time.Hour

// SessionService drives the engine through its session boundaries.
type SessionService interface {
	// ColdStart restores collections from the cache and decides between
	// resuming from the stored watermark and fetching a full snapshot.
	// A connection failure leaves the engine in cache-backed offline state
	// and reports common.ErrConnection.
	ColdStart(ctx context.Context) error

	// FullFetch pulls a complete snapshot from watermark zero.
	FullFetch(ctx context.Context) error

	// SaveSnapshot persists every collection to the cache.
	SaveSnapshot(ctx context.Context) error

	// Subscribe starts the long-poll loop; Unsubscribe stops it.
	Subscribe(ctx context.Context) error
	Unsubscribe()

	// Close stops the subscription and saves a final snapshot.
	Close(ctx context.Context) error
}

type sessionService struct {
	engine *Engine
	rpc    transport.Caller
	cache  *cache.Store
	meta   *meta.Store
	log    logging.Logger
}

func NewSessionService(engine *Engine, rpc transport.Caller, cacheStore *cache.Store, metaStore *meta.Store, log logging.Logger) SessionService {
	return &sessionService{
		engine: engine,
		rpc:    rpc,
		cache:  cacheStore,
		meta:   metaStore,
		log:    log,
	}
}

func (s *sessionService) ColdStart(ctx context.Context) error {
	epoch, err := s.meta.CacheEpoch(ctx)
	if err != nil {
		return fmt.Errorf("reading cache epoch: %w", err)
	}

	if epoch != 0 && epoch != cacheSchemaEpoch {
		s.log.Info(ctx, "cache epoch mismatch, dropping cache", "stored", epoch, "want", cacheSchemaEpoch)
		if err := s.dropCache(ctx); err != nil {
			return err
		}
	} else {
		s.loadCache(ctx)
	}

	watermark, err := s.meta.Watermark(ctx)
	if err != nil {
		return fmt.Errorf("reading watermark: %w", err)
	}
	lastSeen, err := s.meta.LastNetworkTime(ctx)
	if err != nil {
		return fmt.Errorf("reading last network time: %w", err)
	}

	if watermark == 0 || lastSeen.IsZero() || time.Since(lastSeen) > staleAfter {
		if err := s.FullFetch(ctx); err != nil {
			if errors.Is(err, common.ErrConnection) {
				s.log.Warn(ctx, "server unreachable at cold start, working offline")
				return err
			}
			return err
		}
	}

	return nil
}

func (s *sessionService) FullFetch(ctx context.Context) error {
	deviceID, err := s.meta.DeviceID(ctx)
	if err != nil {
		return fmt.Errorf("reading device id: %w", err)
	}

	payload := struct {
		LastReturnTime int64  `json:"last_return_time"`
		DeviceID       string `json:"device_id"`
	}{LastReturnTime: 0, DeviceID: deviceID}

	raw, err := s.rpc.Call(ctx, SyncAllRequestType, payload)
	if err != nil {
		return fmt.Errorf("full fetch: %w", err)
	}

	batch, err := clientsync.ParseBatch(raw)
	if err != nil {
		return fmt.Errorf("full fetch: %w", err)
	}

	if err := s.engine.Reconciler.ApplyBatch(ctx, batch); err != nil {
		return fmt.Errorf("full fetch: %w", err)
	}
	s.log.Info(ctx, "full fetch applied", "return_time", batch.ReturnTime, "collections", len(batch.Sets))
	return nil
}

func (s *sessionService) SaveSnapshot(ctx context.Context) error {
	if err := s.engine.forEachCollection(func(c collectionIO) error {
		return c.save(s.cache)
	}); err != nil {
		return err
	}
	return s.meta.SetCacheEpoch(ctx, cacheSchemaEpoch)
}

func (s *sessionService) Subscribe(ctx context.Context) error {
	s.engine.Subscriber.Start(ctx)
	return nil
}

func (s *sessionService) Unsubscribe() {
	s.engine.Subscriber.Stop()
}

func (s *sessionService) Close(ctx context.Context) error {
	s.Unsubscribe()
	return s.SaveSnapshot(ctx)
}

func (s *sessionService) loadCache(ctx context.Context) {
	_ = s.engine.forEachCollection(func(c collectionIO) error {
		if err := c.load(s.cache); err != nil {
			if errors.Is(err, common.ErrNoCache) {
				return nil
			}
			s.log.Warn(ctx, "loading cache failed, starting empty", "collection", c.name(), "err", err)
		}
		return nil
	})
}

func (s *sessionService) dropCache(ctx context.Context) error {
	if err := s.engine.forEachCollection(func(c collectionIO) error {
		c.clear()
		return s.cache.Delete(c.name())
	}); err != nil {
		return err
	}
	if err := s.meta.SetWatermark(ctx, 0); err != nil {
		return err
	}
	return s.meta.SetCacheEpoch(ctx, 0)
}
