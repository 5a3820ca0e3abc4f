package meta

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/dpetrovs/finsync/internal/dbx"
	"github.com/dpetrovs/finsync/internal/logging"
	"github.com/google/uuid"
)

// Keys in the meta table.
const (
	keyWatermark       = "return_time"
	keyLastNetworkTime = "last_network_time"
	keyDeviceID        = "device_id"
	keyAPIKey          = "api_key"
	keyCacheEpoch      = "cache_epoch"
)

// Store layers typed accessors over a raw Repository. It also satisfies the
// reconciler's WatermarkStore and the transport's NetworkClock.
type Store struct {
	repo Repository
	log  logging.Logger
}

func NewStore(repo Repository, log logging.Logger) *Store {
	return &Store{repo: repo, log: log}
}

func (s *Store) getInt64(ctx context.Context, key string) (int64, error) {
	value, err := s.repo.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if len(value) == 0 {
		return 0, nil
	}
	n, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		// An unreadable value behaves like an absent one.
		return 0, nil
	}
	return n, nil
}

func (s *Store) setInt64(ctx context.Context, key string, n int64) error {
	return s.repo.Set(ctx, key, []byte(strconv.FormatInt(n, 10)))
}

// Watermark returns the last consumed delta cursor, zero when none is stored.
func (s *Store) Watermark(ctx context.Context) (int64, error) {
	return s.getInt64(ctx, keyWatermark)
}

func (s *Store) SetWatermark(ctx context.Context, t int64) error {
	return s.setInt64(ctx, keyWatermark, t)
}

// LastNetworkTime returns the time of the last successful round trip, zero
// time when never recorded.
func (s *Store) LastNetworkTime(ctx context.Context) (time.Time, error) {
	ms, err := s.getInt64(ctx, keyLastNetworkTime)
	if err != nil || ms == 0 {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

// TouchNetworkTime implements transport.NetworkClock. Persistence failures
// are logged and not propagated: losing the hint only costs an extra
// cold-start sync.
func (s *Store) TouchNetworkTime(t time.Time) {
	ctx := context.Background()
	if err := s.setInt64(ctx, keyLastNetworkTime, t.UnixMilli()); err != nil {
		s.log.Debug(ctx, "persisting network time failed", "err", err)
	}
}

// DeviceID returns the stable device identifier, generating and persisting
// one on first use.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	value, err := s.repo.Get(ctx, keyDeviceID)
	if err != nil {
		return "", err
	}
	if len(value) > 0 {
		return string(value), nil
	}
	id := uuid.NewString()
	if err := s.repo.Set(ctx, keyDeviceID, []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) APIKey(ctx context.Context) (string, error) {
	value, err := s.repo.Get(ctx, keyAPIKey)
	return string(value), err
}

func (s *Store) SetAPIKey(ctx context.Context, key string) error {
	return s.repo.Set(ctx, keyAPIKey, []byte(key))
}

// CacheEpoch returns the epoch the on-disk cache was written under, zero
// when no cache has been written yet.
func (s *Store) CacheEpoch(ctx context.Context) (int64, error) {
	return s.getInt64(ctx, keyCacheEpoch)
}

func (s *Store) SetCacheEpoch(ctx context.Context, epoch int64) error {
	return s.setInt64(ctx, keyCacheEpoch, epoch)
}

// ReplaceAPIKey stores a new API key and resets the sync cursors in one
// transaction, so a key for a different account can never resume from
// another account's watermark or cache.
func ReplaceAPIKey(ctx context.Context, db *sql.DB, apiKey string, log logging.Logger) error {
	return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		s := NewStore(NewSQLiteRepository(tx), log)
		if err := s.SetAPIKey(ctx, apiKey); err != nil {
			return err
		}
		if err := s.SetWatermark(ctx, 0); err != nil {
			return err
		}
		return s.SetCacheEpoch(ctx, 0)
	})
}
