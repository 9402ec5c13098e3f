package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/timmy/legisync/internal/config"
	"github.com/timmy/legisync/internal/domain"
	"github.com/timmy/legisync/internal/exporter"
	"github.com/timmy/legisync/internal/repository"
	"github.com/timmy/legisync/internal/storage"
	"github.com/timmy/legisync/internal/store"
	"gorm.io/gorm"
)

// StoreResolver maps a destination to the store jobs write to.
type StoreResolver interface {
	Resolve(ctx context.Context, dest domain.Destination) (store.Store, error)
}

// Destinations builds stores from configuration on first use and reuses them.
type Destinations struct {
	cfg *config.Config
	db  *gorm.DB // main database, used by the remote destination when driver is "database"

	mu     sync.Mutex
	stores map[domain.Destination]store.Store
}

// NewDestinations creates a resolver. db may be nil when the remote
// destination uses object storage.
func NewDestinations(cfg *config.Config, db *gorm.DB) *Destinations {
	return &Destinations{cfg: cfg, db: db, stores: make(map[domain.Destination]store.Store)}
}

// Register installs a prebuilt store for dest.
func (d *Destinations) Register(dest domain.Destination, s store.Store) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stores[dest] = s
}

func (d *Destinations) Resolve(ctx context.Context, dest domain.Destination) (store.Store, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.stores[dest]; ok {
		return s, nil
	}

	committer, err := d.build(ctx, dest)
	if err != nil {
		return nil, fmt.Errorf("destination %s: %w", dest, err)
	}
	s := store.New(committer, d.cfg.Store.ChunkSize)
	d.stores[dest] = s
	return s, nil
}

func (d *Destinations) build(ctx context.Context, dest domain.Destination) (store.Committer, error) {
	switch dest {
	case domain.DestinationRemote:
		if d.cfg.Store.RemoteDriver == "s3" {
			sc := d.cfg.Storage
			objects, err := storage.New(ctx, &storage.Config{
				Type:         storage.Type(sc.Type),
				Endpoint:     sc.Endpoint,
				AccessKey:    sc.AccessKey,
				SecretKey:    sc.SecretKey,
				UseSSL:       sc.UseSSL,
				Bucket:       sc.Bucket,
				Region:       sc.Region,
				Prefix:       sc.Prefix,
				CreateBucket: sc.CreateBucket,
			})
			if err != nil {
				return nil, err
			}
			return store.NewObjectCommitter(objects), nil
		}
		if d.db == nil {
			return nil, fmt.Errorf("no database configured")
		}
		return store.NewSQLCommitter(repository.NewDocumentRepository(d.db), "remote"), nil

	case domain.DestinationEmulator:
		db, err := repository.OpenSQLite(d.cfg.Store.EmulatorPath)
		if err != nil {
			return nil, err
		}
		return store.NewSQLCommitter(repository.NewDocumentRepository(db), "emulator"), nil

	case domain.DestinationLocal:
		exp, err := exporter.New(d.cfg.Export.Dir)
		if err != nil {
			return nil, err
		}
		return store.NewFileCommitter(exp), nil

	default:
		return nil, fmt.Errorf("unknown destination")
	}
}
