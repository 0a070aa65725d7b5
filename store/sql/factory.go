package sqlstore

import (
	"fmt"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/tavenor/credstate/core"
	"github.com/uptrace/bun"
)

// FactoryConfig carries the lease identity shared by every store the
// factory builds.
type FactoryConfig struct {
	Owner         string
	LeaseDuration time.Duration
	Now           func() time.Time
}

// RepositoryFactory builds both workflow stores over one bun handle and one
// lease engine so they share the same owner identity and clock.
type RepositoryFactory struct {
	db     *bun.DB
	config FactoryConfig
	leases *leaseEngine

	issuanceStore *IssuanceProcessStore
	requestStore  *HolderCredentialRequestStore
}

func NewRepositoryFactory(config FactoryConfig) *RepositoryFactory {
	return &RepositoryFactory{config: config}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, config FactoryConfig) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(config)
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, config FactoryConfig) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(config)
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.issuanceStore != nil && f.requestStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) IssuanceProcessStore() core.IssuanceProcessStore {
	if f == nil {
		return nil
	}
	return f.issuanceStore
}

func (f *RepositoryFactory) HolderCredentialRequestStore() core.HolderCredentialRequestStore {
	if f == nil {
		return nil
	}
	return f.requestStore
}

func (f *RepositoryFactory) initStores() error {
	if f.leases == nil {
		owner := f.config.Owner
		duration := f.config.LeaseDuration
		if duration <= 0 {
			duration = core.DefaultConfig().LeaseDuration
		}
		leases, err := newLeaseEngine(owner, duration, f.config.Now)
		if err != nil {
			return err
		}
		f.leases = leases
	}

	issuanceStore, err := NewIssuanceProcessStore(f.db, f.leases, f.config.Now)
	if err != nil {
		return err
	}
	f.issuanceStore = issuanceStore

	requestStore, err := NewHolderCredentialRequestStore(f.db, f.leases, f.config.Now)
	if err != nil {
		return err
	}
	f.requestStore = requestStore

	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
