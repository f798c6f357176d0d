package runtime

import (
	"context"
	"fmt"

	"github.com/tjfontaine/polyglot-intent-router/internal/audit"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
	"github.com/tjfontaine/polyglot-intent-router/internal/pkg/config"
	"github.com/tjfontaine/polyglot-intent-router/internal/retrieval"
	"github.com/tjfontaine/polyglot-intent-router/internal/storage/memory"
	"github.com/tjfontaine/polyglot-intent-router/internal/storage/sqlite"
)

// OpenSessionStore opens the backend named by storage.type.
func OpenSessionStore(cfg config.StorageConfig) (ports.SessionStore, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		store, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, domain.ErrConfiguration("open sqlite store").Wrap(err)
		}
		return store, nil
	default:
		return nil, domain.ErrConfiguration(fmt.Sprintf("unknown storage.type %q", cfg.Type))
	}
}

// OpenAuditSink opens the sink named by audit.type. The sqlite sink shares
// the session store's database, so store must be a *sqlite.Store then.
func OpenAuditSink(cfg config.AuditConfig, store ports.SessionStore) (ports.AuditSink, error) {
	switch cfg.Type {
	case "memory":
		return memory.NewAuditSink(), nil
	case "file":
		sink, err := audit.OpenFile(cfg.Path)
		if err != nil {
			return nil, domain.ErrConfiguration("open audit file").Wrap(err)
		}
		return sink, nil
	case "sqlite":
		s, ok := store.(*sqlite.Store)
		if !ok {
			return nil, domain.ErrConfiguration("audit.type sqlite requires the sqlite session store")
		}
		return s, nil
	default:
		return nil, domain.ErrConfiguration(fmt.Sprintf("unknown audit.type %q", cfg.Type))
	}
}

// OpenRetrievalIndex builds the index named by retrieval.type, wrapped in a
// cache when cache_size is positive. It returns nil for "none".
func OpenRetrievalIndex(cfg config.RetrievalConfig) (ports.RetrievalIndex, error) {
	var index ports.RetrievalIndex
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "http":
		index = retrieval.NewClient(cfg.BaseURL, retrieval.WithAPIKey(cfg.APIKey))
	case "catalog":
		c, err := retrieval.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return nil, err
		}
		index = c
	default:
		return nil, domain.ErrConfiguration(fmt.Sprintf("unknown retrieval.type %q", cfg.Type))
	}
	if cfg.CacheSize > 0 {
		index = retrieval.NewCached(index, cfg.CacheSize, cfg.CacheTTL, retrieval.WithFetchTimeout(cfg.Timeout))
	}
	return index, nil
}

// verifyAuditTail checks the newest event still hashes to what it claims
// before the logger resumes the chain from it.
func verifyAuditTail(ctx context.Context, sink ports.AuditSink) error {
	last, err := sink.Last(ctx)
	if err != nil || last == nil {
		return err
	}
	hash, err := audit.Hash(last)
	if err != nil {
		return err
	}
	if hash != last.Hash {
		return domain.ErrConfiguration(fmt.Sprintf("audit log tail at seq %d does not match its hash", last.Seq))
	}
	return nil
}
