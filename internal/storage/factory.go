package storage

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trawler/internal/common"
	"github.com/ternarybob/trawler/internal/interfaces"
	"github.com/ternarybob/trawler/internal/storage/badger"
	"github.com/ternarybob/trawler/internal/storage/sqlite"
)

// Manager implements the StorageManager interface across both backing
// stores. SQLite holds the relational crawl state (jobs, queue, exclusion
// rules, scored products); Badger holds the append-heavy side (job logs,
// crawl events).
type Manager struct {
	sqliteDB  *sqlite.SQLiteDB
	badgerDB  *badger.BadgerDB
	job       interfaces.JobStorage
	queue     interfaces.QueueStorage
	exclusion interfaces.ExclusionStorage
	scored    interfaces.ScoredProductStorage
	jobLog    interfaces.JobLogStorage
	event     interfaces.EventStorage
	logger    arbor.ILogger
}

// NewStorageManager opens both databases and wires up all stores
func NewStorageManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	sqliteDB, err := sqlite.NewSQLiteDB(logger, &config.Storage.SQLite)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite storage: %w", err)
	}

	badgerDB, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		sqliteDB.Close()
		return nil, fmt.Errorf("failed to open badger storage: %w", err)
	}

	manager := &Manager{
		sqliteDB:  sqliteDB,
		badgerDB:  badgerDB,
		job:       sqlite.NewJobStorage(sqliteDB, logger),
		queue:     sqlite.NewQueueStorage(sqliteDB, logger),
		exclusion: sqlite.NewExclusionStorage(sqliteDB, logger),
		scored:    sqlite.NewScoredProductStorage(sqliteDB, logger),
		jobLog:    badger.NewJobLogStorage(badgerDB, logger),
		event:     badger.NewEventStorage(badgerDB, logger),
		logger:    logger,
	}

	logger.Info().
		Str("sqlite", config.Storage.SQLite.Path).
		Str("badger", config.Storage.Badger.Path).
		Msg("Storage manager initialized")

	return manager, nil
}

// JobStorage returns the crawl job storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// QueueStorage returns the crawl queue storage interface
func (m *Manager) QueueStorage() interfaces.QueueStorage {
	return m.queue
}

// ExclusionStorage returns the exclusion rule storage interface
func (m *Manager) ExclusionStorage() interfaces.ExclusionStorage {
	return m.exclusion
}

// ScoredProductStorage returns the scored product storage interface
func (m *Manager) ScoredProductStorage() interfaces.ScoredProductStorage {
	return m.scored
}

// JobLogStorage returns the job log storage interface
func (m *Manager) JobLogStorage() interfaces.JobLogStorage {
	return m.jobLog
}

// EventStorage returns the crawl event storage interface
func (m *Manager) EventStorage() interfaces.EventStorage {
	return m.event
}

// Close closes both database connections
func (m *Manager) Close() error {
	var firstErr error
	if m.badgerDB != nil {
		if err := m.badgerDB.Close(); err != nil {
			firstErr = err
		}
	}
	if m.sqliteDB != nil {
		if err := m.sqliteDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
