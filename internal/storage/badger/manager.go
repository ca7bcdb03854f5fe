package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/greywolfdl/mangadex-wui/internal/common"
	"github.com/greywolfdl/mangadex-wui/internal/interfaces"
)

// Manager groups the badger-backed storages behind one lifecycle
type Manager struct {
	db     *BadgerDB
	tasks  interfaces.TaskStorage
	series interfaces.SeriesStorage
}

// NewManager opens the database and constructs all storages
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:     db,
		tasks:  NewTaskStorage(db, logger),
		series: NewSeriesStorage(db, logger),
	}, nil
}

// DB returns the underlying connection, used by the queue manager
func (m *Manager) DB() *BadgerDB {
	return m.db
}

func (m *Manager) TaskStorage() interfaces.TaskStorage {
	return m.tasks
}

func (m *Manager) SeriesStorage() interfaces.SeriesStorage {
	return m.series
}

func (m *Manager) Close() error {
	return m.db.Close()
}
