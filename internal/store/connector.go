package store

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type ConnectorFunc func() (*gorm.DB, error)

// NewSQLiteConnector opens the durable alert database at path. Writes are
// serialised through a single connection.
func NewSQLiteConnector(path string, log zerolog.Logger) ConnectorFunc {
	return func() (*gorm.DB, error) {
		db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_journal_mode=WAL"), &gorm.Config{
			Logger: logger.New(
				&logadapter{logger: log.With().Str("component", "gorm").Logger()},
				logger.Config{
					SlowThreshold:             time.Second,
					LogLevel:                  logger.Warn,
					IgnoreRecordNotFoundError: true,
					Colorful:                  false,
				},
			),
		})
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", path, err)
		}

		sqldb, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqldb.SetMaxOpenConns(1)

		return db, nil
	}
}

// NewInMemoryConnector returns a connector for a throwaway database.
func NewInMemoryConnector() ConnectorFunc {
	return func() (*gorm.DB, error) {
		db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("open in-memory sqlite: %w", err)
		}

		sqldb, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqldb.SetMaxOpenConns(1)

		return db, nil
	}
}

// logadapter forwards gorm's Printf output to zerolog.
type logadapter struct {
	logger zerolog.Logger
}

func (a *logadapter) Printf(format string, args ...interface{}) {
	a.logger.Warn().Msg(fmt.Sprintf(format, args...))
}
