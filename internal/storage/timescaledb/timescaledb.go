// Package timescaledb stores minute snapshots in a TimescaleDB hypertable.
package timescaledb

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/stoffej/water-rrd-m.nu/internal/database"
	"github.com/stoffej/water-rrd-m.nu/internal/log"
	"github.com/stoffej/water-rrd-m.nu/internal/storage"
	"github.com/stoffej/water-rrd-m.nu/internal/types"
)

const engineName = "timescaledb"

var errNoConnection = errors.New("timescaledb: no database connection")

// Storage holds the configuration for a TimescaleDB storage backend
type Storage struct {
	TimescaleDBConn *gorm.DB
}

type schemaStep struct {
	desc     string
	sql      string
	optional bool
}

var schema = []schemaStep{
	{desc: "database table", sql: createTableSQL},
	{desc: "TimescaleDB extension", sql: createExtensionSQL},
	{desc: "hypertable", sql: createHypertableSQL},
	{desc: "indexes", sql: createIndexesSQL},
	{desc: "1h view", sql: createHourlyViewSQL, optional: true},
	{desc: "1h aggregation policy", sql: addHourlyAggregationPolicySQL, optional: true},
	{desc: "retention policy", sql: addRetentionPolicySQL, optional: true},
}

// New connects to TimescaleDB and creates the snapshot schema.
func New(ctx context.Context, connectionString string) (*Storage, error) {
	if connectionString == "" {
		return nil, errors.New("timescaledb: connection string is required")
	}

	db, err := database.CreateConnection(ctx, connectionString)
	if err != nil {
		return nil, err
	}

	for _, step := range schema {
		log.Infof("creating %s...", step.desc)
		if err := db.WithContext(ctx).Exec(step.sql).Error; err != nil {
			if step.optional {
				log.Warnf("could not create %s, continuing without it: %v", step.desc, err)
				continue
			}
			database.Close(db)
			return nil, fmt.Errorf("could not create %s: %w", step.desc, err)
		}
	}

	return &Storage{TimescaleDBConn: db}, nil
}

func (t *Storage) Name() string {
	return engineName
}

// StartStorageEngine creates a goroutine loop to receive snapshots and send
// them off to TimescaleDB
func (t *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- types.Snapshot {
	log.Info("starting TimescaleDB storage engine...")
	return storage.StartProcessor(ctx, wg, engineName, t.StoreSnapshot)
}

// StoreSnapshot inserts one snapshot row.
func (t *Storage) StoreSnapshot(ctx context.Context, s types.Snapshot) error {
	if err := t.TimescaleDBConn.WithContext(ctx).Create(&s).Error; err != nil {
		return fmt.Errorf("could not store snapshot: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (t *Storage) Close() error {
	database.Close(t.TimescaleDBConn)
	return nil
}
