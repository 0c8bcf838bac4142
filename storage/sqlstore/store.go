// Package sqlstore persists blocks, transactions and settled rounds in a SQL
// database through gorm. SQLite backs tests and single node setups;
// PostgreSQL is used in production.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/LiskArchive/lisk-sdk-sub000/core/types"
	"github.com/LiskArchive/lisk-sdk-sub000/observability/logging"
	"github.com/LiskArchive/lisk-sdk-sub000/storage"
)

var (
	// ErrNotFound is returned when a block or round is missing. It matches
	// storage.ErrNotFound.
	ErrNotFound = fmt.Errorf("sqlstore: %w", storage.ErrNotFound)
	// ErrUnsupportedDriver is returned by Open for unknown drivers.
	ErrUnsupportedDriver = errors.New("sqlstore: unsupported driver")
	// ErrNoCodec is returned when transactions are read or written before
	// a codec is bound.
	ErrNoCodec = errors.New("sqlstore: no transaction codec bound")
)

// Codec converts transactions to and from their persisted rows.
// *tx.Registry implements it.
type Codec interface {
	Row(tx *types.Transaction) *types.TxRow
	DBRead(row *types.TxRow) (*types.Transaction, error)
}

// Store is the SQL repository of the chain.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger

	mu    sync.RWMutex
	codec Codec
}

// Open connects to the database with the named driver ("sqlite" or
// "postgres") and migrates the schema. codec may be nil and bound later
// with BindCodec, since the transaction registry itself queries the store.
func Open(driver, dsn string, codec Codec, logger *slog.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s %s: %w", driver, logging.MaskDSN(dsn), err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("sql store connected", slog.String("driver", driver), slog.String("dsn", logging.MaskDSN(dsn)))
	return New(db, codec, logger)
}

// New wraps an open gorm handle and migrates the schema.
func New(db *gorm.DB, codec Codec, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: db is required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, codec: codec, logger: logger.With(slog.String("component", "sqlstore"))}, nil
}

// BindCodec sets the codec used to convert transaction rows.
func (s *Store) BindCodec(codec Codec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codec = codec
}

func (s *Store) rowCodec() (Codec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.codec == nil {
		return nil, ErrNoCodec
	}
	return s.codec, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveBlock stores the block header, its transactions and the round it
// settles, if any, in one database transaction.
func (s *Store) SaveBlock(ctx context.Context, block *types.Block, settled *types.Round) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if settled != nil {
			row := roundRow(settled)
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
				return fmt.Errorf("save round %d: %w", settled.Number, err)
			}
		}
		row := blockRow(block)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("save block %s: %w", block.ID, err)
		}
		if len(block.Transactions) == 0 {
			return nil
		}
		codec, err := s.rowCodec()
		if err != nil {
			return err
		}
		rows := make([]*types.TxRow, len(block.Transactions))
		for i, t := range block.Transactions {
			r := codec.Row(t)
			r.BlockID = block.ID
			r.Height = block.Height
			r.Position = i
			rows[i] = r
		}
		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("save block %s transactions: %w", block.ID, err)
		}
		return nil
	})
}

// DeleteBlock removes a block and its transactions. A non-zero round also
// removes that round's settlement record.
func (s *Store) DeleteBlock(ctx context.Context, id string, round uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if round > 0 {
			if err := tx.Where("round = ?", round).Delete(&RoundRow{}).Error; err != nil {
				return fmt.Errorf("delete round %d: %w", round, err)
			}
		}
		if err := tx.Where("b_id = ?", id).Delete(&types.TxRow{}).Error; err != nil {
			return fmt.Errorf("delete block %s transactions: %w", id, err)
		}
		res := tx.Where("b_id = ?", id).Delete(&BlockRow{})
		if res.Error != nil {
			return fmt.Errorf("delete block %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: block %s", ErrNotFound, id)
		}
		return nil
	})
}

// Height returns the height of the last stored block, 0 when empty.
func (s *Store) Height(ctx context.Context) (uint64, error) {
	var height sql.NullInt64
	if err := s.db.WithContext(ctx).Model(&BlockRow{}).Select("MAX(b_height)").Row().Scan(&height); err != nil {
		return 0, err
	}
	if !height.Valid {
		return 0, nil
	}
	return uint64(height.Int64), nil
}

// LastBlock returns the highest block with its transactions.
func (s *Store) LastBlock(ctx context.Context) (*types.Block, error) {
	var row BlockRow
	err := s.db.WithContext(ctx).Order("b_height DESC").Limit(1).Take(&row).Error
	return s.withTransactions(ctx, row, err)
}

// BlockByHeight returns the block at height with its transactions.
func (s *Store) BlockByHeight(ctx context.Context, height uint64) (*types.Block, error) {
	var row BlockRow
	err := s.db.WithContext(ctx).Where("b_height = ?", height).Take(&row).Error
	return s.withTransactions(ctx, row, err)
}

func (s *Store) withTransactions(ctx context.Context, row BlockRow, err error) (*types.Block, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	block, err := row.block()
	if err != nil {
		return nil, err
	}
	block.Transactions, err = s.TransactionsByBlock(ctx, block.ID)
	if err != nil {
		return nil, err
	}
	return block, nil
}

// BlocksByHeight returns the block headers with heights in [from, to] in
// ascending order. Transactions are not loaded.
func (s *Store) BlocksByHeight(ctx context.Context, from, to uint64) ([]*types.Block, error) {
	var rows []BlockRow
	err := s.db.WithContext(ctx).
		Where("b_height BETWEEN ? AND ?", from, to).
		Order("b_height ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*types.Block, 0, len(rows))
	for _, row := range rows {
		b, err := row.block()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// TransactionsByBlock returns the transactions of a block in insertion order.
func (s *Store) TransactionsByBlock(ctx context.Context, blockID string) ([]*types.Transaction, error) {
	var rows []types.TxRow
	if err := s.db.WithContext(ctx).Where("b_id = ?", blockID).Order("t_position ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return s.decode(rows)
}

// Transaction returns a confirmed transaction by id.
func (s *Store) Transaction(ctx context.Context, id string) (*types.Transaction, error) {
	var row types.TxRow
	err := s.db.WithContext(ctx).Where("t_id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.read(&row)
}

func (s *Store) read(row *types.TxRow) (*types.Transaction, error) {
	codec, err := s.rowCodec()
	if err != nil {
		return nil, err
	}
	return codec.DBRead(row)
}

func (s *Store) decode(rows []types.TxRow) ([]*types.Transaction, error) {
	out := make([]*types.Transaction, 0, len(rows))
	for i := range rows {
		t, err := s.read(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) exists(query string, args ...any) (bool, error) {
	var count int64
	if err := s.db.Model(&types.TxRow{}).Where(query, args...).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// TransactionExists reports whether the id is confirmed.
func (s *Store) TransactionExists(id string) (bool, error) {
	return s.exists("t_id = ?", id)
}

// Dapp returns the registration transaction of an application or nil.
func (s *Store) Dapp(id string) (*types.Transaction, error) {
	var row types.TxRow
	err := s.db.Where("t_id = ? AND t_type = ?", id, uint8(types.TxTypeDapp)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.read(&row)
}

// DappNameExists reports whether an application name is registered.
func (s *Store) DappNameExists(name string) (bool, error) {
	return s.exists("t_type = ? AND dapp_name = ?", uint8(types.TxTypeDapp), name)
}

// DappLinkExists reports whether an application link is registered.
func (s *Store) DappLinkExists(link string) (bool, error) {
	return s.exists("t_type = ? AND dapp_link = ?", uint8(types.TxTypeDapp), link)
}

// OutTransferExists reports whether a confirmed out transfer already
// settles the side chain transaction.
func (s *Store) OutTransferExists(transactionID string) (bool, error) {
	return s.exists("t_type = ? AND ot_out_transaction_id = ?", uint8(types.TxTypeOutTransfer), transactionID)
}

// SaveRound stores a settled round, replacing an earlier record.
func (s *Store) SaveRound(ctx context.Context, r *types.Round) error {
	row := roundRow(r)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save round %d: %w", r.Number, err)
	}
	return nil
}

// DeleteRound removes a settled round record.
func (s *Store) DeleteRound(ctx context.Context, number uint64) error {
	return s.db.WithContext(ctx).Where("round = ?", number).Delete(&RoundRow{}).Error
}

// Round returns a settled round.
func (s *Store) Round(ctx context.Context, number uint64) (*types.Round, error) {
	var row RoundRow
	err := s.db.WithContext(ctx).Where("round = ?", number).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.round()
}
