package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation     = "23505"
	deviceUniqueKeyName = "wallets_device_id_key"
)

// Store persists wallets. Insert is the sole enforcement point of the
// one-wallet-per-device invariant.
type Store interface {
	FindByDeviceID(ctx context.Context, deviceID string) (Wallet, error)
	FindByID(ctx context.Context, walletID string) (Wallet, error)
	Insert(ctx context.Context, wallet Wallet) error
	// TouchLastSeen moves last_seen_at forward to at, never backward, and
	// returns the stored value.
	TouchLastSeen(ctx context.Context, walletID string, at time.Time) (time.Time, error)
	Ping(ctx context.Context) error
}

// PostgresStore stores wallets in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore builds a store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectWallet = `SELECT wallet_id, phone, device_id, node_reference, invite_code, backup_type,
        backup_status, status, first_channel_opened, first_channel_sats, device_bound_at, last_seen_at, created_at
        FROM wallets`

// FindByDeviceID fetches the wallet bound to a device.
func (s *PostgresStore) FindByDeviceID(ctx context.Context, deviceID string) (Wallet, error) {
	return s.scanOne(s.db.QueryRow(ctx, selectWallet+` WHERE device_id = $1`, deviceID))
}

// FindByID fetches a wallet by identifier. Malformed identifiers are reported
// as not found.
func (s *PostgresStore) FindByID(ctx context.Context, walletID string) (Wallet, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return Wallet{}, ErrNotFound
	}
	return s.scanOne(s.db.QueryRow(ctx, selectWallet+` WHERE wallet_id = $1`, id))
}

// Insert writes a new wallet row in a single statement.
func (s *PostgresStore) Insert(ctx context.Context, w Wallet) error {
	id, err := uuid.Parse(w.ID)
	if err != nil {
		return fmt.Errorf("%w: invalid wallet id: %v", ErrStorage, err)
	}
	_, err = s.db.Exec(ctx, `INSERT INTO wallets (wallet_id, phone, device_id, node_reference, invite_code,
        backup_type, backup_status, status, first_channel_opened, first_channel_sats, device_bound_at, last_seen_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		id, w.Phone, w.DeviceID, w.NodeReference, w.InviteCode,
		string(w.BackupType), string(w.BackupStatus), w.Status, w.FirstChannelOpened, w.FirstChannelSats,
		utcPtr(w.DeviceBoundAt), utcPtr(w.LastSeenAt), w.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == deviceUniqueKeyName {
			return ErrDuplicateDevice
		}
		return fmt.Errorf("%w: insert wallet: %v", ErrStorage, err)
	}
	return nil
}

// TouchLastSeen advances last_seen_at monotonically.
func (s *PostgresStore) TouchLastSeen(ctx context.Context, walletID string, at time.Time) (time.Time, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return time.Time{}, ErrNotFound
	}
	var stored time.Time
	err = s.db.QueryRow(ctx, `UPDATE wallets SET last_seen_at = GREATEST(last_seen_at, $2)
        WHERE wallet_id = $1 RETURNING last_seen_at`, id, at.UTC()).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: touch last seen: %v", ErrStorage, err)
	}
	return stored.UTC(), nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) scanOne(row pgx.Row) (Wallet, error) {
	var (
		w             Wallet
		id            uuid.UUID
		backupType    string
		backupStatus  string
		deviceBoundAt *time.Time
		lastSeenAt    *time.Time
		createdAt     time.Time
	)
	err := row.Scan(&id, &w.Phone, &w.DeviceID, &w.NodeReference, &w.InviteCode, &backupType, &backupStatus,
		&w.Status, &w.FirstChannelOpened, &w.FirstChannelSats, &deviceBoundAt, &lastSeenAt, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, ErrNotFound
	}
	if err != nil {
		return Wallet{}, fmt.Errorf("%w: scan wallet: %v", ErrStorage, err)
	}
	w.ID = id.String()
	w.BackupType = BackupType(backupType)
	w.BackupStatus = BackupStatus(backupStatus)
	w.DeviceBoundAt = utcPtr(deviceBoundAt)
	w.LastSeenAt = utcPtr(lastSeenAt)
	w.CreatedAt = createdAt.UTC()
	return w, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
