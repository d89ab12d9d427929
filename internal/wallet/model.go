package wallet

import (
	"strings"
	"time"

	"github.com/sabi-wallet/sabi_backend/internal/node"
)

// BackupType is the recovery method chosen at creation.
type BackupType string

const (
	BackupNone   BackupType = "none"
	BackupSocial BackupType = "social"
	BackupSeed   BackupType = "seed"
)

// BackupStatus is derived from BackupType and never set independently.
type BackupStatus string

const (
	BackupSkipped BackupStatus = "skipped"
	BackupPending BackupStatus = "pending"
)

// StatusActive is the only lifecycle state a wallet reaches in this service.
const StatusActive = "active"

// ParseBackupType accepts none, social or seed in any case.
func ParseBackupType(raw string) (BackupType, bool) {
	switch bt := BackupType(strings.ToLower(raw)); bt {
	case BackupNone, BackupSocial, BackupSeed:
		return bt, true
	default:
		return "", false
	}
}

// Status returns the backup status implied by the backup type.
func (b BackupType) Status() BackupStatus {
	if b == BackupNone {
		return BackupSkipped
	}
	return BackupPending
}

// Wallet is one provisioned wallet bound to one device.
type Wallet struct {
	ID                 string
	Phone              string
	DeviceID           string
	NodeReference      string
	InviteCode         string
	BackupType         BackupType
	BackupStatus       BackupStatus
	Status             string
	FirstChannelOpened bool
	FirstChannelSats   int64
	DeviceBoundAt      *time.Time
	LastSeenAt         *time.Time
	CreatedAt          time.Time
}

// CreateWalletInput captures the data required to provision a wallet.
type CreateWalletInput struct {
	DeviceID   string
	Phone      string
	BackupType string
}

// CreateWalletResponse is returned once to the creating device.
// RecoveryPhrase is set only for seed backups and is never stored.
type CreateWalletResponse struct {
	WalletID           string
	InviteCode         string
	NodeReference      string
	FirstChannelOpened bool
	RecoveryPhrase     *string
}

// WalletStatusResponse combines stored wallet metadata with the live node view.
type WalletStatusResponse struct {
	Wallet Wallet
	Node   node.Status
}
