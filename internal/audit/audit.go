package audit

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"
)

const (
	// KindWalletCreated records a wallet bound to a device.
	KindWalletCreated = "wallet_created"
	// KindDeviceBindingViolation records a status read from a device other than the bound one.
	KindDeviceBindingViolation = "device_binding_violation"
	// KindNodeProvisionedUnbound records a node provisioned for a request that lost the
	// device race at insert. The node has no wallet row and needs reconciliation.
	KindNodeProvisionedUnbound = "node_provisioned_unbound"
)

// Event describes a security relevant action. Phone and device identifiers are
// fingerprinted before they reach any sink.
type Event struct {
	Kind               string
	WalletID           string
	DeviceID           string
	RequestingDeviceID string
	Phone              string
	NodeReference      string
	Detail             string
	At                 time.Time
}

// Recorder delivers audit events to downstream systems.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// LoggerRecorder writes audit events to a dedicated structured logger.
type LoggerRecorder struct {
	logger *slog.Logger
	key    []byte
}

// NewLoggerRecorder constructs a logging recorder. key seeds the fingerprint hash;
// an empty key still hashes but the fingerprints become guessable for short inputs.
func NewLoggerRecorder(logger *slog.Logger, key string) *LoggerRecorder {
	if logger != nil {
		logger = logger.With(slog.String("component", "audit"))
	}
	return &LoggerRecorder{logger: logger, key: normalizeKey([]byte(key))}
}

// Record writes the event to the structured logger.
func (r *LoggerRecorder) Record(ctx context.Context, event Event) error {
	if r == nil || r.logger == nil {
		return nil
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	attrs := []slog.Attr{
		slog.String("kind", event.Kind),
		slog.Time("at", event.At),
	}
	if event.WalletID != "" {
		attrs = append(attrs, slog.String("wallet_id", event.WalletID))
	}
	if event.NodeReference != "" {
		attrs = append(attrs, slog.String("node_reference", event.NodeReference))
	}
	if event.DeviceID != "" {
		attrs = append(attrs, slog.String("device_fp", fingerprint(r.key, event.DeviceID)))
	}
	if event.RequestingDeviceID != "" {
		attrs = append(attrs, slog.String("requesting_device_fp", fingerprint(r.key, event.RequestingDeviceID)))
	}
	if event.Phone != "" {
		attrs = append(attrs, slog.String("phone_fp", fingerprint(r.key, event.Phone)))
	}
	if event.Detail != "" {
		attrs = append(attrs, slog.String("detail", event.Detail))
	}

	level := slog.LevelInfo
	if event.Kind == KindDeviceBindingViolation || event.Kind == KindNodeProvisionedUnbound {
		level = slog.LevelWarn
	}
	r.logger.LogAttrs(ctx, level, "audit", attrs...)
	return nil
}

// Fingerprint returns a keyed, truncated BLAKE2b digest of value suitable for
// correlating identifiers across log lines without revealing them.
func Fingerprint(key, value string) string {
	return fingerprint(normalizeKey([]byte(key)), value)
}

func fingerprint(key []byte, value string) string {
	h, err := blake2b.New(16, key)
	if err != nil {
		// key is normalised to at most blake2b.Size bytes, so this is unreachable.
		return ""
	}
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeKey(key []byte) []byte {
	if len(key) <= blake2b.Size {
		return key
	}
	sum := blake2b.Sum256(key)
	return sum[:]
}
