package wallet

import "errors"

var (
	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrDeviceBound indicates the device already owns a wallet.
	ErrDeviceBound = errors.New("device already bound")
	// ErrProvisioning indicates the node service could not create a node.
	ErrProvisioning = errors.New("node provisioning failed")
	// ErrStorage indicates a persistence failure.
	ErrStorage = errors.New("wallet storage failure")
	// ErrBindingViolation indicates a status read from a device other than the bound one.
	ErrBindingViolation = errors.New("device binding violation")
	// ErrNotFound indicates no wallet matches the lookup.
	ErrNotFound = errors.New("wallet not found")
	// ErrDuplicateDevice is returned by Store.Insert when another wallet already
	// holds the device id.
	ErrDuplicateDevice = errors.New("duplicate device id")
)
