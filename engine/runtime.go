package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// LocalRuntime is a deterministic stand-in for the vendor engine runtime,
// used where the vendor binary is unavailable (development, tests). It
// derives the device material from the firmware image with HKDF so that the
// same firmware always yields the same troubleshooting id and password.
type LocalRuntime struct {
	customerID        string
	troubleshootingID string
	password          []byte
}

// NewLocalRuntime creates a local runtime bound to the given customer id.
func NewLocalRuntime(customerID string) *LocalRuntime {
	return &LocalRuntime{customerID: customerID}
}

// Start processes the firmware image and derives the device material.
// Returns a positive boot code on success, a negative code for an unusable
// image.
func (r *LocalRuntime) Start(firmware []byte) (int64, error) {
	if len(firmware) == 0 {
		return -1, nil
	}

	digest := sha256.Sum256(firmware)
	kdf := hkdf.New(sha256.New, digest[:], nil, []byte("vtap-device-material"))

	id := make([]byte, 8)
	if _, err := io.ReadFull(kdf, id); err != nil {
		return 0, errors.New("derive troubleshooting id: " + err.Error())
	}
	password := make([]byte, 16)
	if _, err := io.ReadFull(kdf, password); err != nil {
		return 0, errors.New("derive device password: " + err.Error())
	}

	r.troubleshootingID = hex.EncodeToString(id)
	r.password = password
	return int64(digest[0]) + 1, nil
}

func (r *LocalRuntime) TroubleshootingID() string { return r.troubleshootingID }

func (r *LocalRuntime) Password() []byte { return r.password }

func (r *LocalRuntime) CustomerID() string { return r.customerID }
