// Package muxed decodes multiplexed (M...) Stellar account addresses.
package muxed

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/stellar/go-stellar-sdk/strkey"

	"stellar-insights/internal/storage"
)

const (
	ed25519KeyLen = 32
	payloadLen    = ed25519KeyLen + 8
)

// Info is the decoded form of a muxed address.
type Info struct {
	BaseAccount string
	ID          uint64
}

// Decoder extracts the base account and id from a muxed address.
type Decoder interface {
	Decode(address string) (Info, bool)
}

// IsMuxed reports whether the address has the structural shape of a muxed account.
func IsMuxed(address string) bool {
	return len(address) == storage.MuxedLength && strings.HasPrefix(address, storage.MuxedPrefix)
}

// StrkeyDecoder decodes addresses with checksum verification.
type StrkeyDecoder struct{}

// Decode returns false for anything that is not a valid muxed strkey.
func (StrkeyDecoder) Decode(address string) (Info, bool) {
	if !IsMuxed(address) {
		return Info{}, false
	}
	raw, err := strkey.Decode(strkey.VersionByteMuxedAccount, address)
	if err != nil || len(raw) != payloadLen {
		return Info{}, false
	}
	base, err := strkey.Encode(strkey.VersionByteAccountID, raw[:ed25519KeyLen])
	if err != nil {
		return Info{}, false
	}
	return Info{BaseAccount: base, ID: binary.BigEndian.Uint64(raw[ed25519KeyLen:])}, true
}

// Encode builds the muxed address for a base G-address and id.
func Encode(baseAccount string, id uint64) (string, error) {
	key, err := strkey.Decode(strkey.VersionByteAccountID, baseAccount)
	if err != nil {
		return "", fmt.Errorf("decode base account: %w", err)
	}
	payload := make([]byte, payloadLen)
	copy(payload, key)
	binary.BigEndian.PutUint64(payload[ed25519KeyLen:], id)
	address, err := strkey.Encode(strkey.VersionByteMuxedAccount, payload)
	if err != nil {
		return "", fmt.Errorf("encode muxed account: %w", err)
	}
	return address, nil
}

// AccountFromSeed derives a deterministic G-address from a 32-byte key seed.
func AccountFromSeed(seed [ed25519KeyLen]byte) string {
	address, err := strkey.Encode(strkey.VersionByteAccountID, seed[:])
	if err != nil {
		// only fails for oversized payloads
		panic(err)
	}
	return address
}

var _ Decoder = StrkeyDecoder{}
