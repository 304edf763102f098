package auth

import (
	"crypto/ed25519"
	"encoding/base32"
	"encoding/binary"
	"errors"
)

// Ledger account addresses are "G..." strkeys: base32 of a version byte,
// the 32-byte ed25519 public key and a little-endian CRC16-XModem checksum.
const (
	accountVersionByte byte = 6 << 3
	accountAddressLen       = 56
)

var (
	ErrInvalidAddress = errors.New("invalid wallet address")

	strkeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// DecodeAccountID returns the public key behind a wallet address.
func DecodeAccountID(address string) (ed25519.PublicKey, error) {
	if len(address) != accountAddressLen || address[0] != 'G' {
		return nil, ErrInvalidAddress
	}
	raw, err := strkeyEncoding.DecodeString(address)
	if err != nil || len(raw) != 1+ed25519.PublicKeySize+2 {
		return nil, ErrInvalidAddress
	}
	if raw[0] != accountVersionByte {
		return nil, ErrInvalidAddress
	}
	body, sum := raw[:len(raw)-2], raw[len(raw)-2:]
	if binary.LittleEndian.Uint16(sum) != crc16XModem(body) {
		return nil, ErrInvalidAddress
	}
	return ed25519.PublicKey(body[1:]), nil
}

// ValidAccountID reports whether address is a well-formed wallet address.
func ValidAccountID(address string) bool {
	_, err := DecodeAccountID(address)
	return err == nil
}

// EncodeAccountID renders a public key as a wallet address.
func EncodeAccountID(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", ErrInvalidAddress
	}
	body := make([]byte, 0, 1+ed25519.PublicKeySize+2)
	body = append(body, accountVersionByte)
	body = append(body, pub...)
	body = binary.LittleEndian.AppendUint16(body, crc16XModem(body))
	return strkeyEncoding.EncodeToString(body), nil
}

func crc16XModem(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
