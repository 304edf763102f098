package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// SignatureStrategy encodes the canonical message into the bytes a wallet signer
// may have signed. Signer versions differ, so several are tried in order.
type SignatureStrategy struct {
	Name   string
	Encode func(message string) []byte
}

// DefaultStrategies accepts the raw UTF-8 message or its base64 form.
var DefaultStrategies = []SignatureStrategy{
	{Name: "utf8", Encode: func(m string) []byte { return []byte(m) }},
	{Name: "base64", Encode: func(m string) []byte {
		return []byte(base64.StdEncoding.EncodeToString([]byte(m)))
	}},
}

// VerifyWalletSignature checks a hex signature over message for the wallet
// address and returns the name of the first strategy that verified.
func VerifyWalletSignature(address, message, signatureHex string, strategies []SignatureStrategy) (string, bool) {
	pub, err := DecodeAccountID(address)
	if err != nil {
		return "", false
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return "", false
	}
	for _, s := range strategies {
		if ed25519.Verify(pub, s.Encode(message), sig) {
			return s.Name, true
		}
	}
	return "", false
}
