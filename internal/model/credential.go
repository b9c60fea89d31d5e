package model

import (
	"encoding/hex"
	"strings"
)

// Credential is the identifier read from a physical tag, as uppercase hex.
type Credential string

func NormalizeCredential(s string) Credential {
	return Credential(strings.ToUpper(strings.TrimSpace(s)))
}

func CredentialFromUID(uid []byte) Credential {
	return Credential(strings.ToUpper(hex.EncodeToString(uid)))
}

func (c Credential) String() string {
	return string(c)
}

func (c Credential) IsZero() bool {
	return c == ""
}

// Valid reports whether c is a non-empty uppercase hex string.
func (c Credential) Valid() bool {
	if c == "" {
		return false
	}
	for _, r := range c {
		if (r < '0' || r > '9') && (r < 'A' || r > 'F') {
			return false
		}
	}
	return true
}
