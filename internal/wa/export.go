package wa

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// ExportPrefix is the fixed literal tag prepended to the base64 credential
// payload. The envelope is opaque to callers; its only contract is
// reversibility via DecodeExport.
const ExportPrefix = "Mercedes~"

// ErrPairingCodeUnsupported is returned by sessions whose protocol build does
// not offer numeric pairing codes.
var ErrPairingCodeUnsupported = errors.New("pairing code not supported by session")

// ErrBadExport is returned by DecodeExport for input that is not a valid
// envelope.
var ErrBadExport = errors.New("malformed credential export")

// ExportCredentials serializes a flat map of named credential blobs as JSON,
// base64-encodes it, and prefixes the result with ExportPrefix.
func ExportCredentials(creds map[string]string) (string, error) {
	payload, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}
	return ExportPrefix + base64.StdEncoding.EncodeToString(payload), nil
}

// DecodeExport reverses ExportCredentials, recovering the named blobs.
func DecodeExport(export string) (map[string]string, error) {
	if !strings.HasPrefix(export, ExportPrefix) {
		return nil, ErrBadExport
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(export, ExportPrefix))
	if err != nil {
		return nil, ErrBadExport
	}
	var creds map[string]string
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, ErrBadExport
	}
	return creds, nil
}

// FormatPairingCode renders a raw pairing code in 4-character groups joined
// by dashes ("ABCD1234" -> "ABCD-1234"). Codes shorter than one group are
// returned unchanged.
func FormatPairingCode(raw string) string {
	if len(raw) <= 4 {
		return raw
	}
	var groups []string
	for len(raw) > 4 {
		groups = append(groups, raw[:4])
		raw = raw[4:]
	}
	groups = append(groups, raw)
	return strings.Join(groups, "-")
}

// NormalizePhone strips every non-digit rune from an E.164 phone string, the
// form the protocol expects when requesting a pairing code.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
