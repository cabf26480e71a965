package service

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/tidwall/gjson"
)

// Key custody modes recorded in every envelope
const (
	CustodyVault  = "vault"
	CustodyInline = "inline"
)

var redactKey = []byte(`{"encryptionKey":null}`)

// storageFacts are the envelope fields the service owns. They override any
// declared metadata key of the same name.
type storageFacts struct {
	Encrypted        bool   `json:"encrypted"`
	OriginalSize     int64  `json:"originalSize"`
	EncryptedSize    int64  `json:"encryptedSize"`
	OriginalFilename string `json:"originalFilename"`
	FileExtension    string `json:"fileExtension"`
	EncryptedSHA256  string `json:"encryptedSha256"`
	KeyCustody       string `json:"keyCustody"`
	UploadedAt       string `json:"uploadedAt"`
	EncryptionKey    string `json:"encryptionKey,omitempty"`
}

// buildEnvelope merges facts over the declared metadata object (RFC 7386).
// A declared encryptionKey is always dropped first. The merged document is
// returned both as the ledger string and decoded.
func buildEnvelope(declared string, facts storageFacts) (string, map[string]interface{}, error) {
	base, err := jsonpatch.MergePatch([]byte(declared), redactKey)
	if err != nil {
		return "", nil, fmt.Errorf("merge declared metadata: %w", err)
	}
	patch, err := json.Marshal(facts)
	if err != nil {
		return "", nil, fmt.Errorf("encode storage facts: %w", err)
	}
	merged, err := jsonpatch.MergePatch(base, patch)
	if err != nil {
		return "", nil, fmt.Errorf("merge storage facts: %w", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(merged, &decoded); err != nil {
		return "", nil, fmt.Errorf("decode envelope: %w", err)
	}
	return string(merged), decoded, nil
}

// envelope is a read-only view of the on-ledger metadata. Records whose
// metadata is not a JSON object read as empty.
type envelope struct {
	raw   string
	valid bool
}

func parseEnvelope(raw string) envelope {
	raw = strings.TrimSpace(raw)
	return envelope{raw: raw, valid: gjson.Valid(raw) && gjson.Parse(raw).IsObject()}
}

func (e envelope) str(key string) string {
	if !e.valid {
		return ""
	}
	v := gjson.Get(e.raw, key)
	if v.Type != gjson.String {
		return ""
	}
	return v.String()
}

func (e envelope) encrypted() bool {
	return e.valid && gjson.Get(e.raw, "encrypted").Bool()
}

func (e envelope) inlineKey() string { return e.str("encryptionKey") }
func (e envelope) custody() string { return e.str("keyCustody") }
func (e envelope) ciphertextSHA256() string { return e.str("encryptedSha256") }

// object returns the envelope as a generic map, for filter evaluation
func (e envelope) object() map[string]interface{} {
	out := map[string]interface{}{}
	if e.valid {
		if m, ok := gjson.Parse(e.raw).Value().(map[string]interface{}); ok {
			out = m
		}
	}
	delete(out, "encryptionKey")
	return out
}

// publicMetadata strips key material from a stored envelope. Metadata that
// is not a JSON object is returned as a JSON string.
func publicMetadata(raw string) json.RawMessage {
	if parseEnvelope(raw).valid {
		if out, err := jsonpatch.MergePatch([]byte(raw), redactKey); err == nil {
			return out
		}
	}
	quoted, _ := json.Marshal(raw)
	return quoted
}
