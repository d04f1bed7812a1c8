package store

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"kinship/internal/models"
)

// cursor is the self-describing state behind an opaque page token. Key is the
// last index key the previous page returned; the next page starts strictly
// after it in scan direction.
type cursor struct {
	Index      string `json:"i"`
	Key        []byte `json:"k"`
	Desc       bool   `json:"d,omitempty"`
	FilterHash string `json:"f,omitempty"`
}

// HashFilter computes a short hash of a filter description. Tokens minted
// under one filter are rejected under another.
func HashFilter(filter string) string {
	if filter == "" {
		return ""
	}
	h := sha256.Sum256([]byte(filter))
	return hex.EncodeToString(h[:8])
}

// EncodeCursor mints a page token resuming after key.
func EncodeCursor(index string, key []byte, desc bool, filter string) string {
	data, err := json.Marshal(cursor{
		Index:      index,
		Key:        key,
		Desc:       desc,
		FilterHash: HashFilter(filter),
	})
	if err != nil {
		// cursor holds only strings, bytes and bools
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor validates a page token against the scan it is resuming. An
// empty token means "from the start" and yields a nil key.
func DecodeCursor(token, index string, desc bool, filter string) ([]byte, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, models.NewValidationError("Malformed cursor")
	}
	var c cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, models.NewValidationError("Malformed cursor")
	}
	if c.Index != index || c.Desc != desc {
		return nil, models.NewValidationError(fmt.Sprintf("Cursor does not belong to a %s scan", index))
	}
	if c.FilterHash != HashFilter(filter) {
		return nil, models.NewValidationError("Filters changed since the cursor was created")
	}
	if len(c.Key) == 0 {
		return nil, models.NewValidationError("Malformed cursor")
	}
	return c.Key, nil
}
