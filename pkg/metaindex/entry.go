package metaindex

import (
	"encoding/json"
	"time"

	"github.com/Dangoware/confetti-box/pkg/contenthash"
	"github.com/Dangoware/confetti-box/pkg/mmid"
)

// Entry is the durable record (E) for one logical uploaded file.
type Entry struct {
	MMID       mmid.MMID       `json:"mmid"`
	Name       string          `json:"name"`
	MimeType   string          `json:"mime_type"`
	Hash       contenthash.Hash `json:"hash"`
	UploadTime time.Time       `json:"upload_datetime"`
	ExpiryTime time.Time       `json:"expiry_datetime"`
}

// Expired reports whether e's expiry has passed as of now.
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiryTime)
}

// entryWire is the JSON wire shape: contenthash.Hash marshals as a raw byte
// array by default, but the index (and the HTTP API, per spec §6) stores
// and transmits hashes as lowercase hex strings.
type entryWire struct {
	MMID       mmid.MMID `json:"mmid"`
	Name       string    `json:"name"`
	MimeType   string    `json:"mime_type"`
	Hash       string    `json:"hash"`
	UploadTime time.Time `json:"upload_datetime"`
	ExpiryTime time.Time `json:"expiry_datetime"`
}

// MarshalJSON renders Entry with its hash as lowercase hex, matching the
// wire Entry JSON shape from spec §6.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryWire{
		MMID:       e.MMID,
		Name:       e.Name,
		MimeType:   e.MimeType,
		Hash:       e.Hash.String(),
		UploadTime: e.UploadTime,
		ExpiryTime: e.ExpiryTime,
	})
}

// UnmarshalJSON parses Entry from its wire shape.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w entryWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	h, err := contenthash.Parse(w.Hash)
	if err != nil {
		return err
	}
	e.MMID = w.MMID
	e.Name = w.Name
	e.MimeType = w.MimeType
	e.Hash = h
	e.UploadTime = w.UploadTime
	e.ExpiryTime = w.ExpiryTime
	return nil
}
