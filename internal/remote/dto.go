package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"drive-go/internal/drive"
)

// fileDTO is the wire form of a file. Only id and name are guaranteed;
// the other fields depend on the server version.
type fileDTO struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Size      flexSize `json:"size"`
	MimeType  *string  `json:"mime_type"`
	IsStarred bool     `json:"is_starred"`
	IsDeleted *bool    `json:"is_deleted"`
	CreatedAt flexTime `json:"created_at"`
	UpdatedAt flexTime `json:"updated_at"`
}

// record converts d. trashed is used when the server omits is_deleted,
// which it may do because the endpoint already implies the scope.
func (d fileDTO) record(trashed bool) drive.FileRecord {
	rec := drive.FileRecord{
		ID:        d.ID,
		Name:      d.Name,
		Size:      int64(d.Size),
		Starred:   d.IsStarred,
		Trashed:   trashed,
		CreatedAt: d.CreatedAt.Time,
		UpdatedAt: d.UpdatedAt.Time,
	}
	if d.MimeType != nil {
		rec.ContentType = *d.MimeType
	}
	if d.IsDeleted != nil {
		rec.Trashed = *d.IsDeleted
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	return rec
}

// flexSize accepts a JSON number, a numeric string or null.
type flexSize int64

func (s *flexSize) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		if str == "" {
			*s = 0
			return nil
		}
		data = []byte(str)
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid size %s: %w", data, err)
	}
	if n < 0 {
		return fmt.Errorf("invalid size %s: negative", data)
	}
	*s = flexSize(n)
	return nil
}

// flexTime accepts RFC 3339 timestamps and the zone-less ISO form the
// server emits for naive datetimes, which is read as UTC.
type flexTime struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	var s string
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", data, err)
	}
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}
