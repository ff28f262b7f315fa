package domain

import (
	"fmt"
	"strings"
	"time"
)

// FileKind enumerates the content variants the registry can hold.
type FileKind string

const (
	KindDocument FileKind = "document"
	KindVideo    FileKind = "video"
	KindPhoto    FileKind = "photo"
	KindText     FileKind = "text"
)

// Valid reports whether k is one of the known kinds.
func (k FileKind) Valid() bool {
	switch k {
	case KindDocument, KindVideo, KindPhoto, KindText:
		return true
	}
	return false
}

// ParseFileKind maps a case-insensitive name to a FileKind.
func ParseFileKind(s string) (FileKind, error) {
	k := FileKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown file kind %q", s)
	}
	return k, nil
}

// FileEntry maps a short identifier to content relayed into the storage
// channel. Entries are written once and never updated; deleting the owner's
// link removes the row.
//
// Fields:
//   - ID: 8 lowercase hex characters, unique at creation time.
//   - OwnerID: Telegram id of the uploader (indexed together with CreatedAt).
//   - Kind: document, video, photo or text (enforced by DB constraint).
//   - ChannelMessageID: message id of the relayed copy in the channel.
//   - FileID: Telegram file id for media kinds.
//   - FileName: original file name when the client sent one.
//   - Text: inline text for the text kind, caption otherwise.
//   - CreatedAt: creation time in UTC.
type FileEntry struct {
	ID               string    `json:"id"                 gorm:"type:char(8);primaryKey"`
	OwnerID          int64     `json:"owner_id"           gorm:"not null;index:idx_owner_files,priority:1"`
	Kind             FileKind  `json:"kind"               gorm:"type:varchar(16);not null;check:kind IN ('document','video','photo','text')"`
	ChannelMessageID int       `json:"channel_message_id" gorm:"not null"`
	FileID           string    `json:"file_id,omitempty"  gorm:"type:varchar(255)"`
	FileName         string    `json:"file_name,omitempty" gorm:"type:varchar(255)"`
	Text             string    `json:"text,omitempty"     gorm:"type:text"`
	CreatedAt        time.Time `json:"created_at"         gorm:"index:idx_owner_files,priority:2"`
}

// TableName returns the database table name for FileEntry.
func (FileEntry) TableName() string { return "files" }

// Payload is inbound content waiting to be relayed. It is transport neutral:
// the chat layer fills it from an update and the registry hands it to the
// relayer unchanged.
type Payload struct {
	Kind            FileKind
	FileID          string
	FileName        string
	Text            string
	SourceChatID    int64
	SourceMessageID int
}

// Validate checks the fields each kind needs in order to be relayed.
func (p Payload) Validate() error {
	if !p.Kind.Valid() {
		return fmt.Errorf("unknown file kind %q", p.Kind)
	}
	if p.Kind == KindText {
		if strings.TrimSpace(p.Text) == "" {
			return fmt.Errorf("text payload is empty")
		}
		return nil
	}
	if strings.TrimSpace(p.FileID) == "" {
		return fmt.Errorf("%s payload has no file id", p.Kind)
	}
	return nil
}
