package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tbourn/filegate-bot/internal/domain"
)

// Content is one relayable variant (document, video, photo or text). Each
// variant knows how to re-send itself into a chat and how to render its line
// in a storage listing.
type Content interface {
	Kind() domain.FileKind
	// RelayTo builds the request that re-sends the content into chatID.
	RelayTo(chatID int64) tgbotapi.Chattable
	// Line renders the storage listing entry for link.
	Line(link string) string
}

type documentContent struct {
	fileID  string
	name    string
	caption string
}

func (c documentContent) Kind() domain.FileKind { return domain.KindDocument }

func (c documentContent) RelayTo(chatID int64) tgbotapi.Chattable {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileID(c.fileID))
	doc.Caption = c.caption
	return doc
}

func (c documentContent) Line(link string) string {
	if c.name != "" {
		return fmt.Sprintf("📄 %s\n%s", c.name, link)
	}
	return "📄 " + link
}

type videoContent struct {
	fileID  string
	caption string
}

func (c videoContent) Kind() domain.FileKind { return domain.KindVideo }

func (c videoContent) RelayTo(chatID int64) tgbotapi.Chattable {
	v := tgbotapi.NewVideo(chatID, tgbotapi.FileID(c.fileID))
	v.Caption = c.caption
	return v
}

func (c videoContent) Line(link string) string { return "🎬 " + link }

type photoContent struct {
	fileID  string
	caption string
}

func (c photoContent) Kind() domain.FileKind { return domain.KindPhoto }

func (c photoContent) RelayTo(chatID int64) tgbotapi.Chattable {
	p := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(c.fileID))
	p.Caption = c.caption
	return p
}

func (c photoContent) Line(link string) string { return "🖼️ " + link }

type textContent struct {
	text string
}

func (c textContent) Kind() domain.FileKind { return domain.KindText }

func (c textContent) RelayTo(chatID int64) tgbotapi.Chattable {
	return tgbotapi.NewMessage(chatID, c.text)
}

// Line shows a short preview so text entries can be told apart.
func (c textContent) Line(link string) string {
	return fmt.Sprintf("📝 %s\n%s", preview(c.text, 40), link)
}

// ContentFor returns the variant for p. p must be valid.
func ContentFor(p domain.Payload) (Content, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch p.Kind {
	case domain.KindDocument:
		return documentContent{fileID: p.FileID, name: p.FileName, caption: p.Text}, nil
	case domain.KindVideo:
		return videoContent{fileID: p.FileID, caption: p.Text}, nil
	case domain.KindPhoto:
		return photoContent{fileID: p.FileID, caption: p.Text}, nil
	default:
		return textContent{text: p.Text}, nil
	}
}

// ContentOf rebuilds the variant of a stored entry.
func ContentOf(e domain.FileEntry) (Content, error) {
	return ContentFor(domain.Payload{
		Kind:     e.Kind,
		FileID:   e.FileID,
		FileName: e.FileName,
		Text:     e.Text,
	})
}

// PayloadFrom extracts storable content from an inbound message. Commands
// and service messages yield false. For photos the largest size is kept.
func PayloadFrom(m *tgbotapi.Message) (domain.Payload, bool) {
	if m == nil || m.IsCommand() {
		return domain.Payload{}, false
	}
	p := domain.Payload{SourceMessageID: m.MessageID, Text: m.Caption}
	if m.Chat != nil {
		p.SourceChatID = m.Chat.ID
	}
	switch {
	case m.Document != nil:
		p.Kind = domain.KindDocument
		p.FileID = m.Document.FileID
		p.FileName = m.Document.FileName
	case m.Video != nil:
		p.Kind = domain.KindVideo
		p.FileID = m.Video.FileID
	case len(m.Photo) > 0:
		p.Kind = domain.KindPhoto
		p.FileID = m.Photo[len(m.Photo)-1].FileID
	case m.Text != "":
		p.Kind = domain.KindText
		p.Text = m.Text
	default:
		return domain.Payload{}, false
	}
	return p, true
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
