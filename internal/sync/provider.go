package sync

import (
	"context"
	"time"
)

// RemoteMessage is a provider-agnostic view of one remote mail message,
// produced by a provider adapter before normalization into the local schema.
type RemoteMessage struct {
	ID             string // provider message id, stable across fetches
	ConversationID string // provider thread/conversation id, may be empty
	Subject        string
	Sender         string
	Recipient      string
	Body           string
	BodyType       string // "text" or "html"
	Preview        string
	Folder         string // provider-native folder name
	Received       time.Time
	Read           bool
	Attachments    []RemoteAttachment
}

// RemoteAttachment carries an attachment payload fetched with its message.
type RemoteAttachment struct {
	Name     string
	MimeType string
	Size     int64
	Content  []byte
}

// MailProvider fetches a bounded page of remote messages positioned after
// cursor. It returns the page and the cursor to persist once the page has
// been committed locally. An empty returned cursor means "position
// unchanged".
type MailProvider interface {
	FetchMessages(ctx context.Context, accessToken, cursor string, max int) ([]RemoteMessage, string, error)
}
