package gmail

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/postadepo/server/internal/sync"
)

// Adapter implements mail fetching over the Gmail API. Like the Outlook
// adapter it is stateless and builds a service per call from the access
// token.
type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

// FetchMessages lists up to max messages received after the cursor. The
// cursor is the unix-second receive time of the newest processed message;
// Gmail's `after:` query operator has second granularity, which is enough
// because re-fetched boundary messages are deduplicated downstream.
func (a *Adapter) FetchMessages(ctx context.Context, accessToken, cursor string, max int) ([]sync.RemoteMessage, string, error) {
	svc, err := newService(ctx, accessToken)
	if err != nil {
		return nil, "", err
	}

	call := svc.Users.Messages.List("me").IncludeSpamTrash(true).MaxResults(int64(max))
	if since, ok := parseCursor(cursor); ok {
		call = call.Q(fmt.Sprintf("after:%d", since))
	}

	page, err := call.Context(ctx).Do()
	if err != nil {
		return nil, "", fmt.Errorf("failed to list messages: %w", err)
	}

	var messages []sync.RemoteMessage
	var latest int64
	if since, ok := parseCursor(cursor); ok {
		latest = since
	}

	for _, stub := range page.Messages {
		full, err := svc.Users.Messages.Get("me", stub.Id).Format("metadata").
			MetadataHeaders("Subject", "From", "To").Context(ctx).Do()
		if err != nil {
			return nil, "", fmt.Errorf("failed to get message %s: %w", stub.Id, err)
		}

		remote := normalize(full)
		messages = append(messages, remote)
		if sec := full.InternalDate / 1000; sec > latest {
			latest = sec
		}
	}

	nextCursor := cursor
	if latest > 0 {
		nextCursor = strconv.FormatInt(latest, 10)
	}
	return messages, nextCursor, nil
}

// normalize converts a Gmail message into the provider-agnostic shape. The
// snippet stands in for the body: metadata-scope fetches do not include the
// payload.
func normalize(m *gmail.Message) sync.RemoteMessage {
	remote := sync.RemoteMessage{
		ID:             m.Id,
		ConversationID: m.ThreadId,
		Body:           m.Snippet,
		BodyType:       "text",
		Preview:        m.Snippet,
		Received:       time.UnixMilli(m.InternalDate).UTC(),
		Read:           true,
		Folder:         "inbox",
	}

	if m.Payload != nil {
		for _, h := range m.Payload.Headers {
			switch h.Name {
			case "Subject":
				remote.Subject = h.Value
			case "From":
				remote.Sender = h.Value
			case "To":
				remote.Recipient = h.Value
			}
		}
	}

	for _, label := range m.LabelIds {
		switch label {
		case "UNREAD":
			remote.Read = false
		case "SENT":
			remote.Folder = "sent"
		case "SPAM":
			remote.Folder = "spam"
		case "TRASH":
			remote.Folder = "deleted"
		}
	}

	return remote
}

func parseCursor(cursor string) (int64, bool) {
	if cursor == "" {
		return 0, false
	}
	sec, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil {
		return 0, false
	}
	return sec, true
}

func newService(ctx context.Context, accessToken string) (*gmail.Service, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return svc, nil
}
