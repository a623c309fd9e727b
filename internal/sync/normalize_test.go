package sync

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/postadepo/server/internal/models"
)

func TestMapFolder(t *testing.T) {
	cases := map[string]string{
		"Inbox":         models.FolderInbox,
		"inbox":         models.FolderInbox,
		"":              models.FolderInbox,
		"Sent Items":    models.FolderSent,
		"SENT":          models.FolderSent,
		"Junk Email":    models.FolderSpam,
		"spam":          models.FolderSpam,
		"Deleted Items": models.FolderDeleted,
		"Trash":         models.FolderDeleted,
		"Archive":       models.FolderInbox,
	}
	for in, want := range cases {
		require.Equal(t, want, MapFolder(in), "folder %q", in)
	}
}

func TestThreadIDPrefersConversationID(t *testing.T) {
	require.Equal(t, "conv-1", ThreadID("conv-1", "Re: Hello"))
}

func TestThreadIDStripsReplyPrefixes(t *testing.T) {
	want := ThreadID("", "Project update")
	require.Equal(t, want, ThreadID("", "Re: Project update"))
	require.Equal(t, want, ThreadID("", "RE: re: Project update"))
	require.Equal(t, want, ThreadID("", "Fwd: Re: project UPDATE"))
	require.NotEqual(t, want, ThreadID("", "Other subject"))
}

func TestPreviewTruncatesRunes(t *testing.T) {
	short := "kısa mesaj"
	require.Equal(t, short, Preview(short))

	long := strings.Repeat("ğ", 150)
	got := Preview(long)
	require.Equal(t, strings.Repeat("ğ", 100)+"...", got)
}

func TestNormalize(t *testing.T) {
	account := &models.ConnectedAccount{
		ID:     "acct-1",
		UserID: "user-1",
	}
	msg := RemoteMessage{
		ID:       "msg-1",
		Subject:  "Hello",
		Sender:   "sender@example.com",
		Body:     "body text",
		Folder:   "Sent Items",
		Received: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Read:     true,
		Attachments: []RemoteAttachment{
			{Name: "a.pdf", MimeType: "application/pdf", Size: 3000},
		},
	}

	mail := Normalize(account, msg)
	require.Equal(t, "user-1", mail.UserID)
	require.Equal(t, "acct-1", mail.AccountID)
	require.Equal(t, "msg-1", mail.ExternalID)
	require.Equal(t, models.FolderSent, mail.Folder)
	require.Equal(t, "text", mail.ContentType)
	require.Equal(t, "body text", mail.Preview)
	require.True(t, mail.Read)
	require.Len(t, mail.Attachments, 1)
	require.Equal(t, mail.ID, mail.Attachments[0].MailID)
	require.Equal(t, ThreadID("", "Hello"), mail.ThreadID)

	// content + subject + sender + headers + attachment at base64 expansion
	want := int64(len("body text")+len("Hello")+len("sender@example.com")+200) + 3000*4/3
	require.Equal(t, want, mail.Size)
}
