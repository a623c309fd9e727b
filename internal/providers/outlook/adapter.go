package outlook

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	graphmodels "github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/users"

	"github.com/postadepo/server/internal/accounts"
	"github.com/postadepo/server/internal/sync"
)

// Adapter talks to Microsoft Graph for profile and mail fetches. It is
// stateless: the access token arrives with every call, so one Adapter
// serves every connected Outlook account.
type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

// FetchProfile resolves the mailbox address and display name behind an
// access token, used by the connector right after a code exchange.
func (a *Adapter) FetchProfile(ctx context.Context, accessToken string) (*accounts.Profile, error) {
	client, err := newGraphClient(accessToken)
	if err != nil {
		return nil, err
	}

	me, err := client.Me().Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}

	profile := &accounts.Profile{}
	if mail := me.GetMail(); mail != nil {
		profile.Email = *mail
	} else if upn := me.GetUserPrincipalName(); upn != nil {
		profile.Email = *upn
	}
	if name := me.GetDisplayName(); name != nil {
		profile.DisplayName = *name
	}

	if profile.Email == "" {
		return nil, fmt.Errorf("profile has no email address")
	}
	return profile, nil
}

// FetchMessages lists up to max messages received after the cursor, oldest
// first, and returns the new cursor position. The cursor is the received
// timestamp of the last message in the page.
func (a *Adapter) FetchMessages(ctx context.Context, accessToken, cursor string, max int) ([]sync.RemoteMessage, string, error) {
	client, err := newGraphClient(accessToken)
	if err != nil {
		return nil, "", err
	}

	requestConfig := &users.ItemMessagesRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.ItemMessagesRequestBuilderGetQueryParameters{
			Top: int32Ptr(int32(max)),
			Select: []string{
				"id", "conversationId", "subject", "from", "toRecipients",
				"body", "bodyPreview", "receivedDateTime", "isRead", "hasAttachments",
			},
			Orderby: []string{"receivedDateTime asc"},
		},
	}
	if since, ok := parseCursor(cursor); ok {
		filter := fmt.Sprintf("receivedDateTime gt %s", since.UTC().Format(time.RFC3339))
		requestConfig.QueryParameters.Filter = &filter
	}

	result, err := client.Me().Messages().Get(ctx, requestConfig)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list messages: %w", err)
	}

	var messages []sync.RemoteMessage
	nextCursor := cursor
	for _, msg := range result.GetValue() {
		remote := normalize(msg)

		if hasAtt := msg.GetHasAttachments(); hasAtt != nil && *hasAtt && remote.ID != "" {
			atts, err := a.fetchAttachments(ctx, client, remote.ID)
			if err != nil {
				return nil, "", err
			}
			remote.Attachments = atts
		}

		messages = append(messages, remote)
		if !remote.Received.IsZero() {
			nextCursor = remote.Received.UTC().Format(time.RFC3339Nano)
		}
	}

	return messages, nextCursor, nil
}

func (a *Adapter) fetchAttachments(ctx context.Context, client *msgraphsdk.GraphServiceClient, messageID string) ([]sync.RemoteAttachment, error) {
	result, err := client.Me().Messages().ByMessageId(messageID).Attachments().Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}

	var atts []sync.RemoteAttachment
	for _, raw := range result.GetValue() {
		file, ok := raw.(graphmodels.FileAttachmentable)
		if !ok {
			continue
		}
		att := sync.RemoteAttachment{Content: file.GetContentBytes()}
		if name := file.GetName(); name != nil {
			att.Name = *name
		}
		if ct := file.GetContentType(); ct != nil {
			att.MimeType = *ct
		}
		if size := file.GetSize(); size != nil {
			att.Size = int64(*size)
		} else {
			att.Size = int64(len(att.Content))
		}
		atts = append(atts, att)
	}
	return atts, nil
}

// normalize converts a Graph message into the provider-agnostic shape.
func normalize(m graphmodels.Messageable) sync.RemoteMessage {
	remote := sync.RemoteMessage{BodyType: "text"}

	if id := m.GetId(); id != nil {
		remote.ID = *id
	}
	if convID := m.GetConversationId(); convID != nil {
		remote.ConversationID = *convID
	}
	if subject := m.GetSubject(); subject != nil {
		remote.Subject = *subject
	}
	if from := m.GetFrom(); from != nil {
		if addr := from.GetEmailAddress(); addr != nil {
			if a := addr.GetAddress(); a != nil {
				remote.Sender = *a
			}
		}
	}
	if to := m.GetToRecipients(); len(to) > 0 {
		if addr := to[0].GetEmailAddress(); addr != nil {
			if a := addr.GetAddress(); a != nil {
				remote.Recipient = *a
			}
		}
	}
	if body := m.GetBody(); body != nil {
		if content := body.GetContent(); content != nil {
			remote.Body = *content
		}
		if ct := body.GetContentType(); ct != nil && *ct == graphmodels.HTML_BODYTYPE {
			remote.BodyType = "html"
		}
	}
	if preview := m.GetBodyPreview(); preview != nil {
		remote.Preview = *preview
	}
	if rcvd := m.GetReceivedDateTime(); rcvd != nil {
		remote.Received = *rcvd
	}
	if read := m.GetIsRead(); read != nil {
		remote.Read = *read
	}

	return remote
}

func parseCursor(cursor string) (time.Time, bool) {
	if cursor == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, cursor)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func newGraphClient(accessToken string) (*msgraphsdk.GraphServiceClient, error) {
	cred := &staticTokenCredential{token: accessToken}
	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Graph client: %w", err)
	}
	return client, nil
}

// staticTokenCredential hands the already-obtained OAuth access token to the
// Graph SDK's Azure credential interface.
type staticTokenCredential struct {
	token string
}

func (c *staticTokenCredential) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{
		Token:     c.token,
		ExpiresOn: time.Now().Add(1 * time.Hour),
	}, nil
}

func int32Ptr(i int32) *int32 {
	return &i
}
