package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/postadepo/server/internal/events"
	"github.com/postadepo/server/internal/models"
	"github.com/postadepo/server/internal/oauth"
)

var (
	// ErrReauthorizationRequired means the stored refresh token was
	// rejected; the user must reconnect the account before syncing again.
	ErrReauthorizationRequired = errors.New("account requires reauthorization")

	// ErrProviderUnsupported means no adapter is registered for the
	// account's provider type.
	ErrProviderUnsupported = errors.New("no provider available for account type")
)

// Summary reports what one sync batch did. Per-message failures are
// counted here, not raised: one bad message never aborts the batch.
type Summary struct {
	Synced  int `json:"synced_count"`
	Skipped int `json:"skipped_count"`
	Errors  int `json:"error_count"`
}

// Store is the persistence surface the engine writes through.
type Store interface {
	GetAccount(ctx context.Context, id string) (*models.ConnectedAccount, error)
	UpdateAccountStatus(ctx context.Context, id string, status models.AccountStatus) error
	UpdateAccountTokens(ctx context.Context, id, accessToken, refreshToken string, expiry time.Time) error
	SaveSyncCursor(ctx context.Context, id, cursor string, syncedAt time.Time) error
	MailExists(ctx context.Context, accountID, externalID string) (bool, error)
	InsertMail(ctx context.Context, m *models.Mail) error
	AppendLog(ctx context.Context, level, event, message, userID string) error
}

// Engine pulls remote messages for a connected account into the local mail
// store. Batches are idempotent (deduplicated on the provider message id)
// and the cursor only advances after the batch has been written, so a crash
// mid-batch re-processes instead of losing mail.
type Engine struct {
	store     Store
	exchanger oauth.Exchanger
	providers map[string]MailProvider
	events    *events.Publisher
	maxBatch  int
	now       func() time.Time
}

func NewEngine(s Store, exchanger oauth.Exchanger, publisher *events.Publisher, maxBatch int) *Engine {
	if maxBatch <= 0 {
		maxBatch = 50
	}
	return &Engine{
		store:     s,
		exchanger: exchanger,
		providers: make(map[string]MailProvider),
		events:    publisher,
		maxBatch:  maxBatch,
		now:       time.Now,
	}
}

// Register installs the adapter for a provider type ("outlook", "gmail").
func (e *Engine) Register(externalType string, p MailProvider) {
	e.providers[externalType] = p
}

// Supports reports whether an adapter is registered for the provider type.
func (e *Engine) Supports(externalType string) bool {
	_, ok := e.providers[externalType]
	return ok
}

// Sync runs one bounded batch for the account. maxMessages <= 0 uses the
// engine default. Account-level failures (reauthorization, provider down)
// abort the call; per-message failures are counted in the summary.
func (e *Engine) Sync(ctx context.Context, accountID string, maxMessages int) (*Summary, error) {
	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	provider, ok := e.providers[account.ExternalType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnsupported, account.ExternalType)
	}

	if maxMessages <= 0 {
		maxMessages = e.maxBatch
	}

	if err := e.store.UpdateAccountStatus(ctx, account.ID, models.AccountSyncing); err != nil {
		return nil, err
	}

	accessToken, err := e.freshAccessToken(ctx, account)
	if err != nil {
		// Refresh failures park the account themselves; anything else
		// must not leave the row stuck in syncing.
		if !errors.Is(err, ErrReauthorizationRequired) {
			_ = e.store.UpdateAccountStatus(ctx, account.ID, models.AccountConnected)
		}
		return nil, err
	}

	messages, nextCursor, err := provider.FetchMessages(ctx, accessToken, account.SyncCursor, maxMessages)
	if err != nil {
		_ = e.store.UpdateAccountStatus(ctx, account.ID, models.AccountConnected)
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	summary := &Summary{}
	for _, msg := range messages {
		switch err := e.ingest(ctx, account, msg); {
		case err == nil:
			summary.Synced++
		case errors.Is(err, errAlreadySynced):
			summary.Skipped++
		default:
			log.Printf("sync: skipping malformed message on account %s: %v", account.ID, err)
			summary.Errors++
		}
	}

	// Advance the cursor only now that the batch is committed.
	if nextCursor == "" {
		nextCursor = account.SyncCursor
	}
	if err := e.store.SaveSyncCursor(ctx, account.ID, nextCursor, e.now().UTC()); err != nil {
		_ = e.store.UpdateAccountStatus(ctx, account.ID, models.AccountConnected)
		return nil, err
	}

	if err := e.events.MailSynced(account.UserID, account.ID, nextCursor,
		summary.Synced, summary.Skipped, summary.Errors); err != nil {
		log.Printf("sync: failed to publish event: %v", err)
	}
	_ = e.store.AppendLog(ctx, "info", "mail.synced",
		fmt.Sprintf("synced %d, skipped %d, errors %d for %s",
			summary.Synced, summary.Skipped, summary.Errors, account.ExternalEmail),
		account.UserID)

	return summary, nil
}

// freshAccessToken returns a usable access token, refreshing it first when
// expired. A failed refresh parks the account in NeedsReauthorization,
// which is terminal until the user repeats the connect flow.
func (e *Engine) freshAccessToken(ctx context.Context, account *models.ConnectedAccount) (string, error) {
	if account.TokenExpiry.IsZero() || e.now().Before(account.TokenExpiry) {
		return account.AccessToken, nil
	}

	ts, err := e.exchanger.Refresh(ctx, account.RefreshToken)
	if err != nil {
		_ = e.store.UpdateAccountStatus(ctx, account.ID, models.AccountNeedsReauth)
		return "", fmt.Errorf("%w: %v", ErrReauthorizationRequired, err)
	}

	if err := e.store.UpdateAccountTokens(ctx, account.ID, ts.AccessToken, ts.RefreshToken, ts.Expiry); err != nil {
		return "", err
	}
	return ts.AccessToken, nil
}

var errAlreadySynced = errors.New("message already synced")

// ingest validates, normalizes and stores one remote message.
func (e *Engine) ingest(ctx context.Context, account *models.ConnectedAccount, msg RemoteMessage) error {
	if msg.ID == "" {
		return errors.New("message has no id")
	}
	if msg.Received.IsZero() {
		return errors.New("message has no received date")
	}

	exists, err := e.store.MailExists(ctx, account.ID, msg.ID)
	if err != nil {
		return err
	}
	if exists {
		return errAlreadySynced
	}

	return e.store.InsertMail(ctx, Normalize(account, msg))
}

// Normalize maps a remote message into the local mail schema.
func Normalize(account *models.ConnectedAccount, msg RemoteMessage) *models.Mail {
	mail := &models.Mail{
		ID:          uuid.NewString(),
		UserID:      account.UserID,
		AccountID:   account.ID,
		ExternalID:  msg.ID,
		Folder:      MapFolder(msg.Folder),
		Sender:      msg.Sender,
		Recipient:   msg.Recipient,
		Subject:     msg.Subject,
		Content:     msg.Body,
		ContentType: msg.BodyType,
		Preview:     msg.Preview,
		Date:        msg.Received.UTC(),
		Read:        msg.Read,
		ThreadID:    ThreadID(msg.ConversationID, msg.Subject),
	}
	if mail.ContentType == "" {
		mail.ContentType = "text"
	}
	if mail.Preview == "" {
		mail.Preview = Preview(msg.Body)
	}

	for _, att := range msg.Attachments {
		mail.Attachments = append(mail.Attachments, models.Attachment{
			ID:       uuid.NewString(),
			MailID:   mail.ID,
			Name:     att.Name,
			MimeType: att.MimeType,
			Size:     att.Size,
			Content:  att.Content,
		})
	}

	mail.Size = EstimateSize(mail)
	return mail
}

// MapFolder translates provider folder names into the local folder set.
// Unknown folders land in the inbox rather than being dropped.
func MapFolder(name string) string {
	switch strings.ToLower(strings.ReplaceAll(name, " ", "")) {
	case "inbox", "":
		return models.FolderInbox
	case "sentitems", "sent":
		return models.FolderSent
	case "junkemail", "junk", "spam":
		return models.FolderSpam
	case "deleteditems", "trash", "deleted":
		return models.FolderDeleted
	default:
		return models.FolderInbox
	}
}

// ThreadID groups a conversation. The provider conversation id is stable
// across replies and preferred; without one, replies are grouped by the
// subject with reply/forward prefixes stripped.
func ThreadID(conversationID, subject string) string {
	if conversationID != "" {
		return conversationID
	}
	s := strings.ToLower(strings.TrimSpace(subject))
	for {
		trimmed := s
		for _, prefix := range []string{"re:", "fw:", "fwd:"} {
			trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
		}
		if trimmed == s {
			break
		}
		s = trimmed
	}
	return "subject:" + s
}

const previewLength = 100

// Preview truncates content into a list snippet.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "..."
}

// EstimateSize approximates the stored payload size: content plus headers
// plus attachments at base64 expansion, mirroring what a raw message would
// occupy.
func EstimateSize(m *models.Mail) int64 {
	size := int64(len(m.Content)) + int64(len(m.Subject)) + int64(len(m.Sender)) + 200
	for _, att := range m.Attachments {
		size += att.Size * 4 / 3
	}
	return size
}
