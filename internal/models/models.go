package models

import (
	"time"
)

// UserType distinguishes how an account came to exist.
type UserType string

const (
	UserTypeEmail   UserType = "email"
	UserTypeOutlook UserType = "outlook"
	UserTypeAdmin   UserType = "admin"
)

// User is a PostaDepo account. Unapproved users cannot authenticate.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Approved     bool      `json:"approved"`
	UserType     UserType  `json:"user_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// AccountStatus tracks the sync state machine for a connected account.
type AccountStatus string

const (
	AccountConnected    AccountStatus = "connected"
	AccountSyncing      AccountStatus = "syncing"
	AccountNeedsReauth  AccountStatus = "needs_reauthorization"
)

// ConnectedAccount is an external mailbox bound to a user together with its
// OAuth credentials and sync position. There is at most one row per
// (user_id, external_email); reconnecting the same mailbox refreshes the
// tokens in place.
type ConnectedAccount struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	ExternalType  string        `json:"type"`
	ExternalEmail string        `json:"email"`
	DisplayName   string        `json:"display_name"`
	AccessToken   string        `json:"-"`
	RefreshToken  string        `json:"-"`
	TokenExpiry   time.Time     `json:"-"`
	Status        AccountStatus `json:"status"`
	ConnectedAt   time.Time     `json:"connected_at"`
	LastSyncAt    time.Time     `json:"last_sync_at"`
	SyncCursor    string        `json:"-"`
}

// OAuthState is a single-use token binding an authorization redirect to the
// user who requested it. It is consumed exactly once and rejected after its
// TTL.
type OAuthState struct {
	State     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Folder names for stored mail. "all" is a query view, not a stored folder.
const (
	FolderInbox   = "inbox"
	FolderSent    = "sent"
	FolderSpam    = "spam"
	FolderDeleted = "deleted"
	FolderAll     = "all"
)

// Mail is a normalized message in the local store. AccountID is empty for
// demo mail that has no remote origin. ExternalID is the provider's message
// id and, together with AccountID, the dedupe key for sync.
type Mail struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	AccountID   string       `json:"account_id,omitempty"`
	ExternalID  string       `json:"-"`
	Folder      string       `json:"folder"`
	Sender      string       `json:"sender"`
	Recipient   string       `json:"recipient"`
	Subject     string       `json:"subject"`
	Content     string       `json:"content"`
	ContentType string       `json:"content_type"`
	Preview     string       `json:"preview"`
	Date        time.Time    `json:"date"`
	Read        bool         `json:"read"`
	Important   bool         `json:"important"`
	Size        int64        `json:"size"`
	ThreadID    string       `json:"thread_id"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is stored inline with its mail record.
type Attachment struct {
	ID       string `json:"id"`
	MailID   string `json:"-"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Content  []byte `json:"-"`
}

// SystemLog is an audit entry surfaced on the admin dashboard.
type SystemLog struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Event     string    `json:"event"`
	Message   string    `json:"message"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
