package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/inbox-ledger/internal/entity"
)

// ErrRefreshFailed means the provider would not issue an access token for the
// stored refresh token, or could not be reached. It ends that user's cycle only.
var ErrRefreshFailed = errors.New("mail: token refresh failed")

type SessionConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string       // defaults to Google's token endpoint
	GmailBaseURL string       // defaults to the public Gmail API
	HTTPClient   *http.Client // base client for token and API calls
}

// Session is an authorized mailbox for one cycle.
type Session struct {
	Mailbox Mailbox
	Token   *oauth2.Token
	// Rotated is set when the provider issued a refresh token different from
	// the stored one. The caller persists it after a successful cycle.
	Rotated bool
}

// Opener opens a mailbox session for a linked account.
type Opener interface {
	Open(ctx context.Context, acct entity.LinkedMailAccount) (*Session, error)
}

type SessionManager struct {
	cfg    SessionConfig
	oauth  *oauth2.Config
	logger *slog.Logger
}

var _ Opener = (*SessionManager)(nil)

func NewSessionManager(cfg SessionConfig, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := google.Endpoint
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	return &SessionManager{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       []string{gmail.GmailModifyScope},
		},
		logger: logger,
	}
}

// Open exchanges the stored refresh token for a fresh access token and builds
// a Gmail client around it. Rotation is reported, not persisted.
func (m *SessionManager) Open(ctx context.Context, acct entity.LinkedMailAccount) (*Session, error) {
	if !acct.HasRefreshToken() {
		return nil, fmt.Errorf("%w: no refresh token for user %s", ErrRefreshFailed, acct.UserID)
	}
	if m.cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.cfg.HTTPClient)
	}

	tok, err := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: acct.RefreshToken}).Token()
	if err != nil {
		m.logger.Warn("token refresh rejected", "user", acct.UserID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrRefreshFailed)
	}
	rotated := tok.RefreshToken != "" && tok.RefreshToken != acct.RefreshToken

	opts := []option.ClientOption{option.WithHTTPClient(m.oauth.Client(ctx, tok))}
	if m.cfg.GmailBaseURL != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimRight(m.cfg.GmailBaseURL, "/")+"/"))
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail client: %w", err)
	}

	m.logger.Debug("mailbox session opened", "user", acct.UserID, "rotated", rotated, "expiry", tok.Expiry)
	return &Session{
		Mailbox: NewGmailMailbox(svc, m.logger),
		Token:   tok,
		Rotated: rotated,
	}, nil
}

// RefreshToken is the refresh token to store after the cycle.
func (s *Session) RefreshToken() string {
	if s.Token == nil {
		return ""
	}
	return s.Token.RefreshToken
}

// AccessToken is the latest short-lived credential.
func (s *Session) AccessToken() string {
	if s.Token == nil {
		return ""
	}
	return s.Token.AccessToken
}
