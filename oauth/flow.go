package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/ronikos/boardmate/config"
	"github.com/ronikos/boardmate/store"
)

var (
	// ErrMissingParams indicates the callback arrived without state or code.
	ErrMissingParams = errors.New("oauth: missing state or code parameter")

	// ErrStateMismatch indicates the callback state did not match the stored
	// CSRF value; the handshake must be restarted.
	ErrStateMismatch = errors.New("oauth: state validation failed")

	// ErrProviderDenied indicates the provider redirected back with an error
	// instead of an authorization code.
	ErrProviderDenied = errors.New("oauth: provider returned an error")
)

// Flow drives the authorization-code grant for one provider. Miro and Jira
// flows are structurally identical; they differ only in endpoints, scopes and
// the extra authorization parameters Atlassian requires.
type Flow struct {
	service   string // store key for credentials, e.g. "miro", "jira"
	stateKey  string // fixed per-provider key for the CSRF state document
	oauthCfg  *oauth2.Config
	extraAuth []oauth2.AuthCodeOption
	tokens    store.TokenStore
	logger    *zap.Logger
}

// NewMiroFlow builds the Miro authorization flow.
func NewMiroFlow(p config.OAuthProvider, tokens store.TokenStore, logger *zap.Logger) *Flow {
	return &Flow{
		service:  "miro",
		stateKey: "miro_auth_state",
		oauthCfg: oauthConfig(p),
		tokens:   tokens,
		logger:   logger.Named("oauth.miro"),
	}
}

// NewJiraFlow builds the Jira (Atlassian 3LO) authorization flow.
func NewJiraFlow(p config.OAuthProvider, tokens store.TokenStore, logger *zap.Logger) *Flow {
	return &Flow{
		service:  "jira",
		stateKey: "jira_auth_state",
		oauthCfg: oauthConfig(p),
		extraAuth: []oauth2.AuthCodeOption{
			oauth2.SetAuthURLParam("audience", "api.atlassian.com"),
			oauth2.SetAuthURLParam("prompt", "consent"),
		},
		tokens: tokens,
		logger: logger.Named("oauth.jira"),
	}
}

func oauthConfig(p config.OAuthProvider) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		Scopes:       p.Scopes,
		RedirectURL:  p.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
			// Both Miro and Atlassian expect client credentials in the
			// form-encoded body, not a basic-auth header.
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// Service returns the provider's credential-store key.
func (f *Flow) Service() string {
	return f.service
}

// BeginAuth generates a fresh CSRF state, persists it together with the
// requesting user's ID, and returns the provider authorization URL to
// redirect the browser to.
func (f *Flow) BeginAuth(ctx context.Context, userID string) (string, error) {
	state := uuid.NewString()
	if err := f.tokens.SaveAuthState(ctx, f.stateKey, store.AuthState{State: state, UserID: userID}); err != nil {
		return "", fmt.Errorf("store auth state: %w", err)
	}

	authURL := f.oauthCfg.AuthCodeURL(state, f.extraAuth...)
	f.logger.Debug("authorization started",
		zap.String("user_id", userID),
		zap.String("auth_url", authURL))
	return authURL, nil
}

// HandleCallback validates the provider redirect, exchanges the code for a
// token pair and persists it for the user who started the handshake.
func (f *Flow) HandleCallback(ctx context.Context, query url.Values) error {
	if errParam := query.Get("error"); errParam != "" {
		f.logger.Warn("provider returned error on callback", zap.String("error", errParam))
		return fmt.Errorf("%w: %s", ErrProviderDenied, errParam)
	}

	state := query.Get("state")
	code := query.Get("code")
	if state == "" || code == "" {
		return ErrMissingParams
	}

	stored, err := f.tokens.AuthState(ctx, f.stateKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrStateMismatch
		}
		return fmt.Errorf("load auth state: %w", err)
	}
	if state != stored.State {
		f.logger.Warn("state mismatch on callback", zap.String("user_id", stored.UserID))
		return ErrStateMismatch
	}

	tok, err := f.oauthCfg.Exchange(ctx, code)
	if err != nil {
		f.logger.Error("token exchange failed", zap.Error(err))
		return fmt.Errorf("exchange code: %w", err)
	}
	if tok.AccessToken == "" || tok.RefreshToken == "" {
		return fmt.Errorf("token response missing access or refresh token")
	}

	if err := f.tokens.SaveTokens(ctx, stored.UserID, f.service, store.Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}); err != nil {
		return fmt.Errorf("store tokens: %w", err)
	}

	f.logger.Info("authorization complete", zap.String("user_id", stored.UserID))
	return nil
}
