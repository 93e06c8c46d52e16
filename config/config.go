package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultPort         = "8080"
	defaultModel        = "gpt-4-turbo-2024-04-09"
	defaultPollInterval = time.Second
	defaultRunTimeout   = 5 * time.Minute

	defaultMiroAuthURL  = "https://miro.com/oauth/authorize"
	defaultMiroTokenURL = "https://api.miro.com/v1/oauth/token"
	defaultJiraAuthURL  = "https://auth.atlassian.com/authorize"
	defaultJiraTokenURL = "https://auth.atlassian.com/oauth/token"
)

// OAuthProvider holds the OAuth 2.0 settings for one external service.
type OAuthProvider struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
}

// Configured returns true when client credentials are present.
func (p OAuthProvider) Configured() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type Config struct {
	SlackBotToken      string
	SlackSigningSecret string

	OpenAIAPIKey string
	AssistantID  string
	Model        string

	Miro OAuthProvider
	Jira OAuthProvider

	// JiraCloudID identifies the Atlassian site for api.atlassian.com calls.
	JiraCloudID string

	GCPProjectID string

	// AppURL is the externally reachable base URL of this service, used to
	// build the auth-begin links on the Slack home tab.
	AppURL string

	Port        string
	DownloadDir string

	// AuthorizedUsers restricts which Slack users may talk to the assistant.
	// Empty means every non-bot user is allowed.
	AuthorizedUsers []string

	PollInterval time.Duration
	RunTimeout   time.Duration
}

// Load reads configuration from config.yaml (optional) and the environment.
// Environment variables use the upper-snake form of the keys below, e.g.
// SLACK_BOT_TOKEN, OPENAI_API_KEY, MIRO_CLIENT_ID.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; everything can come from the env.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetDefault("port", defaultPort)
	v.SetDefault("model", defaultModel)
	v.SetDefault("download_dir", ".")
	v.SetDefault("poll_interval", defaultPollInterval)
	v.SetDefault("run_timeout", defaultRunTimeout)
	v.SetDefault("miro_auth_url", defaultMiroAuthURL)
	v.SetDefault("miro_token_url", defaultMiroTokenURL)
	v.SetDefault("jira_auth_url", defaultJiraAuthURL)
	v.SetDefault("token_url", defaultJiraTokenURL)

	cfg := &Config{
		SlackBotToken:      v.GetString("slack_bot_token"),
		SlackSigningSecret: v.GetString("slack_signing_secret"),
		OpenAIAPIKey:       v.GetString("openai_api_key"),
		AssistantID:        v.GetString("assistant_id"),
		Model:              v.GetString("model"),
		Miro: OAuthProvider{
			ClientID:     v.GetString("miro_client_id"),
			ClientSecret: v.GetString("miro_client_secret"),
			Scopes:       splitList(v.GetString("miro_scopes")),
			RedirectURI:  v.GetString("miro_redirect_uri"),
			AuthURL:      v.GetString("miro_auth_url"),
			TokenURL:     v.GetString("miro_token_url"),
		},
		Jira: OAuthProvider{
			ClientID:     v.GetString("jira_client_id"),
			ClientSecret: v.GetString("jira_client_secret"),
			Scopes:       splitList(v.GetString("jira_scopes")),
			RedirectURI:  v.GetString("redirect_uri"),
			AuthURL:      v.GetString("jira_auth_url"),
			TokenURL:     v.GetString("token_url"),
		},
		JiraCloudID:     v.GetString("cloud_id"),
		GCPProjectID:    v.GetString("gcp_project_id"),
		AppURL:          strings.TrimRight(v.GetString("app_url"), "/"),
		Port:            v.GetString("port"),
		DownloadDir:     v.GetString("download_dir"),
		AuthorizedUsers: splitList(v.GetString("authorized_users")),
		PollInterval:    v.GetDuration("poll_interval"),
		RunTimeout:      v.GetDuration("run_timeout"),
	}

	if cfg.SlackBotToken == "" {
		return nil, fmt.Errorf("SLACK_BOT_TOKEN is required")
	}
	if cfg.SlackSigningSecret == "" {
		return nil, fmt.Errorf("SLACK_SIGNING_SECRET is required")
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.AssistantID == "" {
		return nil, fmt.Errorf("ASSISTANT_ID is required")
	}
	if cfg.GCPProjectID == "" {
		return nil, fmt.Errorf("GCP_PROJECT_ID is required")
	}

	return cfg, nil
}

// splitList parses a comma- or space-separated list value.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' '
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
