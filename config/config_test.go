package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")
	t.Setenv("SLACK_SIGNING_SECRET", "sig-secret")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ASSISTANT_ID", "asst_abc")
	t.Setenv("GCP_PROJECT_ID", "proj-1")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.Model != "gpt-4-turbo-2024-04-09" {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("PollInterval = %s", cfg.PollInterval)
	}
	if cfg.RunTimeout != 5*time.Minute {
		t.Errorf("RunTimeout = %s", cfg.RunTimeout)
	}
	if cfg.Jira.TokenURL != "https://auth.atlassian.com/oauth/token" {
		t.Errorf("Jira token URL = %q", cfg.Jira.TokenURL)
	}
	if cfg.Miro.AuthURL != "https://miro.com/oauth/authorize" {
		t.Errorf("Miro auth URL = %q", cfg.Miro.AuthURL)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SLACK_BOT_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing bot token")
	}
}

func TestLoadTrimsAppURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_URL", "https://bot.example.com/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AppURL != "https://bot.example.com" {
		t.Errorf("AppURL = %q", cfg.AppURL)
	}
}

func TestLoadAuthorizedUsers(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AUTHORIZED_USERS", "U1, U2 U3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"U1", "U2", "U3"}
	if len(cfg.AuthorizedUsers) != len(want) {
		t.Fatalf("AuthorizedUsers = %v", cfg.AuthorizedUsers)
	}
	for i, u := range want {
		if cfg.AuthorizedUsers[i] != u {
			t.Errorf("AuthorizedUsers[%d] = %q, want %q", i, cfg.AuthorizedUsers[i], u)
		}
	}
}
