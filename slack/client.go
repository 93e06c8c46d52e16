package slack

import (
	"fmt"

	slacklib "github.com/slack-go/slack"
)

// Client wraps the Slack Web API calls the bot needs.
type Client struct {
	api *slacklib.Client
}

func NewClient(botToken string) *Client {
	return &Client{api: slacklib.New(botToken)}
}

// PostMessage posts markdown text to a channel and returns its timestamp.
func (c *Client) PostMessage(channelID, text string) (string, error) {
	_, ts, err := c.api.PostMessage(channelID, slacklib.MsgOptionText(text, false))
	if err != nil {
		return "", fmt.Errorf("failed to post message: %w", err)
	}
	return ts, nil
}

// PostThreadReply posts text as a reply inside an existing thread.
func (c *Client) PostThreadReply(channelID, threadTS, text string) error {
	_, _, err := c.api.PostMessage(channelID, slacklib.MsgOptionText(text, false), slacklib.MsgOptionTS(threadTS))
	if err != nil {
		return fmt.Errorf("failed to post thread reply: %w", err)
	}
	return nil
}

// PostDirectMessage sends a message to a user's DM channel. Slack accepts the
// user ID directly as the channel for bot DMs.
func (c *Client) PostDirectMessage(userID, text string) error {
	_, _, err := c.api.PostMessage(userID, slacklib.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("failed to post direct message: %w", err)
	}
	return nil
}

// PublishHomeTab renders the app home view for a user with the two
// authentication buttons. miroAuthURL and jiraAuthURL are the auth-begin
// endpoints of this service with the user's ID embedded.
func (c *Client) PublishHomeTab(userID, miroAuthURL, jiraAuthURL string) error {
	welcome := slacklib.NewSectionBlock(
		slacklib.NewTextBlockObject(slacklib.MarkdownType,
			"Welcome to the Slack Integration! Please authenticate with the services you need:",
			false, false),
		nil, nil,
	)

	miroBtn := slacklib.NewButtonBlockElement("miro_auth", "miro_auth",
		slacklib.NewTextBlockObject(slacklib.PlainTextType, "Authenticate with Miro", false, false))
	miroBtn.URL = miroAuthURL

	jiraBtn := slacklib.NewButtonBlockElement("jira_auth", "jira_auth",
		slacklib.NewTextBlockObject(slacklib.PlainTextType, "Authenticate with Jira", false, false))
	jiraBtn.URL = jiraAuthURL

	view := slacklib.HomeTabViewRequest{
		Type: slacklib.VTHomeTab,
		Blocks: slacklib.Blocks{
			BlockSet: []slacklib.Block{
				welcome,
				slacklib.NewActionBlock("auth_actions", miroBtn, jiraBtn),
			},
		},
	}

	if _, err := c.api.PublishView(userID, view, ""); err != nil {
		return fmt.Errorf("failed to publish home tab: %w", err)
	}
	return nil
}
