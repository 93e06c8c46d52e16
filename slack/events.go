package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	slacklib "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"go.uber.org/zap"

	"github.com/ronikos/boardmate/assistant"
)

// ChatClient is the slice of the Slack client the gateway posts through.
type ChatClient interface {
	PostThreadReply(channelID, threadTS, text string) error
	PublishHomeTab(userID, miroAuthURL, jiraAuthURL string) error
}

// Assistant runs one full assistant cycle for a user query.
type Assistant interface {
	Process(ctx context.Context, query, userID string) (*assistant.Result, error)
}

// EventsHandler is the inbound gateway for Slack's Events API: it answers URL
// verification, renders the home tab, and hands user messages to the
// assistant in the background so the Slack callback returns immediately.
type EventsHandler struct {
	signingSecret string
	chat          ChatClient
	asst          Assistant
	appURL        string
	authorized    map[string]struct{}
	logger        *zap.Logger
}

func NewEventsHandler(signingSecret, appURL string, authorizedUsers []string, chat ChatClient, asst Assistant, logger *zap.Logger) *EventsHandler {
	var authorized map[string]struct{}
	if len(authorizedUsers) > 0 {
		authorized = make(map[string]struct{}, len(authorizedUsers))
		for _, u := range authorizedUsers {
			authorized[u] = struct{}{}
		}
	}

	return &EventsHandler{
		signingSecret: signingSecret,
		chat:          chat,
		asst:          asst,
		appURL:        appURL,
		authorized:    authorized,
		logger:        logger.Named("slack.events"),
	}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	verifier, err := slacklib.NewSecretsVerifier(r.Header, h.signingSecret)
	if err != nil {
		h.logger.Warn("failed to create secrets verifier", zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if _, err := verifier.Write(body); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := verifier.Ensure(); err != nil {
		h.logger.Warn("signature verification failed", zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		h.logger.Warn("failed to parse event payload", zap.Error(err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(challenge.Challenge))

	case slackevents.CallbackEvent:
		h.handleCallback(event.InnerEvent)
		w.WriteHeader(http.StatusOK)

	default:
		h.logger.Warn("unhandled event envelope type", zap.String("type", event.Type))
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (h *EventsHandler) handleCallback(inner slackevents.EventsAPIInnerEvent) {
	switch ev := inner.Data.(type) {
	case *slackevents.AppHomeOpenedEvent:
		h.publishHomeTab(ev.User)

	case *slackevents.MessageEvent:
		h.handleMessage(ev)

	default:
		h.logger.Debug("ignoring inner event", zap.String("type", inner.Type))
	}
}

func (h *EventsHandler) publishHomeTab(userID string) {
	miroURL := fmt.Sprintf("%s/auth/miro?user_id=%s", h.appURL, userID)
	jiraURL := fmt.Sprintf("%s/auth/jira?user_id=%s", h.appURL, userID)
	if err := h.chat.PublishHomeTab(userID, miroURL, jiraURL); err != nil {
		h.logger.Error("failed to publish home tab", zap.String("user_id", userID), zap.Error(err))
		return
	}
	h.logger.Info("home tab updated", zap.String("user_id", userID))
}

func (h *EventsHandler) handleMessage(ev *slackevents.MessageEvent) {
	// Never respond to bots (including ourselves) or message subtypes like
	// message_changed.
	if ev.BotID != "" || ev.SubType != "" {
		return
	}
	if ev.User == "" || ev.Text == "" {
		return
	}
	if h.authorized != nil {
		if _, ok := h.authorized[ev.User]; !ok {
			h.logger.Warn("unauthorized user message ignored", zap.String("user_id", ev.User))
			return
		}
	}

	// Replies land in the thread of the originating message.
	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp
	}

	h.logger.Debug("dispatching user query",
		zap.String("user_id", ev.User),
		zap.String("channel", ev.Channel))

	go h.processAndRespond(ev.Channel, threadTS, ev.User, ev.Text)
}

func (h *EventsHandler) processAndRespond(channelID, threadTS, userID, query string) {
	// The orchestrator enforces the run timeout; the gateway only needs a
	// root context for the background cycle.
	result, err := h.asst.Process(context.Background(), query, userID)
	if err != nil {
		h.logger.Error("assistant processing failed", zap.String("user_id", userID), zap.Error(err))
		h.reply(channelID, threadTS, "Sorry, I couldn't process your request.")
		return
	}
	if len(result.Texts) == 0 {
		h.reply(channelID, threadTS, "Sorry, I couldn't process your request.")
		return
	}

	for _, text := range result.Texts {
		h.reply(channelID, threadTS, text)
	}
}

func (h *EventsHandler) reply(channelID, threadTS, text string) {
	if err := h.chat.PostThreadReply(channelID, threadTS, text); err != nil {
		h.logger.Error("failed to post reply", zap.String("channel", channelID), zap.Error(err))
	}
}
