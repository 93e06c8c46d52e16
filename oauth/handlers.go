package oauth

import (
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// BeginAuthHandler serves GET /auth/<provider>?user_id=<id>: it starts the
// handshake and redirects the browser to the provider's authorization page.
func (f *Flow) BeginAuthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "Missing user_id parameter.", http.StatusBadRequest)
			return
		}

		authURL, err := f.BeginAuth(r.Context(), userID)
		if err != nil {
			f.logger.Error("failed to begin authorization", zap.Error(err))
			http.Error(w, "Failed to start authorization.", http.StatusInternalServerError)
			return
		}

		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// CallbackHandler serves the provider redirect. successMessage is the plain
// text shown in the browser when the handshake completes.
func (f *Flow) CallbackHandler(successMessage string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := f.HandleCallback(r.Context(), r.URL.Query())
		if err == nil {
			_, _ = w.Write([]byte(successMessage))
			return
		}

		switch {
		case errors.Is(err, ErrMissingParams):
			http.Error(w, "Missing state or code parameter.", http.StatusBadRequest)
		case errors.Is(err, ErrStateMismatch):
			http.Error(w, "State validation failed.", http.StatusBadRequest)
		case errors.Is(err, ErrProviderDenied):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			f.logger.Error("callback processing failed", zap.Error(err))
			http.Error(w, "Authorization failed.", http.StatusBadRequest)
		}
	}
}
