// Package synology speaks the Synology Chat outgoing and incoming webhook protocols.
package synology

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// DefaultUsername labels messages whose webhook carries no username.
const DefaultUsername = "Неизвестный пользователь"

var (
	// ErrNoData is returned when the webhook request carries no form fields.
	ErrNoData = errors.New("synology: no form data")
	// ErrEmptyText is returned when the message text is empty after trimming.
	ErrEmptyText = errors.New("synology: message has no text")
)

// Incoming is a message delivered by a Synology Chat outgoing webhook.
type Incoming struct {
	Text      string
	UserID    string
	Username  string
	Channel   string
	Token     string
	Timestamp string
}

// ParseWebhook reads the form fields of an outgoing webhook request.
func ParseWebhook(r *http.Request) (Incoming, error) {
	if err := r.ParseForm(); err != nil {
		return Incoming{}, fmt.Errorf("synology: parse form: %w", err)
	}
	if len(r.PostForm) == 0 && len(r.Form) == 0 {
		return Incoming{}, ErrNoData
	}

	in := Incoming{
		Text:      strings.TrimSpace(r.FormValue("text")),
		UserID:    strings.TrimSpace(r.FormValue("user_id")),
		Username:  r.FormValue("username"),
		Channel:   r.FormValue("channel_name"),
		Token:     r.FormValue("token"),
		Timestamp: r.FormValue("timestamp"),
	}
	if _, ok := r.Form["username"]; !ok {
		in.Username = DefaultUsername
	}
	if in.Text == "" {
		return in, ErrEmptyText
	}
	return in, nil
}
