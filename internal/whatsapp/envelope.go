package whatsapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformed is returned for payloads that are not WhatsApp webhook envelopes.
	ErrMalformed = errors.New("malformed webhook envelope")

	// ErrNoMessage is returned for valid envelopes without an inbound message,
	// such as delivery status callbacks.
	ErrNoMessage = errors.New("webhook carries no message")
)

// ApplyButtonPrefix prefixes the reply-button id attached to job cards.
const ApplyButtonPrefix = "apply:"

// mediaPlaceholder stands in for the text of non-text messages.
const mediaPlaceholder = "[Media/Audio Message]"

// Envelope is the body of a WhatsApp Business Cloud API webhook call.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         Metadata          `json:"metadata"`
	Contacts         []Contact         `json:"contacts"`
	Messages         []Message         `json:"messages"`
	Statuses         []json.RawMessage `json:"statuses"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type Message struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *Reply `json:"button_reply,omitempty"`
		ListReply   *Reply `json:"list_reply,omitempty"`
	} `json:"interactive,omitempty"`
	Button *struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"button,omitempty"`
}

type Reply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Inbound is the part of an envelope the conversation needs.
type Inbound struct {
	Phone         string
	Text          string
	DisplayName   string
	MessageID     string
	PhoneNumberID string
	// ButtonID is set when the user tapped a reply button.
	ButtonID string
}

// ApplyJobID returns the job id of a tapped Apply button.
func (in Inbound) ApplyJobID() (string, bool) {
	id, ok := strings.CutPrefix(in.ButtonID, ApplyButtonPrefix)
	return id, ok && id != ""
}

// Parse unwraps the first message of a webhook body.
func Parse(body []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Object != "whatsapp_business_account" {
		return Inbound{}, fmt.Errorf("%w: object %q", ErrMalformed, env.Object)
	}
	if len(env.Entry) == 0 || len(env.Entry[0].Changes) == 0 {
		return Inbound{}, fmt.Errorf("%w: no entry changes", ErrMalformed)
	}

	v := env.Entry[0].Changes[0].Value
	if len(v.Messages) == 0 {
		return Inbound{}, ErrNoMessage
	}
	m := v.Messages[0]
	if m.From == "" {
		return Inbound{}, fmt.Errorf("%w: message without sender", ErrMalformed)
	}

	in := Inbound{
		Phone:         m.From,
		MessageID:     m.ID,
		PhoneNumberID: v.Metadata.PhoneNumberID,
		DisplayName:   "Unknown User",
	}
	if len(v.Contacts) > 0 && v.Contacts[0].Profile.Name != "" {
		in.DisplayName = v.Contacts[0].Profile.Name
	}

	switch {
	case m.Text != nil:
		in.Text = m.Text.Body
	case m.Interactive != nil && m.Interactive.ButtonReply != nil:
		in.Text = m.Interactive.ButtonReply.Title
		in.ButtonID = m.Interactive.ButtonReply.ID
	case m.Interactive != nil && m.Interactive.ListReply != nil:
		in.Text = m.Interactive.ListReply.Title
		in.ButtonID = m.Interactive.ListReply.ID
	case m.Button != nil:
		in.Text = m.Button.Text
		in.ButtonID = m.Button.Payload
	default:
		in.Text = mediaPlaceholder
	}
	return in, nil
}
