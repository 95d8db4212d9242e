// Package channel provides the transport-neutral message model the bot speaks,
// plus the contracts chat adapters such as Telegram implement.
package channel

import (
	"strconv"
	"strings"
	"time"
)

// ChannelType identifies a messaging platform (e.g., "telegram").
type ChannelType string

// String returns the channel type as a plain string.
func (c ChannelType) String() string {
	return string(c)
}

// Identity represents a sender's identity on a channel.
type Identity struct {
	SubjectID   string
	DisplayName string
	Attributes  map[string]string
}

// Attribute returns the trimmed value for the given key, or empty string if absent.
func (i Identity) Attribute(key string) string {
	if i.Attributes == nil {
		return ""
	}
	return strings.TrimSpace(i.Attributes[key])
}

// UserID parses SubjectID as a numeric platform user id.
func (i Identity) UserID() (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(i.SubjectID), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Conversation holds metadata about the chat the message arrived in.
type Conversation struct {
	ID   string
	Type string
	Name string
}

// InboundMessage is a message received from an external channel.
type InboundMessage struct {
	Channel      ChannelType
	Message      Message
	Sender       Identity
	Conversation Conversation
	ReceivedAt   time.Time
}

// ReplyTarget is where answers to this message are delivered.
func (m InboundMessage) ReplyTarget() string {
	if id := strings.TrimSpace(m.Conversation.ID); id != "" {
		return id
	}
	return strings.TrimSpace(m.Sender.SubjectID)
}

// OutboundMessage pairs a delivery target with the message content.
type OutboundMessage struct {
	Target  string  `json:"target"`
	Message Message `json:"message"`
}

// AttachmentType classifies the kind of binary attachment.
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentVideo AttachmentType = "video"
	AttachmentFile  AttachmentType = "file"
)

// Attachment represents a file attached to a message. PlatformKey is the
// opaque handle the platform accepts to re-deliver the same content.
type Attachment struct {
	Type        AttachmentType `json:"type"`
	PlatformKey string         `json:"platform_key,omitempty"`
	Name        string         `json:"name,omitempty"`
	Size        int64          `json:"size,omitempty"`
	Mime        string         `json:"mime,omitempty"`
	Caption     string         `json:"caption,omitempty"`
}

// Reference returns the trimmed platform key.
func (a Attachment) Reference() string {
	return strings.TrimSpace(a.PlatformKey)
}

// HasReference reports whether the attachment can be re-sent.
func (a Attachment) HasReference() bool {
	return a.Reference() != ""
}

// Keyboard is a fixed grid of textual reply choices. Remove hides any
// keyboard the client is currently showing.
type Keyboard struct {
	Rows    [][]string `json:"rows,omitempty"`
	OneTime bool       `json:"one_time,omitempty"`
	Remove  bool       `json:"remove,omitempty"`
}

// Message is the unified message structure used across all channels.
type Message struct {
	ID          string       `json:"id,omitempty"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Keyboard    *Keyboard    `json:"keyboard,omitempty"`
}

// IsEmpty reports whether the message carries no content.
func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Text) == "" && len(m.Attachments) == 0
}
