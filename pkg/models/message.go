// Package models defines the shared data model for the aisbot runtime:
// the bus envelopes exchanged with channel adapters, the chat message
// array sent to LLM providers, and the persisted session records.
package models

import (
	"time"
	"unicode/utf8"
)

// ChannelSystem is the reserved channel name for intra-process messages
// such as subagent results and cron firings. Messages on this channel are
// routed back to their origin conversation by the agent loop.
const ChannelSystem = "system"

// Role values used in chat messages and session records.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// InboundMessage is the envelope a channel adapter publishes when a user
// (or a subagent, on the system channel) sends a message.
type InboundMessage struct {
	Channel   string    `json:"channel"`
	SenderID  string    `json:"sender_id"`
	ChatID    string    `json:"chat_id"`
	Content   string    `json:"content"`
	Media     []string  `json:"media,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewInboundMessage creates an inbound envelope stamped with the current time.
func NewInboundMessage(channel, senderID, chatID, content string) *InboundMessage {
	return &InboundMessage{
		Channel:   channel,
		SenderID:  senderID,
		ChatID:    chatID,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// SessionKey derives the conversation identity for this message.
func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// IsSystem reports whether the message originated on the reserved system channel.
func (m *InboundMessage) IsSystem() bool {
	return m.Channel == ChannelSystem
}

// OutboundMessage is the envelope the agent publishes for channel adapters.
// Routing uses only the Channel field.
type OutboundMessage struct {
	Channel   string    `json:"channel"`
	ChatID    string    `json:"chat_id"`
	Content   string    `json:"content"`
	ReplyTo   string    `json:"reply_to,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewOutboundMessage creates an outbound envelope stamped with the current time.
func NewOutboundMessage(channel, chatID, content string) *OutboundMessage {
	return &OutboundMessage{
		Channel:   channel,
		ChatID:    chatID,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// ToolCallRequest is an LLM's request to execute one tool. Arguments hold
// the decoded JSON object supplied by the provider.
type ToolCallRequest struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Usage carries provider-reported token counters for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// LLMResponse is the unified result of one chat completion.
type LLMResponse struct {
	Content      string            `json:"content"`
	ToolCalls    []ToolCallRequest `json:"tool_calls,omitempty"`
	FinishReason string            `json:"finish_reason"`
	Usage        Usage             `json:"usage"`
}

// HasToolCalls reports whether the model requested any tool executions.
func (r *LLMResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// FunctionCall is the function half of an assistant tool-call record.
// Arguments is the JSON-encoded argument object, non-ASCII preserved.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCallRecord is the assistant-side representation of a requested tool
// invocation, in the OpenAI function-calling shape.
type ToolCallRecord struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// ContentPart is one element of a multimodal user message.
type ContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *ImageURLPart `json:"image_url,omitempty"`
}

// ImageURLPart carries an image as a data URL.
type ImageURLPart struct {
	URL string `json:"url"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart builds an image_url content part from a data URL.
func ImagePart(dataURL string) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageURLPart{URL: dataURL}}
}

// ChatMessage is one entry of the prompt array sent to an LLM provider.
//
// Content carries plain text. Parts, when non-empty, carries a multimodal
// user turn (image parts followed by one text part) and takes precedence
// over Content. Compressed and OriginalLength mark history entries the
// context compressor has rewritten.
type ChatMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	Parts      []ContentPart    `json:"parts,omitempty"`
	Name       string           `json:"name,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCallRecord `json:"tool_calls,omitempty"`

	Compressed     bool `json:"_compressed,omitempty"`
	OriginalLength int  `json:"_original_length,omitempty"`
}

// TextLen returns the total number of text characters in the message,
// counting Content and text parts; image parts contribute nothing.
func (m ChatMessage) TextLen() int {
	n := utf8.RuneCountInString(m.Content)
	for _, p := range m.Parts {
		if p.Type == "text" {
			n += utf8.RuneCountInString(p.Text)
		}
	}
	return n
}

// SessionMessage is one persisted transcript record.
type SessionMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ParseSystemChatID splits the chat_id of a system-channel message into its
// origin routing tuple. The convention is "origin_channel:origin_chat_id";
// a bare value falls back to the CLI channel with the whole field as chat id.
func ParseSystemChatID(chatID string) (channel, origin string) {
	for i := 0; i < len(chatID); i++ {
		if chatID[i] == ':' {
			return chatID[:i], chatID[i+1:]
		}
	}
	return "cli", chatID
}
