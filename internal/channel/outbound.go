package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// OutboundPolicy configures how outbound messages are chunked and retried.
type OutboundPolicy struct {
	TextChunkLimit int `json:"text_chunk_limit,omitempty"`
	RetryMax       int `json:"retry_max,omitempty"`
	RetryBackoffMs int `json:"retry_backoff_ms,omitempty"`
}

// NormalizeOutboundPolicy fills zero-value fields with defaults.
func NormalizeOutboundPolicy(policy OutboundPolicy) OutboundPolicy {
	if policy.TextChunkLimit <= 0 {
		policy.TextChunkLimit = 2000
	}
	if policy.RetryMax <= 0 {
		policy.RetryMax = 3
	}
	if policy.RetryBackoffMs <= 0 {
		policy.RetryBackoffMs = 500
	}
	return policy
}

// Outbound wraps a Sender: long text is split into several messages and
// failed sends are retried with linear backoff.
type Outbound struct {
	sender Sender
	policy OutboundPolicy
	logger *slog.Logger
}

func NewOutbound(log *slog.Logger, sender Sender, policy OutboundPolicy) *Outbound {
	if log == nil {
		log = slog.Default()
	}
	return &Outbound{
		sender: sender,
		policy: NormalizeOutboundPolicy(policy),
		logger: log.With(slog.String("component", "outbound")),
	}
}

// Send implements Sender.
func (o *Outbound) Send(ctx context.Context, msg OutboundMessage) error {
	messages, err := buildOutboundMessages(msg, o.policy)
	if err != nil {
		return err
	}
	for _, item := range messages {
		if err := o.sendWithRetry(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// buildOutboundMessages sends attachments first, then the text chunks. The
// keyboard goes with the last message only.
func buildOutboundMessages(msg OutboundMessage, policy OutboundPolicy) ([]OutboundMessage, error) {
	if strings.TrimSpace(msg.Target) == "" {
		return nil, fmt.Errorf("outbound target is required")
	}
	if msg.Message.IsEmpty() && msg.Message.Keyboard == nil {
		return nil, fmt.Errorf("message is required")
	}
	chunks := ChunkText(msg.Message.Text, policy.TextChunkLimit)
	if len(chunks) <= 1 {
		return []OutboundMessage{msg}, nil
	}
	out := make([]OutboundMessage, 0, len(chunks)+1)
	if len(msg.Message.Attachments) > 0 {
		out = append(out, OutboundMessage{
			Target:  msg.Target,
			Message: Message{ID: msg.Message.ID, Attachments: msg.Message.Attachments},
		})
	}
	for _, chunk := range chunks {
		out = append(out, OutboundMessage{Target: msg.Target, Message: Message{Text: chunk}})
	}
	out[len(out)-1].Message.Keyboard = msg.Message.Keyboard
	return out, nil
}

func (o *Outbound) sendWithRetry(ctx context.Context, msg OutboundMessage) error {
	var lastErr error
	for i := 0; i < o.policy.RetryMax; i++ {
		err := o.sender.Send(ctx, msg)
		if err == nil {
			return nil
		}
		lastErr = err
		o.logger.Warn("send outbound retry",
			slog.String("target", msg.Target),
			slog.Int("attempt", i+1),
			slog.Any("error", err),
		)
		if i == o.policy.RetryMax-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * time.Duration(o.policy.RetryBackoffMs) * time.Millisecond):
		}
	}
	return fmt.Errorf("send outbound failed after retries: %w", lastErr)
}

// ChunkText splits text at newline boundaries, respecting the rune limit.
func ChunkText(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if limit <= 0 || runeLen(trimmed) <= limit {
		return []string{trimmed}
	}
	lines := strings.Split(trimmed, "\n")
	chunks := make([]string, 0)
	buf := make([]string, 0, len(lines))
	bufLen := 0
	for _, line := range lines {
		lineLen := runeLen(line)
		sepLen := 0
		if len(buf) > 0 {
			sepLen = 1
		}
		if bufLen+sepLen+lineLen <= limit {
			buf = append(buf, line)
			bufLen += sepLen + lineLen
			continue
		}
		if len(buf) > 0 {
			chunks = append(chunks, strings.Join(buf, "\n"))
			buf = buf[:0]
			bufLen = 0
		}
		if lineLen <= limit {
			buf = append(buf, line)
			bufLen = lineLen
			continue
		}
		chunks = append(chunks, splitLongLine(line, limit)...)
	}
	if len(buf) > 0 {
		chunks = append(chunks, strings.Join(buf, "\n"))
	}
	return chunks
}

func runeLen(value string) int {
	return len([]rune(value))
}

func splitLongLine(line string, limit int) []string {
	runes := []rune(line)
	chunks := make([]string, 0)
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		segment := strings.TrimSpace(string(runes[start:end]))
		if segment == "" {
			continue
		}
		chunks = append(chunks, segment)
	}
	return chunks
}
