package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/studyshelf/catalogbot/internal/channel"
)

// Type is the channel type served by this adapter.
const Type channel.ChannelType = "telegram"

const (
	telegramMaxMessageLength = 4096
	telegramMaxCaptionLength = 1024
	defaultPollTimeout       = 30
)

// Config holds the credentials and polling options for one bot.
type Config struct {
	BotToken    string
	PollTimeout int
}

// TelegramAdapter implements channel.Adapter, channel.Sender and channel.Receiver for Telegram.
type TelegramAdapter struct {
	logger *slog.Logger
	cfg    Config
	mu     sync.Mutex
	bot    *tgbotapi.BotAPI
}

// NewTelegramAdapter creates a TelegramAdapter with the given logger.
func NewTelegramAdapter(log *slog.Logger, cfg Config) *TelegramAdapter {
	if log == nil {
		log = slog.Default()
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	adapter := &TelegramAdapter{
		logger: log.With(slog.String("adapter", "telegram")),
		cfg:    cfg,
	}
	_ = tgbotapi.SetLogger(&slogBotLogger{log: adapter.logger})
	return adapter
}

// Type returns the Telegram channel type.
func (a *TelegramAdapter) Type() channel.ChannelType {
	return Type
}

var getOrCreateBotForTest func(a *TelegramAdapter) (*tgbotapi.BotAPI, error)

func (a *TelegramAdapter) getOrCreateBot() (*tgbotapi.BotAPI, error) {
	if getOrCreateBotForTest != nil {
		return getOrCreateBotForTest(a)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bot != nil {
		return a.bot, nil
	}
	token := strings.TrimSpace(a.cfg.BotToken)
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		a.logger.Error("create bot failed", slog.Any("error", err))
		return nil, err
	}
	a.bot = bot
	a.logger.Info("bot authorized", slog.String("username", bot.Self.UserName))
	return bot, nil
}

// Connect starts long polling and hands every usable message to handler in
// arrival order. The handler is expected to return quickly.
func (a *TelegramAdapter) Connect(ctx context.Context, handler channel.InboundHandler) (channel.Connection, error) {
	bot, err := a.getOrCreateBot()
	if err != nil {
		return nil, err
	}
	a.logger.Info("start", slog.Int("poll_timeout", a.cfg.PollTimeout))

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = a.cfg.PollTimeout
	updateConfig.AllowedUpdates = []string{"message"}
	updates := bot.GetUpdatesChan(updateConfig)
	connCtx, cancel := context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-connCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					a.logger.Info("updates channel closed")
					return
				}
				msg, ok := buildInboundMessage(update.Message)
				if !ok {
					continue
				}
				a.logger.Debug(
					"inbound received",
					slog.String("chat_id", msg.Conversation.ID),
					slog.String("user_id", msg.Sender.SubjectID),
					slog.String("username", msg.Sender.Attribute("username")),
					slog.Int("attachments", len(msg.Message.Attachments)),
				)
				if err := handler(connCtx, msg); err != nil {
					a.logger.Error("handle inbound failed", slog.String("user_id", msg.Sender.SubjectID), slog.Any("error", err))
				}
			}
		}
	}()

	stop := func(_ context.Context) error {
		a.logger.Info("stop")
		bot.StopReceivingUpdates()
		cancel()
		// Drain remaining updates so the library's polling goroutine can
		// finish writing and exit.
		for range updates {
		}
		return nil
	}
	return channel.NewConnection(Type, stop), nil
}

// Send delivers text, attachments and an optional reply keyboard to a chat.
func (a *TelegramAdapter) Send(ctx context.Context, msg channel.OutboundMessage) error {
	bot, err := a.getOrCreateBot()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sendOutbound(bot, msg); err != nil {
		a.logger.Error("send failed", slog.String("target", msg.Target), slog.Any("error", err))
		return err
	}
	return nil
}

// chattableSender is the subset of *tgbotapi.BotAPI used for delivery.
type chattableSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

func sendOutbound(bot chattableSender, msg channel.OutboundMessage) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(msg.Target), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram target must be a chat_id")
	}
	if msg.Message.IsEmpty() {
		return fmt.Errorf("message is required")
	}
	markup := buildReplyMarkup(msg.Message.Keyboard)
	text := strings.TrimSpace(msg.Message.Text)
	if len(msg.Message.Attachments) == 0 {
		return sendTelegramText(bot, chatID, text, markup)
	}
	for i, att := range msg.Message.Attachments {
		var attMarkup any
		// The keyboard rides on the last message of the batch.
		if i == len(msg.Message.Attachments)-1 && text == "" {
			attMarkup = markup
		}
		if err := sendTelegramAttachment(bot, chatID, att, attMarkup); err != nil {
			return err
		}
	}
	if text != "" {
		return sendTelegramText(bot, chatID, text, markup)
	}
	return nil
}

func sendTelegramText(bot chattableSender, chatID int64, text string, markup any) error {
	message := tgbotapi.NewMessage(chatID, truncateTelegramText(sanitizeTelegramText(text), telegramMaxMessageLength))
	if markup != nil {
		message.ReplyMarkup = markup
	}
	_, err := bot.Send(message)
	return err
}

func sendTelegramAttachment(bot chattableSender, chatID int64, att channel.Attachment, markup any) error {
	if !att.HasReference() {
		return fmt.Errorf("attachment reference is required")
	}
	file := tgbotapi.FileID(att.Reference())
	caption := truncateTelegramText(sanitizeTelegramText(strings.TrimSpace(att.Caption)), telegramMaxCaptionLength)
	var err error
	switch att.Type {
	case channel.AttachmentImage:
		photo := tgbotapi.NewPhoto(chatID, file)
		photo.Caption = caption
		if markup != nil {
			photo.ReplyMarkup = markup
		}
		_, err = bot.Send(photo)
	case channel.AttachmentVideo:
		video := tgbotapi.NewVideo(chatID, file)
		video.Caption = caption
		if markup != nil {
			video.ReplyMarkup = markup
		}
		_, err = bot.Send(video)
	case channel.AttachmentFile, "":
		return sendTelegramDocument(bot, chatID, file, caption, markup)
	default:
		return fmt.Errorf("unsupported attachment type: %s", att.Type)
	}
	if err == nil {
		return nil
	}
	// A file id obtained from a document upload is rejected by sendPhoto and
	// sendVideo even when the name looks like media.
	if docErr := sendTelegramDocument(bot, chatID, file, caption, markup); docErr != nil {
		return fmt.Errorf("send %s: %w (as document: %v)", att.Type, err, docErr)
	}
	return nil
}

func sendTelegramDocument(bot chattableSender, chatID int64, file tgbotapi.RequestFileData, caption string, markup any) error {
	document := tgbotapi.NewDocument(chatID, file)
	document.Caption = caption
	if markup != nil {
		document.ReplyMarkup = markup
	}
	_, err := bot.Send(document)
	return err
}

func buildReplyMarkup(kb *channel.Keyboard) any {
	if kb == nil {
		return nil
	}
	if kb.Remove {
		return tgbotapi.NewRemoveKeyboard(false)
	}
	rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, label := range row {
			if label = strings.TrimSpace(label); label != "" {
				buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
			}
		}
		if len(buttons) > 0 {
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(buttons...))
		}
	}
	if len(rows) == 0 {
		return nil
	}
	markup := tgbotapi.NewReplyKeyboard(rows...)
	markup.OneTimeKeyboard = kb.OneTime
	return markup
}

// buildInboundMessage converts a Telegram message from a user. Messages with
// neither text nor a supported attachment are dropped.
func buildInboundMessage(m *tgbotapi.Message) (channel.InboundMessage, bool) {
	if m == nil || m.From == nil || m.From.IsBot {
		return channel.InboundMessage{}, false
	}
	text := strings.TrimSpace(m.Text)
	attachments := collectTelegramAttachments(m)
	if text == "" && len(attachments) == 0 {
		return channel.InboundMessage{}, false
	}
	subjectID, displayName, attrs := resolveTelegramSender(m)
	conv := channel.Conversation{}
	if m.Chat != nil {
		conv.ID = strconv.FormatInt(m.Chat.ID, 10)
		conv.Type = strings.TrimSpace(m.Chat.Type)
		conv.Name = strings.TrimSpace(m.Chat.Title)
	}
	return channel.InboundMessage{
		Channel: Type,
		Message: channel.Message{
			ID:          strconv.Itoa(m.MessageID),
			Text:        text,
			Attachments: attachments,
		},
		Sender: channel.Identity{
			SubjectID:   subjectID,
			DisplayName: displayName,
			Attributes:  attrs,
		},
		Conversation: conv,
		ReceivedAt:   time.Unix(int64(m.Date), 0).UTC(),
	}, true
}

func resolveTelegramSender(msg *tgbotapi.Message) (string, string, map[string]string) {
	attrs := map[string]string{}
	if msg == nil {
		return "", "", attrs
	}
	if msg.Chat != nil {
		attrs["chat_id"] = strconv.FormatInt(msg.Chat.ID, 10)
	}
	if msg.From == nil {
		return "", "", attrs
	}
	userID := strconv.FormatInt(msg.From.ID, 10)
	attrs["user_id"] = userID
	username := strings.TrimSpace(msg.From.UserName)
	if username != "" {
		attrs["username"] = username
	}
	displayName := username
	if displayName == "" {
		displayName = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	}
	return userID, displayName, attrs
}

func collectTelegramAttachments(msg *tgbotapi.Message) []channel.Attachment {
	if msg == nil {
		return nil
	}
	attachments := make([]channel.Attachment, 0, 1)
	if len(msg.Photo) > 0 {
		photo := pickTelegramPhoto(msg.Photo)
		attachments = append(attachments, channel.Attachment{
			Type:        channel.AttachmentImage,
			PlatformKey: strings.TrimSpace(photo.FileID),
			Size:        int64(photo.FileSize),
		})
	}
	if msg.Document != nil {
		attachments = append(attachments, channel.Attachment{
			Type:        channel.AttachmentFile,
			PlatformKey: strings.TrimSpace(msg.Document.FileID),
			Name:        strings.TrimSpace(msg.Document.FileName),
			Mime:        strings.TrimSpace(msg.Document.MimeType),
			Size:        int64(msg.Document.FileSize),
		})
	}
	if msg.Video != nil {
		attachments = append(attachments, channel.Attachment{
			Type:        channel.AttachmentVideo,
			PlatformKey: strings.TrimSpace(msg.Video.FileID),
			Name:        strings.TrimSpace(msg.Video.FileName),
			Mime:        strings.TrimSpace(msg.Video.MimeType),
			Size:        int64(msg.Video.FileSize),
		})
	}
	caption := strings.TrimSpace(msg.Caption)
	if caption != "" {
		for i := range attachments {
			attachments[i].Caption = caption
		}
	}
	return attachments
}

func pickTelegramPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	if len(items) == 0 {
		return tgbotapi.PhotoSize{}
	}
	best := items[0]
	for _, item := range items[1:] {
		if item.FileSize > best.FileSize {
			best = item
			continue
		}
		if item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}

// sanitizeTelegramText ensures text is valid UTF-8 for the Telegram API.
func sanitizeTelegramText(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

// truncateTelegramText cuts text to limit bytes on a rune boundary, appending "...".
func truncateTelegramText(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit - 3
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

// slogBotLogger routes the library's internal logging into slog.
type slogBotLogger struct {
	log *slog.Logger
}

func (l *slogBotLogger) Println(v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l *slogBotLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
