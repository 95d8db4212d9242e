package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/studyshelf/catalogbot/internal/access"
	"github.com/studyshelf/catalogbot/internal/catalog"
	"github.com/studyshelf/catalogbot/internal/channel"
)

// input is one inbound event reduced to what the flows read.
type input struct {
	UserID int64
	Target string
	Text   string
	File   *catalog.File
}

// handler runs one step and returns the state to wait in next. StateIdle ends
// the conversation.
type handler func(ctx context.Context, sess *Session, in input) (State, error)

// replyError attaches the user-facing text to a classified error.
type replyError struct {
	text string
	err  error
}

func (e *replyError) Error() string { return e.err.Error() }
func (e *replyError) Unwrap() error { return e.err }

func reply(err error, text string) error {
	return &replyError{text: text, err: err}
}

// Engine routes inbound messages through the conversation flows.
type Engine struct {
	catalog  *catalog.Service
	policy   *access.Policy
	sender   channel.Sender
	sessions *SessionTable
	logger   *slog.Logger
	newToken func() string

	entries  map[string]handler
	handlers map[State]handler
}

// NewEngine creates an engine. A nil sessions table gets a fresh one.
func NewEngine(log *slog.Logger, svc *catalog.Service, policy *access.Policy, sender channel.Sender, sessions *SessionTable) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if sessions == nil {
		sessions = NewSessionTable()
	}
	e := &Engine{
		catalog:  svc,
		policy:   policy,
		sender:   sender,
		sessions: sessions,
		logger:   log.With(slog.String("service", "conversation")),
		newToken: uuid.NewString,
	}
	e.entries = map[string]handler{
		LabelBrowse: e.startBrowse,
		LabelUpload: e.startUpload,
		LabelSearch: e.startSearch,
		LabelTopics: e.startTopics,
		LabelManage: e.startManage,
		LabelStats:  e.showStats,
	}
	e.handlers = map[State]handler{
		StateBrowseSubject:    e.browseSubject,
		StateBrowseTopic:      e.browseTopic,
		StateUploadSubject:    e.uploadSubject,
		StateUploadNewSubject: e.uploadNewSubject,
		StateUploadTopic:      e.uploadTopic,
		StateUploadFile:       e.uploadFile,
		StateUploadName:       e.uploadName,
		StateSearchQuery:      e.searchQuery,
		StateTopicsSubject:    e.topicsSubject,
		StateManageAction:     e.manageAction,
		StateManageSubject:    e.manageSubject,
		StateManageTopic:      e.manageTopic,
		StateManageFile:       e.manageFile,
		StateReplaceFile:      e.replaceFile,
	}
	return e
}

// Sessions exposes the session table for sweeping.
func (e *Engine) Sessions() *SessionTable {
	return e.sessions
}

// Handle implements channel.InboundHandler.
func (e *Engine) Handle(ctx context.Context, msg channel.InboundMessage) error {
	userID, ok := msg.Sender.UserID()
	if !ok {
		e.logger.Warn("inbound without numeric sender", slog.String("subject_id", msg.Sender.SubjectID))
		return nil
	}
	in := newInput(userID, msg)

	if name, args, ok := parseCommand(in.Text); ok {
		return e.command(ctx, in, name, args)
	}
	if entry, ok := e.entries[in.Text]; ok {
		e.sessions.Clear(userID)
		e.step(ctx, Session{UserID: userID}, in, entry)
		return nil
	}

	sess := e.sessions.Get(userID)
	if !sess.Active() {
		return e.sendMenu(ctx, in, textChooseFromMenu)
	}
	h, ok := e.handlers[sess.State]
	if !ok {
		e.logger.Warn("no handler for state", slog.Int64("user_id", userID), slog.String("state", string(sess.State)))
		e.sessions.Clear(userID)
		return e.sendMenu(ctx, in, textChooseFromMenu)
	}
	e.step(ctx, sess, in, h)
	return nil
}

// step is the error boundary around a single handler call. Recoverable
// errors keep the user in the current state; everything else ends the flow.
func (e *Engine) step(ctx context.Context, sess Session, in input, h handler) {
	before := sess
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("conversation step panic",
				slog.Int64("user_id", in.UserID),
				slog.String("state", string(before.State)),
				slog.Any("panic", r),
			)
			e.end(ctx, in, textGenericFailed)
		}
	}()

	next, err := h(ctx, &sess, in)
	switch {
	case err == nil:
		if next == StateIdle {
			e.end(ctx, in, "")
			return
		}
		sess.State = next
		e.sessions.Put(sess)
	case catalog.IsRecoverable(err):
		e.sessions.Put(before)
		e.notify(ctx, in.Target, replyText(err), nil)
	case errors.Is(err, catalog.ErrNotFound):
		e.end(ctx, in, replyText(err))
	case errors.Is(err, catalog.ErrMissingContext):
		e.logger.Warn("conversation context missing",
			slog.Int64("user_id", in.UserID),
			slog.String("state", string(before.State)),
			slog.Any("error", err),
		)
		e.end(ctx, in, replyText(err))
	default:
		e.logger.Error("conversation step failed",
			slog.Int64("user_id", in.UserID),
			slog.String("state", string(before.State)),
			slog.Any("error", err),
		)
		e.end(ctx, in, textGenericFailed)
	}
}

// end clears the session and returns the user to the menu.
func (e *Engine) end(ctx context.Context, in input, text string) {
	e.sessions.Clear(in.UserID)
	if text != "" {
		e.notify(ctx, in.Target, text, nil)
	}
	if err := e.sendMenu(ctx, in, textContinue); err != nil {
		e.logger.Error("send menu failed", slog.Int64("user_id", in.UserID), slog.Any("error", err))
	}
}

func replyText(err error) string {
	var re *replyError
	if errors.As(err, &re) {
		return re.text
	}
	switch {
	case errors.Is(err, catalog.ErrDuplicate):
		return textSubjectExists
	case errors.Is(err, catalog.ErrValidation):
		return textInvalidInput
	case errors.Is(err, catalog.ErrNotFound):
		return textNothingFound
	case errors.Is(err, catalog.ErrMissingContext):
		return textLostContext
	default:
		return textGenericFailed
	}
}

func (e *Engine) command(ctx context.Context, in input, name string, args []string) error {
	switch name {
	case cmdStart:
		e.sessions.Clear(in.UserID)
		teacher := e.isTeacher(ctx, in.UserID)
		greeting := textStudentGreeting
		if teacher {
			greeting = textTeacherGreeting
		}
		return e.say(ctx, in.Target, greeting, menuKeyboard(teacher))
	case cmdMenu:
		e.sessions.Clear(in.UserID)
		return e.sendMenu(ctx, in, textContinue)
	case cmdCancel:
		e.sessions.Clear(in.UserID)
		return e.sendMenu(ctx, in, textCancelled)
	case cmdAddTeacher:
		return e.grant(ctx, in, args)
	default:
		return e.say(ctx, in.Target, textUnknownCommand, nil)
	}
}

func (e *Engine) sendMenu(ctx context.Context, in input, text string) error {
	return e.say(ctx, in.Target, text, menuKeyboard(e.isTeacher(ctx, in.UserID)))
}

// isTeacher degrades to the student menu when the role lookup fails.
func (e *Engine) isTeacher(ctx context.Context, userID int64) bool {
	ok, err := e.policy.IsPrivileged(ctx, userID)
	if err != nil {
		e.logger.Error("role lookup failed", slog.Int64("user_id", userID), slog.Any("error", err))
		return false
	}
	return ok
}

// requireTeacher answers non-teachers with denial and reports whether the
// flow may go on.
func (e *Engine) requireTeacher(ctx context.Context, in input, denial string) (bool, error) {
	ok, err := e.policy.IsPrivileged(ctx, in.UserID)
	if err != nil {
		return false, err
	}
	if !ok {
		e.logger.Info("privileged flow refused", slog.Int64("user_id", in.UserID))
		return false, e.say(ctx, in.Target, denial, nil)
	}
	return true, nil
}

func (e *Engine) say(ctx context.Context, target, text string, kb *channel.Keyboard) error {
	return e.sender.Send(ctx, channel.OutboundMessage{
		Target:  target,
		Message: channel.Message{Text: text, Keyboard: kb},
	})
}

// notify is say for paths that have nowhere to return an error.
func (e *Engine) notify(ctx context.Context, target, text string, kb *channel.Keyboard) {
	if err := e.say(ctx, target, text, kb); err != nil {
		e.logger.Error("send failed", slog.String("target", target), slog.Any("error", err))
	}
}

func (e *Engine) deliver(ctx context.Context, target string, m catalog.Material, caption string) error {
	if err := e.sender.Send(ctx, channel.OutboundMessage{
		Target:  target,
		Message: deliveryMessage(m, caption),
	}); err != nil {
		return fmt.Errorf("deliver material %d: %w", m.ID, err)
	}
	return nil
}

func deliveryMessage(m catalog.Material, caption string) channel.Message {
	att := channel.Attachment{
		Type:        channel.AttachmentFile,
		PlatformKey: m.FileRef,
		Name:        m.FileName,
		Caption:     caption,
	}
	switch catalog.DeliveryKind(m.FileName) {
	case catalog.KindPhoto:
		att.Type = channel.AttachmentImage
	case catalog.KindVideo:
		att.Type = channel.AttachmentVideo
	}
	return channel.Message{Attachments: []channel.Attachment{att}}
}

func newInput(userID int64, msg channel.InboundMessage) input {
	in := input{
		UserID: userID,
		Target: msg.ReplyTarget(),
		Text:   strings.TrimSpace(msg.Message.Text),
	}
	for _, att := range msg.Message.Attachments {
		if !att.HasReference() {
			continue
		}
		f := catalog.File{
			Kind: catalog.KindDocument,
			Ref:  att.Reference(),
			Name: strings.TrimSpace(att.Name),
			MIME: strings.TrimSpace(att.Mime),
		}
		switch att.Type {
		case channel.AttachmentImage:
			f.Kind = catalog.KindPhoto
		case channel.AttachmentVideo:
			f.Kind = catalog.KindVideo
		}
		in.File = &f
		break
	}
	return in
}

// parseCommand splits "/name@bot arg..." into a lowercased name and its arguments.
func parseCommand(text string) (string, []string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), fields[1:], true
}

func requireText(in input) (string, error) {
	if in.Text == "" {
		return "", reply(catalog.ErrValidation, textSendText)
	}
	return in.Text, nil
}
