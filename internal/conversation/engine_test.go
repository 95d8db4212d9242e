package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyshelf/catalogbot/internal/access"
	"github.com/studyshelf/catalogbot/internal/catalog"
	"github.com/studyshelf/catalogbot/internal/catalog/catalogtest"
	"github.com/studyshelf/catalogbot/internal/channel"
	"github.com/studyshelf/catalogbot/internal/logger"
)

const (
	ownerID   int64 = 1
	teacherID int64 = 100
	studentID int64 = 200
)

type recordingSender struct {
	mu     sync.Mutex
	out    []channel.OutboundMessage
	reject func(msg channel.OutboundMessage) bool
}

func (r *recordingSender) Send(_ context.Context, msg channel.OutboundMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reject != nil && r.reject(msg) {
		return errors.New("send rejected")
	}
	r.out = append(r.out, msg)
	return nil
}

func (r *recordingSender) take() []channel.OutboundMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.out
	r.out = nil
	return out
}

func texts(msgs []channel.OutboundMessage) []string {
	var out []string
	for _, m := range msgs {
		if m.Message.Text != "" {
			out = append(out, m.Message.Text)
		}
	}
	return out
}

func attachments(msgs []channel.OutboundMessage) []channel.Attachment {
	var out []channel.Attachment
	for _, m := range msgs {
		out = append(out, m.Message.Attachments...)
	}
	return out
}

type harness struct {
	engine *Engine
	sender *recordingSender
	svc    *catalog.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := catalogtest.NewStore(t)
	svc := catalog.NewService(logger.Discard(), store)
	policy := access.NewPolicy(logger.Discard(), store, ownerID)
	require.NoError(t, policy.GrantUnchecked(context.Background(), teacherID))
	sender := &recordingSender{}
	engine := NewEngine(logger.Discard(), svc, policy, sender, nil)
	engine.newToken = func() string { return "tok" }
	return &harness{engine: engine, sender: sender, svc: svc}
}

func inbound(userID int64, msg channel.Message) channel.InboundMessage {
	id := strconv.FormatInt(userID, 10)
	return channel.InboundMessage{
		Channel:      "telegram",
		Message:      msg,
		Sender:       channel.Identity{SubjectID: id},
		Conversation: channel.Conversation{ID: id, Type: "private"},
	}
}

func (h *harness) say(t *testing.T, userID int64, text string) []channel.OutboundMessage {
	t.Helper()
	require.NoError(t, h.engine.Handle(context.Background(), inbound(userID, channel.Message{Text: text})))
	return h.sender.take()
}

func (h *harness) send(t *testing.T, userID int64, att channel.Attachment) []channel.OutboundMessage {
	t.Helper()
	require.NoError(t, h.engine.Handle(context.Background(), inbound(userID, channel.Message{Attachments: []channel.Attachment{att}})))
	return h.sender.take()
}

func (h *harness) state(userID int64) State {
	return h.engine.Sessions().Get(userID).State
}

// seed creates subject/topic with one material per file name.
func (h *harness) seed(t *testing.T, subject, topic string, files ...string) (catalog.Topic, []catalog.Material) {
	t.Helper()
	ctx := context.Background()
	s, _, err := h.svc.FindOrCreateSubject(ctx, subject)
	require.NoError(t, err)
	tp, _, err := h.svc.FindOrCreateTopic(ctx, s.ID, topic)
	require.NoError(t, err)
	var out []catalog.Material
	for i, name := range files {
		m, err := h.svc.AddMaterial(ctx, catalog.NewMaterial{
			TopicID:    tp.ID,
			FileName:   name,
			FileRef:    fmt.Sprintf("ref-%s-%d", name, i),
			UploadedBy: teacherID,
		})
		require.NoError(t, err)
		out = append(out, m)
	}
	return tp, out
}

func TestStartShowsMenuForRole(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out := h.say(t, teacherID, "/start")
	require.Len(t, out, 1)
	assert.Equal(t, textTeacherGreeting, out[0].Message.Text)
	require.NotNil(t, out[0].Message.Keyboard)
	assert.Len(t, out[0].Message.Keyboard.Rows, 6)

	out = h.say(t, studentID, "/start@catalog_bot")
	require.Len(t, out, 1)
	assert.Equal(t, textStudentGreeting, out[0].Message.Text)
	assert.Equal(t, [][]string{{LabelBrowse}, {LabelSearch}}, out[0].Message.Keyboard.Rows)
}

func TestIdleTextShowsMenu(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out := h.say(t, studentID, "hello")
	require.Len(t, out, 1)
	assert.Equal(t, textChooseFromMenu, out[0].Message.Text)
	assert.Equal(t, StateIdle, h.state(studentID))
}

func TestUploadDocumentUnderNewSubjectAndTopic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	h.say(t, teacherID, LabelUpload)
	assert.Equal(t, StateUploadSubject, h.state(teacherID))
	out := h.say(t, teacherID, LabelNewSubject)
	assert.Equal(t, []string{textEnterNewSubject}, texts(out))
	h.say(t, teacherID, "Math")
	out = h.say(t, teacherID, "Algebra")
	assert.Contains(t, texts(out), fmt.Sprintf(textTopicCreated, "Algebra"))
	assert.Equal(t, StateUploadFile, h.state(teacherID))

	out = h.send(t, teacherID, channel.Attachment{
		Type:        channel.AttachmentFile,
		PlatformKey: "file-1",
		Name:        "lecture1.pdf",
		Mime:        "application/pdf",
	})
	got := texts(out)
	require.Len(t, got, 2)
	assert.Equal(t, fmt.Sprintf(textMaterialSaved, "lecture1.pdf"), got[0])
	assert.Equal(t, textContinue, got[1])
	assert.False(t, h.engine.Sessions().Get(teacherID).Active())

	subjects, err := h.svc.Subjects(ctx)
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, "Math", subjects[0].Name)
	topics, err := h.svc.Topics(ctx, subjects[0].ID)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, "Algebra", topics[0].Name)
	materials, err := h.svc.Materials(ctx, topics[0].ID)
	require.NoError(t, err)
	require.Len(t, materials, 1)
	assert.Equal(t, "lecture1.pdf", materials[0].FileName)
	assert.Equal(t, "file-1", materials[0].FileRef)
	assert.Equal(t, teacherID, materials[0].UploadedBy)
	assert.Zero(t, materials[0].Downloads)
}

func TestUploadReusesTopicCaseInsensitively(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	topic, _ := h.seed(t, "Math", "Algebra", "a.pdf")

	h.say(t, teacherID, LabelUpload)
	h.say(t, teacherID, "Math")
	out := h.say(t, teacherID, "ALGEBRA")
	assert.Contains(t, texts(out), fmt.Sprintf(textTopicExists, "Algebra"))
	h.send(t, teacherID, channel.Attachment{Type: channel.AttachmentFile, PlatformKey: "f2", Name: "b.docx"})

	materials, err := h.svc.Materials(ctx, topic.ID)
	require.NoError(t, err)
	assert.Len(t, materials, 2)
}

func TestUploadUnknownSubjectReprompts(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.say(t, teacherID, LabelUpload)
	out := h.say(t, teacherID, "Chemistry")
	assert.Equal(t, []string{textSubjectRetry}, texts(out))
	assert.Equal(t, StateUploadSubject, h.state(teacherID))
}

func TestUploadDuplicateSubjectReprompts(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seed(t, "Math", "Algebra")

	h.say(t, teacherID, LabelUpload)
	h.say(t, teacherID, LabelNewSubject)
	out := h.say(t, teacherID, "Math")
	assert.Equal(t, []string{textSubjectExists}, texts(out))
	assert.Equal(t, StateUploadNewSubject, h.state(teacherID))

	out = h.say(t, teacherID, "Physics")
	assert.Equal(t, []string{fmt.Sprintf(textSubjectCreated, "Physics")}, texts(out))
	assert.Equal(t, StateUploadTopic, h.state(teacherID))
}

func TestUploadRejectsDisallowedDocument(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.say(t, teacherID, LabelUpload)
	h.say(t, teacherID, LabelNewSubject)
	h.say(t, teacherID, "Math")
	h.say(t, teacherID, "Algebra")

	out := h.send(t, teacherID, channel.Attachment{Type: channel.AttachmentFile, PlatformKey: "x", Name: "setup.exe", Mime: "application/x-msdownload"})
	assert.Equal(t, []string{textBadFormat}, texts(out))
	assert.Equal(t, StateUploadFile, h.state(teacherID))

	out = h.say(t, teacherID, "just text")
	assert.Equal(t, []string{textFileRequired}, texts(out))
	assert.Equal(t, StateUploadFile, h.state(teacherID))
}

func TestUploadPhotoAsksForName(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	topic, _ := h.seed(t, "Math", "Geometry")

	h.say(t, teacherID, LabelUpload)
	h.say(t, teacherID, "Math")
	h.say(t, teacherID, "geometry")
	out := h.send(t, teacherID, channel.Attachment{Type: channel.AttachmentImage, PlatformKey: "photo-1"})
	assert.Equal(t, []string{textEnterFileName}, texts(out))
	assert.Equal(t, StateUploadName, h.state(teacherID))

	out = h.say(t, teacherID, "   ")
	assert.Equal(t, []string{textFileNameEmpty}, texts(out))
	assert.Equal(t, StateUploadName, h.state(teacherID))

	h.say(t, teacherID, "Triangles")
	materials, err := h.svc.Materials(ctx, topic.ID)
	require.NoError(t, err)
	require.Len(t, materials, 1)
	assert.Equal(t, "Triangles.jpg", materials[0].FileName)
	assert.Equal(t, "photo-1", materials[0].FileRef)
}

func TestBrowseDeliversAndCountsDownloads(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	_, materials := h.seed(t, "Math", "Algebra", "lecture1.pdf", "board.jpg")

	h.say(t, studentID, LabelBrowse)
	h.say(t, studentID, "Math")
	out := h.say(t, studentID, "algebra")

	atts := attachments(out)
	require.Len(t, atts, 2)
	assert.Equal(t, channel.AttachmentFile, atts[0].Type)
	assert.Equal(t, materials[0].FileRef, atts[0].PlatformKey)
	assert.Equal(t, "lecture1.pdf", atts[0].Name)
	assert.Equal(t, channel.AttachmentImage, atts[1].Type)
	assert.Equal(t, textContinue, texts(out)[len(texts(out))-1])

	for _, m := range materials {
		got, err := h.svc.MaterialInTopic(ctx, m.TopicID, m.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Downloads)
	}
}

func TestBrowseSkipsUndeliverableMaterial(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	_, materials := h.seed(t, "Math", "Algebra", "scan.png", "lecture1.pdf", "lecture2.pdf")
	h.sender.reject = func(msg channel.OutboundMessage) bool {
		for _, att := range msg.Message.Attachments {
			if att.Type == channel.AttachmentImage {
				return true
			}
		}
		return false
	}

	h.say(t, studentID, LabelBrowse)
	h.say(t, studentID, "Math")
	out := h.say(t, studentID, "Algebra")

	atts := attachments(out)
	require.Len(t, atts, 2)
	assert.Equal(t, "lecture1.pdf", atts[0].Name)
	assert.Equal(t, "lecture2.pdf", atts[1].Name)
	assert.Equal(t, []string{fmt.Sprintf(textUndelivered, 1, 3), textContinue}, texts(out))

	want := []int64{0, 1, 1}
	for i, m := range materials {
		got, err := h.svc.MaterialInTopic(ctx, m.TopicID, m.ID)
		require.NoError(t, err)
		assert.Equal(t, want[i], got.Downloads, m.FileName)
	}
}

func TestBrowseUnknownNamesEndFlow(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seed(t, "Math", "Algebra", "a.pdf")

	h.say(t, studentID, LabelBrowse)
	out := h.say(t, studentID, "math")
	assert.Equal(t, []string{textSubjectNotFound, textContinue}, texts(out))
	assert.Equal(t, StateIdle, h.state(studentID))

	h.say(t, studentID, LabelBrowse)
	h.say(t, studentID, "Math")
	out = h.say(t, studentID, "Calculus")
	assert.Equal(t, []string{textTopicNotFound, textContinue}, texts(out))
}

func TestBrowseWithoutSubjects(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out := h.say(t, studentID, LabelBrowse)
	assert.Equal(t, []string{textNoSubjects, textContinue}, texts(out))
}

func TestSearchMatchesTopicWithoutCounting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	_, materials := h.seed(t, "Math", "Algebra", "notes.pdf")
	h.seed(t, "History", "Rome", "empire.pdf")

	h.say(t, studentID, LabelSearch)
	out := h.say(t, studentID, "alg")

	atts := attachments(out)
	require.Len(t, atts, 1)
	assert.Equal(t, materials[0].FileRef, atts[0].PlatformKey)
	assert.Contains(t, atts[0].Caption, "Algebra")
	assert.Contains(t, atts[0].Caption, "Math")

	got, err := h.svc.MaterialInTopic(ctx, materials[0].TopicID, materials[0].ID)
	require.NoError(t, err)
	assert.Zero(t, got.Downloads)
}

func TestSearchEmptyQueryReprompts(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.say(t, studentID, LabelSearch)
	out := h.send(t, studentID, channel.Attachment{Type: channel.AttachmentImage, PlatformKey: "p"})
	assert.Equal(t, []string{textQueryEmpty}, texts(out))
	assert.Equal(t, StateSearchQuery, h.state(studentID))

	out = h.say(t, studentID, "nothing-like-this")
	assert.Equal(t, []string{textNothingFound, textContinue}, texts(out))
}

func TestViewTopics(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seed(t, "Math", "Algebra")
	h.seed(t, "Math", "Geometry")
	_, _, err := h.svc.FindOrCreateSubject(context.Background(), "Art")
	require.NoError(t, err)

	h.say(t, teacherID, LabelTopics)
	out := h.say(t, teacherID, "Math")
	assert.Equal(t, fmt.Sprintf(textTopicsOf, "Math", "- Algebra\n- Geometry"), texts(out)[0])

	h.say(t, teacherID, LabelTopics)
	out = h.say(t, teacherID, "Art")
	assert.Equal(t, []string{textNoTopics, textContinue}, texts(out))
}

func TestNonTeacherRejectedWithoutMutation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cases := map[string]string{
		LabelUpload: textTeachersOnlyUpload,
		LabelManage: textTeachersOnlyManage,
		LabelTopics: textTeachersOnlyTopics,
		LabelStats:  textTeachersOnlyStats,
	}
	for label, denial := range cases {
		t.Run(label, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			_, materials := h.seed(t, "Math", "Algebra", "a.pdf")

			out := h.say(t, studentID, label)
			assert.Equal(t, []string{denial, textContinue}, texts(out))
			assert.False(t, h.engine.Sessions().Get(studentID).Active())

			out = h.say(t, studentID, fmt.Sprintf("%d: a.pdf", materials[0].ID))
			assert.Equal(t, []string{textChooseFromMenu}, texts(out))
			_, err := h.svc.MaterialInTopic(ctx, materials[0].TopicID, materials[0].ID)
			assert.NoError(t, err)
			subjects, err := h.svc.Subjects(ctx)
			require.NoError(t, err)
			assert.Len(t, subjects, 1)
		})
	}
}

func TestDeleteOnlyMaterialRemovesTopic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	topic, materials := h.seed(t, "Math", "Algebra", "lecture1.pdf")

	h.say(t, teacherID, LabelManage)
	h.say(t, teacherID, LabelDelete)
	h.say(t, teacherID, "Math")
	out := h.say(t, teacherID, "ALGEBRA")
	require.NotEmpty(t, out)
	assert.Equal(t, textChooseFileDelete, out[0].Message.Text)
	assert.Equal(t, [][]string{{fmt.Sprintf("%d: lecture1.pdf", materials[0].ID)}}, out[0].Message.Keyboard.Rows)

	out = h.say(t, teacherID, fmt.Sprintf("%d: lecture1.pdf", materials[0].ID))
	assert.Equal(t, []string{textMaterialDeleted, textTopicRemoved, textContinue}, texts(out))

	subject, err := h.svc.SubjectByName(ctx, "Math")
	require.NoError(t, err)
	topics, err := h.svc.Topics(ctx, subject.ID)
	require.NoError(t, err)
	assert.Empty(t, topics)
	_, err = h.svc.TopicByName(ctx, subject.ID, topic.Name)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestDeleteOneOfSeveralKeepsTopic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	topic, materials := h.seed(t, "Math", "Algebra", "a.pdf", "b.pdf")

	h.say(t, teacherID, LabelManage)
	h.say(t, teacherID, LabelDelete)
	h.say(t, teacherID, "Math")
	h.say(t, teacherID, "Algebra")
	out := h.say(t, teacherID, fmt.Sprintf("%d: a.pdf", materials[0].ID))
	assert.Equal(t, []string{textMaterialDeleted, textContinue}, texts(out))

	left, err := h.svc.Materials(ctx, topic.ID)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, materials[1].ID, left[0].ID)
}

func TestManageFileStepReinterpretsTopicName(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seed(t, "Math", "Algebra", "a.pdf")
	geometry, geoFiles := h.seed(t, "Math", "Geometry", "g.pdf")

	h.say(t, teacherID, LabelManage)
	h.say(t, teacherID, LabelReplace)
	h.say(t, teacherID, "Math")
	h.say(t, teacherID, "Algebra")
	out := h.say(t, teacherID, "geometry")
	require.Len(t, out, 1)
	assert.Equal(t, textChooseFileSwap, out[0].Message.Text)
	assert.Equal(t, [][]string{{fmt.Sprintf("%d: g.pdf", geoFiles[0].ID)}}, out[0].Message.Keyboard.Rows)

	sess := h.engine.Sessions().Get(teacherID)
	assert.Equal(t, StateManageFile, sess.State)
	assert.Equal(t, geometry.ID, sess.TopicID)
}

func TestManageFileNavigatesToTopicShapedLikeFileChoice(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	_, algebra := h.seed(t, "Math", "Algebra", "a.pdf")
	finals, finalFiles := h.seed(t, "Math", "2024: Finals", "f.pdf")

	h.say(t, teacherID, LabelManage)
	h.say(t, teacherID, LabelDelete)
	h.say(t, teacherID, "Math")
	h.say(t, teacherID, "Algebra")
	out := h.say(t, teacherID, "2024: finals")
	require.Len(t, out, 1)
	assert.Equal(t, textChooseFileDelete, out[0].Message.Text)
	assert.Equal(t, [][]string{{fmt.Sprintf("%d: f.pdf", finalFiles[0].ID)}}, out[0].Message.Keyboard.Rows)

	sess := h.engine.Sessions().Get(teacherID)
	assert.Equal(t, StateManageFile, sess.State)
	assert.Equal(t, finals.ID, sess.TopicID)

	_, err := h.svc.MaterialInTopic(ctx, algebra[0].TopicID, algebra[0].ID)
	assert.NoError(t, err)
}

func TestManageFileRejectsMaterialOfAnotherTopic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t, "Math", "Algebra", "a.pdf")
	_, other := h.seed(t, "Math", "Geometry", "g.pdf")

	h.say(t, teacherID, LabelManage)
	h.say(t, teacherID, LabelDelete)
	h.say(t, teacherID, "Math")
	h.say(t, teacherID, "Algebra")
	out := h.say(t, teacherID, fmt.Sprintf("%d: g.pdf", other[0].ID))
	assert.Equal(t, []string{textFileNotInTopic, textContinue}, texts(out))

	_, err := h.svc.MaterialInTopic(ctx, other[0].TopicID, other[0].ID)
	assert.NoError(t, err)
}

func TestReplacePreservesIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	_, materials := h.seed(t, "Math", "Algebra", "old.pdf")
	original := materials[0]
	require.NoError(t, h.svc.RecordDownload(ctx, original.ID))
	original, err := h.svc.MaterialInTopic(ctx, original.TopicID, original.ID)
	require.NoError(t, err)

	h.say(t, teacherID, LabelManage)
	h.say(t, teacherID, LabelReplace)
	h.say(t, teacherID, "Math")
	h.say(t, teacherID, "Algebra")
	out := h.say(t, teacherID, fmt.Sprintf("%d: old.pdf", original.ID))
	assert.Equal(t, []string{textSendNewFile}, texts(out))
	assert.Equal(t, StateReplaceFile, h.state(teacherID))

	out = h.send(t, teacherID, channel.Attachment{Type: channel.AttachmentVideo, PlatformKey: "video-2"})
	assert.Equal(t, []string{textMaterialReplaced, textContinue}, texts(out))

	got, err := h.svc.MaterialInTopic(ctx, original.TopicID, original.ID)
	require.NoError(t, err)
	assert.Equal(t, "video_tok.mp4", got.FileName)
	assert.Equal(t, "video-2", got.FileRef)
	assert.Equal(t, original.TopicID, got.TopicID)
	assert.Equal(t, original.UploadedBy, got.UploadedBy)
	assert.True(t, original.UploadedAt.Equal(got.UploadedAt))
	assert.Equal(t, int64(1), got.Downloads)
}

func TestReplaceRejectsDisallowedDocument(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	_, materials := h.seed(t, "Math", "Algebra", "old.pdf")

	h.say(t, teacherID, LabelManage)
	h.say(t, teacherID, LabelReplace)
	h.say(t, teacherID, "Math")
	h.say(t, teacherID, "Algebra")
	h.say(t, teacherID, fmt.Sprintf("%d: old.pdf", materials[0].ID))

	out := h.send(t, teacherID, channel.Attachment{Type: channel.AttachmentFile, PlatformKey: "z", Name: "archive.zip", Mime: "application/zip"})
	assert.Equal(t, []string{textBadFormat}, texts(out))
	sess := h.engine.Sessions().Get(teacherID)
	assert.Equal(t, StateReplaceFile, sess.State)
	assert.Equal(t, materials[0].ID, sess.TargetMaterialID)
}

func TestManageActionRequiresKeyboardChoice(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.say(t, teacherID, LabelManage)
	out := h.say(t, teacherID, "whatever")
	assert.Equal(t, []string{textChooseActionKbd}, texts(out))
	assert.Equal(t, StateManageAction, h.state(teacherID))
}

func TestStats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	out := h.say(t, teacherID, LabelStats)
	assert.Equal(t, []string{textNoDownloads, textContinue}, texts(out))

	_, materials := h.seed(t, "Math", "Algebra", "lecture1.pdf")
	require.NoError(t, h.svc.RecordDownload(ctx, materials[0].ID))
	require.NoError(t, h.svc.RecordDownload(ctx, materials[0].ID))

	out = h.say(t, teacherID, LabelStats)
	require.NotEmpty(t, out)
	assert.Equal(t, fmt.Sprintf(textTopDownloads, "1. lecture1.pdf (Math / Algebra): 2"), out[0].Message.Text)
}

func TestResetCommandsClearSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seed(t, "Math", "Algebra", "a.pdf")

	for _, cmd := range []string{"/start", "/menu", "/cancel"} {
		h.say(t, teacherID, LabelBrowse)
		h.say(t, teacherID, "Math")
		require.Equal(t, StateBrowseTopic, h.state(teacherID))

		h.say(t, teacherID, cmd)
		assert.Equal(t, StateIdle, h.state(teacherID), cmd)
	}
}

func TestEntryLabelRestartsFlow(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.seed(t, "Math", "Algebra", "a.pdf")

	h.say(t, teacherID, LabelManage)
	h.say(t, teacherID, LabelDelete)
	h.say(t, teacherID, LabelSearch)

	sess := h.engine.Sessions().Get(teacherID)
	assert.Equal(t, StateSearchQuery, sess.State)
	assert.Empty(t, sess.Action)
}

func TestAddTeacherCommand(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	assert.Equal(t, []string{textAccessDenied}, texts(h.say(t, teacherID, "/add_teacher 300")))
	assert.Equal(t, []string{textGrantUsage}, texts(h.say(t, ownerID, "/add_teacher")))
	assert.Equal(t, []string{textGrantInvalid}, texts(h.say(t, ownerID, "/add_teacher abc")))
	assert.Equal(t, []string{textGrantInvalid}, texts(h.say(t, ownerID, "/add_teacher -5")))

	assert.Equal(t, []string{fmt.Sprintf(textGrantDone, 300)}, texts(h.say(t, ownerID, "/add_teacher 300")))
	assert.Equal(t, []string{fmt.Sprintf(textGrantDone, 300)}, texts(h.say(t, ownerID, "/add_teacher 300")))
	ok, err := h.engine.policy.IsPrivileged(ctx, 300)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAddTeacherKeepsFlow(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.say(t, studentID, LabelSearch)
	h.say(t, studentID, "/add_teacher 5")
	assert.Equal(t, StateSearchQuery, h.state(studentID))
}

func TestStepBoundary(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	const (
		statePanics State = "test.panics"
		stateFails  State = "test.fails"
		stateLost   State = "test.lost"
	)
	h.engine.handlers[statePanics] = func(context.Context, *Session, input) (State, error) {
		panic("boom")
	}
	h.engine.handlers[stateFails] = func(context.Context, *Session, input) (State, error) {
		return StateIdle, errors.New("database is gone")
	}
	h.engine.handlers[stateLost] = func(context.Context, *Session, input) (State, error) {
		return StateIdle, fmt.Errorf("%w: topic", catalog.ErrMissingContext)
	}

	cases := []struct {
		state State
		want  string
	}{
		{statePanics, textGenericFailed},
		{stateFails, textGenericFailed},
		{stateLost, textLostContext},
	}
	for _, tc := range cases {
		h.engine.Sessions().Put(Session{UserID: studentID, State: tc.state, SubjectID: 7})
		out := h.say(t, studentID, "anything")
		assert.Equal(t, []string{tc.want, textContinue}, texts(out), string(tc.state))
		assert.False(t, h.engine.Sessions().Get(studentID).Active())
	}
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	out := h.say(t, studentID, "/help")
	assert.Equal(t, []string{textUnknownCommand}, texts(out))
}

func TestInboundWithoutNumericSenderIgnored(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	msg := inbound(studentID, channel.Message{Text: "/start"})
	msg.Sender.SubjectID = "not-a-number"
	require.NoError(t, h.engine.Handle(context.Background(), msg))
	assert.Empty(t, h.sender.take())
}

func TestParseFileChoice(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		id   int64
		want bool
	}{
		{"12: lecture1.pdf", 12, true},
		{"7:x", 7, true},
		{"3:", 3, true},
		{"Algebra", 0, false},
		{"Topic: 3", 0, false},
		{"0: zero", 0, false},
		{"-1: neg", 0, false},
	}
	for _, tc := range cases {
		id, ok := parseFileChoice(tc.in)
		assert.Equal(t, tc.want, ok, tc.in)
		assert.Equal(t, tc.id, id, tc.in)
	}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	name, args, ok := parseCommand("/Add_Teacher@catalog_bot 42 extra")
	require.True(t, ok)
	assert.Equal(t, cmdAddTeacher, name)
	assert.Equal(t, []string{"42", "extra"}, args)

	_, _, ok = parseCommand("Algebra")
	assert.False(t, ok)
	_, _, ok = parseCommand("/")
	assert.False(t, ok)
}

func TestDeliveryMessageKinds(t *testing.T) {
	t.Parallel()

	cases := map[string]channel.AttachmentType{
		"a.pdf":  channel.AttachmentFile,
		"b.PNG":  channel.AttachmentImage,
		"c.jpeg": channel.AttachmentImage,
		"d.mov":  channel.AttachmentVideo,
		"e":      channel.AttachmentFile,
	}
	for name, want := range cases {
		msg := deliveryMessage(catalog.Material{FileName: name, FileRef: "ref"}, "")
		require.Len(t, msg.Attachments, 1)
		assert.Equal(t, want, msg.Attachments[0].Type, name)
		assert.True(t, strings.HasPrefix(msg.Attachments[0].PlatformKey, "ref"))
	}
}
