package conversation

// Menu labels double as flow entry points.
const (
	LabelBrowse = "📚 Find material"
	LabelUpload = "➕ Add material"
	LabelSearch = "🔍 Search by topic/subject"
	LabelManage = "🗑 Delete/replace material"
	LabelTopics = "📋 View topics in subject"
	LabelStats  = "📈 Download stats"

	LabelNewSubject = "➕ New subject"
	LabelDelete     = "🗑 Delete material"
	LabelReplace    = "🔄 Replace material"
)

const (
	cmdStart      = "start"
	cmdMenu       = "menu"
	cmdCancel     = "cancel"
	cmdAddTeacher = "add_teacher"
)

const (
	textTeacherGreeting = "Hello, teacher! Here you can:\n\n" +
		LabelBrowse + "\n" + LabelUpload + "\n" + LabelSearch + "\n" +
		LabelManage + "\n" + LabelTopics + "\n" + LabelStats
	textStudentGreeting = "Hello, student! Here you can:\n\n" +
		LabelBrowse + "\n" + LabelSearch + "\n\n" +
		"If you are a teacher, ask the bot administrator for access."
	textContinue       = "Continue?"
	textCancelled      = "Cancelled."
	textChooseFromMenu = "Choose an action from the menu."
	textUnknownCommand = "Unknown command. Use /start to open the menu."

	textNoSubjects       = "No subjects available yet."
	textChooseSubject    = "Choose a subject:"
	textSubjectNotFound  = "Subject not found."
	textNoTopics         = "There are no topics in this subject."
	textChooseTopic      = "Choose a topic:"
	textTopicNotFound    = "Topic not found."
	textNoMaterials      = "There are no materials in this topic."
	textUndelivered      = "⚠️ %d of %d files could not be sent."
	textSendText         = "Please answer with text."
	textSubjectRetry     = "Subject not found. Try again."
	textChooseOrCreate   = "Choose a subject or create a new one:"
	textEnterNewSubject  = "Enter the name of the new subject:"
	textEnterTopic       = "Enter the topic name:"
	textSubjectEmpty     = "The subject name cannot be empty. Try again."
	textSubjectExists    = "This subject already exists. Enter another name."
	textSubjectCreated   = "Subject %q created. Now enter the topic name:"
	textTopicEmpty       = "The topic name cannot be empty. Try again."
	textTopicCreated     = "Topic %q created."
	textTopicExists      = "Topic %q already exists. The file will be added there."
	textSendFile         = "Send a file (PDF, DOC, PPT, photo, video):"
	textFileRequired     = "Please send a file, photo or video."
	textBadFormat        = "Unsupported file format. Allowed: PDF, DOC, PPT, TXT, JPG, PNG, MP4 and others."
	textEnterFileName    = "Enter a name for the file (for example 'Lecture 1'):"
	textFileNameEmpty    = "The file name cannot be empty. Try again."
	textMaterialSaved    = "✅ Material %q saved!"
	textEnterQuery       = "Enter a topic, a subject or part of a name:"
	textQueryEmpty       = "The query cannot be empty."
	textNothingFound     = "No files found."
	textTopicsOf         = "Topics in %q:\n%s"
	textChooseAction     = "Choose an action:"
	textChooseActionKbd  = "Choose an action from the keyboard."
	textChooseFileDelete = "Choose a file to delete:"
	textChooseFileSwap   = "Choose a file to replace:"
	textFileNotInTopic   = "❌ This file does not belong to the selected topic."
	textMaterialDeleted  = "✅ Material deleted!"
	textTopicRemoved     = "⚠️ No materials left in the topic, so the topic was deleted."
	textSendNewFile      = "Now send the new file."
	textReplaceMissing   = "❌ Could not find the file to replace."
	textMaterialReplaced = "✅ Material replaced!"
	textTopDownloads     = "📊 Top downloads:\n%s"
	textNoDownloads      = "No download data yet."

	textTeachersOnlyUpload = "Only teachers can upload materials."
	textTeachersOnlyTopics = "Only teachers can view topics."
	textTeachersOnlyManage = "Only teachers can delete or replace materials."
	textTeachersOnlyStats  = "Only teachers can view statistics."

	textAccessDenied  = "Access denied."
	textGrantUsage    = "Usage: /add_teacher <user_id>"
	textGrantInvalid  = "Invalid ID."
	textGrantDone     = "✅ User %d is now a teacher."
	textLostContext   = "The conversation lost its context. Start again with /start."
	textGenericFailed = "❌ Something went wrong. Please try again later."
	textInvalidInput  = "Invalid input. Try again."
)
