// Package conversation runs the per-user dialogue that drives the catalog:
// menus, multi-step flows and the error boundary around every step.
package conversation

// State names the step a user's conversation is waiting in.
type State string

const (
	StateIdle State = ""

	StateBrowseSubject State = "browse.subject"
	StateBrowseTopic   State = "browse.topic"

	StateUploadSubject    State = "upload.subject"
	StateUploadNewSubject State = "upload.new_subject"
	StateUploadTopic      State = "upload.topic"
	StateUploadFile       State = "upload.file"
	StateUploadName       State = "upload.name"

	StateSearchQuery State = "search.query"

	StateTopicsSubject State = "topics.subject"

	StateManageAction  State = "manage.action"
	StateManageSubject State = "manage.subject"
	StateManageTopic   State = "manage.topic"
	StateManageFile    State = "manage.file"
	StateReplaceFile   State = "manage.replace_file"
)

// Action is the Delete/Replace flow mode.
type Action string

const (
	ActionDelete  Action = "delete"
	ActionReplace Action = "replace"
)
