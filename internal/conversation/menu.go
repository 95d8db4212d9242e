package conversation

import (
	"github.com/studyshelf/catalogbot/internal/catalog"
	"github.com/studyshelf/catalogbot/internal/channel"
)

var (
	teacherMenu = [][]string{{LabelBrowse}, {LabelUpload}, {LabelSearch}, {LabelManage}, {LabelTopics}, {LabelStats}}
	studentMenu = [][]string{{LabelBrowse}, {LabelSearch}}
)

func menuKeyboard(teacher bool) *channel.Keyboard {
	if teacher {
		return &channel.Keyboard{Rows: teacherMenu}
	}
	return &channel.Keyboard{Rows: studentMenu}
}

// choiceKeyboard lays out one choice per row.
func choiceKeyboard(choices []string) *channel.Keyboard {
	rows := make([][]string, 0, len(choices))
	for _, c := range choices {
		rows = append(rows, []string{c})
	}
	return &channel.Keyboard{Rows: rows, OneTime: true}
}

func removeKeyboard() *channel.Keyboard {
	return &channel.Keyboard{Remove: true}
}

func subjectNames(subjects []catalog.Subject) []string {
	names := make([]string, 0, len(subjects))
	for _, s := range subjects {
		names = append(names, s.Name)
	}
	return names
}

func topicNames(topics []catalog.Topic) []string {
	names := make([]string, 0, len(topics))
	for _, t := range topics {
		names = append(names, t.Name)
	}
	return names
}
