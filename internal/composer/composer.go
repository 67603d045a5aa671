// Package composer renders the delivery message body.
package composer

import (
	"strings"
)

const (
	DefaultTeam = "DDAM"

	// DateLayout is how the completion date is shown in the message.
	DateLayout = "2006/01/02"

	FileAttachedNote = "ファイルをアップロードしました（下記参照）"
)

type Input struct {
	ReceiverMentions []string
	AuthorMentions   []string
	Team             string
	Date             string
	RawDataLink      string
	Link             string
	FileAttached     bool
}

// Compose is pure: the same input always yields the same text. A block is
// left out exactly when its source is empty.
func Compose(in Input) string {
	team := in.Team
	if team == "" {
		team = DefaultTeam
	}

	var b strings.Builder
	if receivers := joinMentions(in.ReceiverMentions); receivers != "" {
		b.WriteString(receivers)
		b.WriteString("\n")
	}
	b.WriteString("お世話になっております。\n")
	b.WriteString(team)
	b.WriteString("チームの")
	b.WriteString(joinMentions(in.AuthorMentions))
	b.WriteString("でございます。\n\n")

	b.WriteString("本日分の更新が完了致しましたのでご確認お願い致します。")
	if in.Date != "" {
		b.WriteString("(" + in.Date + ")")
	}
	b.WriteString("\n\n")

	if in.RawDataLink != "" {
		b.WriteString("▼raw貼り付けスプシ\n")
		b.WriteString(in.RawDataLink)
		b.WriteString("\n\n")
	}

	target := in.Link
	if in.FileAttached {
		target = FileAttachedNote
	}
	if target != "" {
		b.WriteString("▼格納先\n")
		b.WriteString(target)
		b.WriteString("\n\n")
	}

	b.WriteString("お忙しいところ恐れ入りますが、何卒よろしくお願いいたします。")
	return b.String()
}

func joinMentions(mentions []string) string {
	parts := make([]string, 0, len(mentions))
	for _, m := range mentions {
		if m = strings.TrimSpace(m); m != "" {
			parts = append(parts, m)
		}
	}
	return strings.Join(parts, " ")
}
