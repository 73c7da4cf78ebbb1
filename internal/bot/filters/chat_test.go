package filters

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeMembers struct {
	known   map[int64]bool
	ensured []int64
}

func (f *fakeMembers) IsMember(_ context.Context, userID int64) (bool, error) {
	return f.known[userID], nil
}

func (f *fakeMembers) EnsureMember(_ context.Context, userID int64, _, _, _ string) error {
	f.ensured = append(f.ensured, userID)
	return nil
}

type fakeAPI struct {
	status string
	sent   int
}

func (f *fakeAPI) GetChatMember(tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	return tgbotapi.ChatMember{Status: f.status}, nil
}

func (f *fakeAPI) Send(tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent++
	return tgbotapi.Message{}, nil
}

const flood = -100

func msg(chatID int64, chatType string, userID int64) *tgbotapi.Message {
	return &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: chatID, Type: chatType},
		From: &tgbotapi.User{ID: userID},
		Text: "!бизнес",
	}
}

func TestCheckAccess(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		message   *tgbotapi.Message
		status    string
		want      bool
		backfill  bool
		denyNotes int
	}{
		{"flood chat", msg(flood, "supergroup", 5), "", true, false, 0},
		{"foreign group", msg(-7, "group", 5), "", false, false, 0},
		{"known member in dm", msg(1, "private", 1), "", true, false, 0},
		{"chat member not in db", msg(2, "private", 2), "member", true, true, 0},
		{"stranger", msg(3, "private", 3), "left", false, false, 1},
		{"no sender", &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: flood}}, "", false, false, 0},
	}
	for _, tt := range tests {
		members := &fakeMembers{known: map[int64]bool{1: true}}
		api := &fakeAPI{status: tt.status}
		f := NewChatFilter(flood, members, api)

		if got := f.CheckAccess(ctx, tt.message); got != tt.want {
			t.Fatalf("%s: access = %v, want %v", tt.name, got, tt.want)
		}
		if tt.backfill != (len(members.ensured) == 1) {
			t.Fatalf("%s: backfill = %v", tt.name, members.ensured)
		}
		if api.sent != tt.denyNotes {
			t.Fatalf("%s: sent %d messages", tt.name, api.sent)
		}
	}
}
