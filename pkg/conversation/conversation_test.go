package conversation

import "testing"

func TestDerive(t *testing.T) {
	tests := []struct {
		name     string
		chatType string
		chatID   int64
		userID   int64
		want     string
	}{
		{"private keys on user", ChatTypePrivate, 111, 123456, "tg_dm_123456"},
		{"group keys on chat", ChatTypeGroup, 789012, 42, "tg_group_789012"},
		{"supergroup keys on chat", ChatTypeSupergroup, -100789012, 42, "tg_group_-100789012"},
		{"channel falls back to chat", "channel", 555, 42, "tg_chat_555"},
		{"empty chat type falls back to chat", "", 555, 42, "tg_chat_555"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Derive(tt.chatType, tt.chatID, tt.userID)
			if got != tt.want {
				t.Fatalf("Derive(%q, %d, %d) = %q, want %q", tt.chatType, tt.chatID, tt.userID, got, tt.want)
			}
		})
	}
}

func TestDeriveMetadata(t *testing.T) {
	_, meta := Derive(ChatTypePrivate, 111, 222)
	if meta.ChatID != 111 || meta.UserID != 222 || meta.ChatType != ChatTypePrivate {
		t.Fatalf("metadata = %+v, want chat_id=111 user_id=222 chat_type=private", meta)
	}

	_, meta = Derive("", 7, 8)
	if meta.ChatType != ChatTypeUnknown {
		t.Fatalf("metadata.ChatType = %q, want %q", meta.ChatType, ChatTypeUnknown)
	}
}
