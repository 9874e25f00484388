// Package conversation derives stable backend conversation identifiers
// from Telegram chat context.
package conversation

import "strconv"

// Chat types as reported by the Telegram Bot API.
const (
	ChatTypePrivate    = "private"
	ChatTypeGroup      = "group"
	ChatTypeSupergroup = "supergroup"
	ChatTypeUnknown    = "unknown"
)

// Metadata describes the Telegram context of one inbound message. It is
// attached to every backend payload under the metadata.platform key.
type Metadata struct {
	ChatID   int64  `json:"chat_id"`
	UserID   int64  `json:"user_id"`
	ChatType string `json:"chat_type"`
}

// Derive maps chat context to a conversation ID and metadata record.
//
// Private chats key on the user (tg_dm_{user_id}) so the same person keeps
// one conversation across devices; groups key on the chat
// (tg_group_{chat_id}); anything else falls back to tg_chat_{chat_id}.
// Derive is pure and total: zero or missing inputs still produce a value.
func Derive(chatType string, chatID int64, userID int64) (string, Metadata) {
	if chatType == "" {
		chatType = ChatTypeUnknown
	}

	meta := Metadata{
		ChatID:   chatID,
		UserID:   userID,
		ChatType: chatType,
	}

	switch chatType {
	case ChatTypePrivate:
		return "tg_dm_" + strconv.FormatInt(userID, 10), meta
	case ChatTypeGroup, ChatTypeSupergroup:
		return "tg_group_" + strconv.FormatInt(chatID, 10), meta
	default:
		return "tg_chat_" + strconv.FormatInt(chatID, 10), meta
	}
}
