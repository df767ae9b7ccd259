package telegram

import (
	"strings"
	"time"
)

// Update getUpdates 返回的单条更新，只解析用到的字段
type Update struct {
	UpdateID        int64                   `json:"update_id"`
	Message         *Message                `json:"message,omitempty"`
	MessageReaction *MessageReactionUpdated `json:"message_reaction,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

type Chat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	Username string `json:"username,omitempty"`
}

// IsPrivate 是否私聊
func (c Chat) IsPrivate() bool {
	return c.Type == "private"
}

type Message struct {
	MessageID      int64    `json:"message_id"`
	From           *User    `json:"from,omitempty"`
	SenderChat     *Chat    `json:"sender_chat,omitempty"`
	Chat           Chat     `json:"chat"`
	Date           int64    `json:"date"`
	Text           string   `json:"text,omitempty"`
	Caption        string   `json:"caption,omitempty"`
	ReplyToMessage *Message `json:"reply_to_message,omitempty"`
	NewChatMembers []User   `json:"new_chat_members,omitempty"`
}

// Time 消息时间
func (m *Message) Time() time.Time {
	if m == nil || m.Date == 0 {
		return time.Time{}
	}
	return time.Unix(m.Date, 0)
}

// Command 解析 "/cmd@bot arg..."，返回命令名（不含 /）与参数
func (m *Message) Command() (string, []string) {
	if m == nil || len(m.Text) < 2 || m.Text[0] != '/' {
		return "", nil
	}
	fields := strings.Fields(m.Text[1:])
	if len(fields) == 0 {
		return "", nil
	}
	name, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(name), fields[1:]
}

type ReactionType struct {
	Type          string `json:"type"`
	Emoji         string `json:"emoji,omitempty"`
	CustomEmojiID string `json:"custom_emoji_id,omitempty"`
}

func (r ReactionType) key() string {
	return r.Type + ":" + r.Emoji + r.CustomEmojiID
}

// MessageReactionUpdated 用户对消息的回应变更
type MessageReactionUpdated struct {
	Chat        Chat           `json:"chat"`
	MessageID   int64          `json:"message_id"`
	User        *User          `json:"user,omitempty"`
	ActorChat   *Chat          `json:"actor_chat,omitempty"`
	Date        int64          `json:"date"`
	OldReaction []ReactionType `json:"old_reaction"`
	NewReaction []ReactionType `json:"new_reaction"`
}

// Added 新增的回应个数（只移除时为 0）
func (r *MessageReactionUpdated) Added() int {
	old := make(map[string]struct{}, len(r.OldReaction))
	for _, o := range r.OldReaction {
		old[o.key()] = struct{}{}
	}
	n := 0
	for _, nr := range r.NewReaction {
		if _, ok := old[nr.key()]; !ok {
			n++
		}
	}
	return n
}

// ChatMember getChatMember 结果
type ChatMember struct {
	Status   string `json:"status"`
	User     User   `json:"user"`
	IsMember bool   `json:"is_member,omitempty"`
}

// Joined creator/administrator/member，或受限但仍在群内
func (m ChatMember) Joined() bool {
	switch m.Status {
	case "creator", "administrator", "member":
		return true
	case "restricted":
		return m.IsMember
	default:
		return false
	}
}
