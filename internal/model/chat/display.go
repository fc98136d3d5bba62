package chat

import "time"

const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// DisplayMessage is the simplified record rendered by the front-end.
type DisplayMessage struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// ToDisplay converts a transcript entry. Original send times are not kept, so
// the caller supplies the read time.
func ToDisplay(msg Message, now time.Time) DisplayMessage {
	sender := SenderBot
	if msg.Role == RoleUser {
		sender = SenderUser
	}
	return DisplayMessage{
		Sender:    sender,
		Text:      msg.Content,
		Timestamp: now.Format(time.RFC3339Nano),
	}
}
