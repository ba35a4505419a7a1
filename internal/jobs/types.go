package jobs

const (
	TaskConvertNote = "note:convert"
)

type ConvertNotePayload struct {
	RequestID string `json:"request_id"` // ULID minted by the bot
	ChatID    int64  `json:"chat_id"`
	UserID    int64  `json:"user_id"`
	MessageID int    `json:"message_id"` // inbound message, replied to on failure
	FileID    string `json:"file_id"`    // Telegram file_id of the source video
	FileName  string `json:"file_name"`  // original name, may be empty
}
