package sessions

// AppendMessage records msg at the end of the session's message history
func (s *Session) AppendMessage(msg Message) {
	s.Messages = append(s.Messages, msg)
}

// AppendFile records rec at the end of the session's file history
func (s *Session) AppendFile(rec FileRecord) {
	s.Files = append(s.Files, rec)
}

// Replay returns copies of the full ordered histories for a newly joined member
func (s *Session) Replay() ([]Message, []FileRecord) {
	messages := make([]Message, len(s.Messages))
	copy(messages, s.Messages)
	files := make([]FileRecord, len(s.Files))
	copy(files, s.Files)
	return messages, files
}
