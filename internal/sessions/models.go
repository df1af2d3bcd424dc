package sessions

import (
	"time"
)

// MaxMembers is the number of connections a session can hold at once
const MaxMembers = 2

// DisplayLayout renders timestamps the way clients show them (dd.mm.yyyy, hh:mm)
const DisplayLayout = "02.01.2006, 15:04"

// ConnectionID identifies one participant's live channel. It is supplied by the
// transport layer and only compared for equality.
type ConnectionID string

// Session represents a two-party sharing context identified by a short code
type Session struct {
	Code         string         `json:"code"`
	Members      []ConnectionID `json:"members"`
	Messages     []Message      `json:"messages"`
	Files        []FileRecord   `json:"files"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
}

// Message represents a text message relayed within a session
type Message struct {
	ID            string       `json:"id"`
	Text          string       `json:"text"`
	Sender        ConnectionID `json:"sender"`
	Timestamp     time.Time    `json:"timestamp"`
	FormattedDate string       `json:"formattedDate"`
}

// FileRecord describes an uploaded file announced to a session. The bytes live
// in the blob store under Filename.
type FileRecord struct {
	Filename      string    `json:"filename"`
	Size          int64     `json:"size"`
	Timestamp     time.Time `json:"timestamp"`
	FormattedDate string    `json:"formattedDate"`
}

// FileMeta is what a client announces after a successful upload
type FileMeta struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// HasMember reports whether conn is currently a member of the session
func (s *Session) HasMember(conn ConnectionID) bool {
	for _, m := range s.Members {
		if m == conn {
			return true
		}
	}
	return false
}

// IsFull reports whether the session has reached MaxMembers
func (s *Session) IsFull() bool {
	return len(s.Members) >= MaxMembers
}

// IdleFor returns how long the session has been without mutating activity
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivity)
}

// Clone returns a deep copy that shares no slices with s
func (s *Session) Clone() *Session {
	cp := *s
	cp.Members = append([]ConnectionID(nil), s.Members...)
	cp.Messages = append([]Message(nil), s.Messages...)
	cp.Files = append([]FileRecord(nil), s.Files...)
	return &cp
}

// FormatDate renders t in the given location using DisplayLayout
func FormatDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DisplayLayout)
}
