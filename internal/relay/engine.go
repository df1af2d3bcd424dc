package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pairshare/pairshare/internal/audit"
	"github.com/pairshare/pairshare/internal/blobstore"
	"github.com/pairshare/pairshare/internal/sessions"
)

// Default tunables
const (
	DefaultIdleTimeout      = 3 * time.Hour
	DefaultReapInterval     = 5 * time.Minute
	DefaultMaxMessageLength = 10000
)

// Config holds the engine's tunables
type Config struct {
	IdleTimeout      time.Duration
	ReapInterval     time.Duration
	MaxMessageLength int
	AuditRetention   time.Duration

	// Location renders FormattedDate fields
	Location *time.Location
}

func (c *Config) applyDefaults() {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = DefaultReapInterval
	}
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = DefaultMaxMessageLength
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
}

// Engine is the session relay: it owns membership, history and fan-out for
// every live session.
type Engine struct {
	store    sessions.SessionStore
	blobs    blobstore.BlobStore
	notifier Notifier
	cleaner  *Cleaner
	audit    audit.EventLogger
	config   Config
	logger   *zap.Logger

	// connection -> session code
	bindMu   sync.Mutex
	bindings map[sessions.ConnectionID]string

	// stored blob name -> code of the session that announced it
	filesMu    sync.Mutex
	fileOwners map[string]string
}

// NewEngine creates a new relay engine. eventLog may be nil.
func NewEngine(
	store sessions.SessionStore,
	blobs blobstore.BlobStore,
	notifier Notifier,
	eventLog audit.EventLogger,
	config Config,
	logger *zap.Logger,
) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("session store cannot be nil")
	}
	if blobs == nil {
		return nil, fmt.Errorf("blob store cannot be nil")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.applyDefaults()

	return &Engine{
		store:    store,
		blobs:    blobs,
		notifier: notifier,
		cleaner:  NewCleaner(blobs, logger),
		audit:    eventLog,
		config:   config,
		logger:   logger,
		bindings:   make(map[sessions.ConnectionID]string),
		fileOwners: make(map[string]string),
	}, nil
}

// SessionCount returns the number of live sessions
func (e *Engine) SessionCount() int {
	return e.store.Len()
}

// CreateSession creates a session and registers conn as its first member
func (e *Engine) CreateSession(ctx context.Context, conn sessions.ConnectionID) (string, error) {
	if err := e.bind(conn, ""); err != nil {
		return "", err
	}

	code, err := e.store.Create(ctx)
	if err != nil {
		e.unbind(conn, "")
		e.logger.Error("Failed to create session", zap.String("connection_id", string(conn)), zap.Error(err))
		return "", err
	}

	e.rebind(conn, code)
	if err := e.join(ctx, code, conn, true); err != nil {
		e.unbind(conn, code)
		return "", err
	}

	e.logger.Info("Session created",
		zap.String("session_code", code),
		zap.String("connection_id", string(conn)))
	e.record(ctx, code, audit.EventSessionCreated, conn, "", nil)

	return code, nil
}

// SendMessage appends a message to the session history and relays it to all
// members, the sender included.
func (e *Engine) SendMessage(ctx context.Context, code string, conn sessions.ConnectionID, text string) (sessions.Message, error) {
	code = sessions.NormalizeCode(code)
	length := utf8.RuneCountInString(text)

	// an unknown session or a non-member is reported before the text is judged
	var msg sessions.Message
	_, err := e.store.Update(ctx, code, func(tx *sessions.Tx) error {
		if !tx.Session.HasMember(conn) {
			return ErrNotMember
		}
		if strings.TrimSpace(text) == "" {
			return ErrEmptyMessage
		}
		if length > e.config.MaxMessageLength {
			return tooLong(e.config.MaxMessageLength)
		}

		now := tx.Now()
		msg = sessions.Message{
			ID:            uuid.New().String(),
			Text:          text,
			Sender:        conn,
			Timestamp:     now,
			FormattedDate: sessions.FormatDate(now, e.config.Location),
		}
		tx.Session.AppendMessage(msg)
		tx.Touch()

		e.broadcastMessage(tx.Session, msg)
		return nil
	})
	if err != nil {
		return sessions.Message{}, err
	}

	e.record(ctx, code, audit.EventMessageSent, conn, "", map[string]interface{}{
		"length": length,
	})
	return msg, nil
}

// AnnounceFile records an uploaded file in the session history and relays it
// to all members.
func (e *Engine) AnnounceFile(ctx context.Context, code string, conn sessions.ConnectionID, meta sessions.FileMeta) (sessions.FileRecord, error) {
	code = sessions.NormalizeCode(code)

	if !blobstore.ValidName(meta.Filename) || meta.Size < 0 {
		return sessions.FileRecord{}, ErrInvalidFile
	}

	// checked before taking the session lock; blob I/O never happens under it
	exists, err := e.blobs.Exists(ctx, meta.Filename)
	if err != nil {
		return sessions.FileRecord{}, fmt.Errorf("failed to check blob: %w", err)
	}
	if !exists {
		return sessions.FileRecord{}, fmt.Errorf("%w: %s", ErrInvalidFile, meta.Filename)
	}

	claimed, err := e.claimFile(meta.Filename, code)
	if err != nil {
		return sessions.FileRecord{}, err
	}

	var rec sessions.FileRecord
	_, err = e.store.Update(ctx, code, func(tx *sessions.Tx) error {
		if !tx.Session.HasMember(conn) {
			return ErrNotMember
		}

		now := tx.Now()
		rec = sessions.FileRecord{
			Filename:      meta.Filename,
			Size:          meta.Size,
			Timestamp:     now,
			FormattedDate: sessions.FormatDate(now, e.config.Location),
		}
		tx.Session.AppendFile(rec)
		tx.Touch()

		e.broadcastFileEvent(tx.Session, rec)
		return nil
	})
	if err != nil {
		if claimed {
			e.releaseFile(meta.Filename, code)
		}
		return sessions.FileRecord{}, err
	}

	e.record(ctx, code, audit.EventFileAnnounced, conn, meta.Filename, map[string]interface{}{
		"size": meta.Size,
	})
	return rec, nil
}

// EndSession terminates a session explicitly, notifying any members
func (e *Engine) EndSession(ctx context.Context, code string) error {
	code = sessions.NormalizeCode(code)

	final, err := e.store.Delete(ctx, code)
	if err != nil {
		return err
	}

	e.terminate(context.WithoutCancel(ctx), final, EventSessionEnded, audit.EventSessionEnded)
	return nil
}

// SessionEvents returns the audit trail for a session
func (e *Engine) SessionEvents(ctx context.Context, code string, limit int) ([]*audit.Event, error) {
	if e.audit == nil {
		return nil, nil
	}
	return e.audit.SessionEvents(ctx, sessions.NormalizeCode(code), limit)
}

// terminate finishes off a session that has already been removed from the
// store: remaining members are told and unbound, then its blobs are reclaimed.
// Blob names stay reserved until the deletes finish.
func (e *Engine) terminate(ctx context.Context, final *sessions.Session, notice EventType, reason audit.EventType) {
	for _, member := range final.Members {
		e.unbind(member, final.Code)
		if notice != "" {
			e.deliver(member, sessionEvent(notice, final.Code))
		}
	}

	if err := e.cleaner.CleanupSession(ctx, final); err != nil {
		e.logger.Warn("Session cleanup incomplete",
			zap.String("session_code", final.Code),
			zap.Error(err))
	}
	for _, f := range final.Files {
		e.releaseFile(f.Filename, final.Code)
	}

	e.logger.Info("Session closed",
		zap.String("session_code", final.Code),
		zap.String("reason", string(reason)),
		zap.Int("files", len(final.Files)))
	e.record(ctx, final.Code, reason, "", "", map[string]interface{}{
		"messages": len(final.Messages),
		"files":    len(final.Files),
	})
}

// claimFile reserves filename for the session code. A blob announced by one
// session can never be announced by another, so reclaiming a session's blobs
// cannot touch a live session. It reports whether this call made the
// reservation.
func (e *Engine) claimFile(filename, code string) (bool, error) {
	e.filesMu.Lock()
	defer e.filesMu.Unlock()

	owner, ok := e.fileOwners[filename]
	if !ok {
		e.fileOwners[filename] = code
		return true, nil
	}
	if owner != code {
		return false, fmt.Errorf("%w: %s belongs to another session", ErrInvalidFile, filename)
	}
	return false, nil
}

// releaseFile drops the reservation only if code still holds it
func (e *Engine) releaseFile(filename, code string) {
	e.filesMu.Lock()
	defer e.filesMu.Unlock()

	if owner, ok := e.fileOwners[filename]; ok && owner == code {
		delete(e.fileOwners, filename)
	}
}

func (e *Engine) record(ctx context.Context, code string, typ audit.EventType, conn sessions.ConnectionID, filename string, details map[string]interface{}) {
	if e.audit == nil {
		return
	}

	err := e.audit.Record(ctx, &audit.Event{
		SessionCode:  code,
		Type:         typ,
		ConnectionID: string(conn),
		Filename:     filename,
		Details:      details,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Warn("Failed to record audit event",
			zap.String("session_code", code),
			zap.String("type", string(typ)),
			zap.Error(err))
	}
}
