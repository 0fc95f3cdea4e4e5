package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maxo-smsgw/smsgw/internal/model"
)

type conversationRow struct {
	ID            int64         `db:"id"`
	CustomerEmail string        `db:"customer_email"`
	State         int           `db:"state"`
	ThreadsCount  int           `db:"threads_count"`
	LastReplyAt   sql.NullInt64 `db:"last_reply_at"`
	AutoReplySent int           `db:"auto_reply_sent"`
	CreatedAt     int64         `db:"created_at"`
}

func (r conversationRow) model() model.Conversation {
	c := model.Conversation{
		ID:            r.ID,
		CustomerEmail: r.CustomerEmail,
		State:         model.State(r.State),
		ThreadsCount:  r.ThreadsCount,
		AutoReplySent: r.AutoReplySent != 0,
		CreatedAt:     fromMillis(r.CreatedAt),
	}
	if r.LastReplyAt.Valid {
		t := fromMillis(r.LastReplyAt.Int64)
		c.LastReplyAt = &t
	}
	return c
}

type threadRow struct {
	ID             int64          `db:"id"`
	ConversationID int64          `db:"conversation_id"`
	Type           int            `db:"type"`
	Body           sql.NullString `db:"body"`
	ActionType     sql.NullInt64  `db:"action_type"`
	CreatedAt      int64          `db:"created_at"`
}

func (r threadRow) model() model.Thread {
	return model.Thread{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Type:           model.ThreadType(r.Type),
		Body:           r.Body.String,
		ActionType:     int(r.ActionType.Int64), // NULL reads as 0; helpdesk action types start at 1
		CreatedAt:      fromMillis(r.CreatedAt),
	}
}

type attachmentRow struct {
	ID       int64  `db:"id"`
	ThreadID int64  `db:"thread_id"`
	FileName string `db:"file_name"`
	Size     int64  `db:"size"`
}

const conversationColumns = `id, customer_email, state, threads_count, last_reply_at, auto_reply_sent, created_at`

// LiveConversations returns non-deleted conversations whose customer address
// ends with "@domain", oldest first. An empty domain returns every live
// conversation.
func (s *Store) LiveConversations(ctx context.Context, domain string) ([]model.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE state <> ?`
	args := []interface{}{int(model.StateDeleted)}
	if domain != "" {
		query += ` AND LOWER(customer_email) LIKE ?`
		args = append(args, "%@"+strings.ToLower(domain))
	}
	query += ` ORDER BY created_at, id`

	var rows []conversationRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}

	convs := make([]model.Conversation, 0, len(rows))
	for _, r := range rows {
		convs = append(convs, r.model())
	}
	return convs, nil
}

// Conversation loads a single conversation.
func (s *Store) Conversation(ctx context.Context, id int64) (*model.Conversation, error) {
	var r conversationRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation %d: %w", id, err)
	}
	c := r.model()
	return &c, nil
}

// Threads returns a conversation's timeline with attachments loaded.
func (s *Store) Threads(ctx context.Context, conversationID int64) ([]model.Thread, error) {
	var rows []threadRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT id, conversation_id, type, body, action_type, created_at
		FROM threads WHERE conversation_id = ?
		ORDER BY created_at, id`), conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query threads of conversation %d: %w", conversationID, err)
	}

	var atts []attachmentRow
	err = s.db.SelectContext(ctx, &atts, s.db.Rebind(`
		SELECT a.id, a.thread_id, a.file_name, a.size
		FROM attachments a JOIN threads t ON a.thread_id = t.id
		WHERE t.conversation_id = ?
		ORDER BY a.id`), conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments of conversation %d: %w", conversationID, err)
	}

	byThread := make(map[int64][]model.Attachment)
	for _, a := range atts {
		byThread[a.ThreadID] = append(byThread[a.ThreadID], model.Attachment(a))
	}

	threads := make([]model.Thread, 0, len(rows))
	for _, r := range rows {
		t := r.model()
		t.Attachments = byThread[t.ID]
		threads = append(threads, t)
	}
	return threads, nil
}

// MoveThreads re-parents every thread of one conversation onto another.
func (s *Store) MoveThreads(ctx context.Context, from, to int64) (int, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE threads SET conversation_id = ? WHERE conversation_id = ?`), to, from)
	if err != nil {
		return 0, fmt.Errorf("failed to move threads from %d to %d: %w", from, to, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// SetConversationState changes a conversation's state.
func (s *Store) SetConversationState(ctx context.Context, id int64, state model.State) error {
	return s.execOne(ctx, fmt.Sprintf("conversation %d", id),
		`UPDATE conversations SET state = ? WHERE id = ?`, int(state), id)
}

// UpdateConversationStats writes the denormalized thread counters.
func (s *Store) UpdateConversationStats(ctx context.Context, id int64, threadsCount int, lastReplyAt *time.Time) error {
	var last sql.NullInt64
	if lastReplyAt != nil {
		last = sql.NullInt64{Int64: toMillis(*lastReplyAt), Valid: true}
	}
	return s.execOne(ctx, fmt.Sprintf("conversation %d", id),
		`UPDATE conversations SET threads_count = ?, last_reply_at = ? WHERE id = ?`, threadsCount, last, id)
}

// SetAutoReplySent sets the flag that keeps the helpdesk from sending an
// automated acknowledgement.
func (s *Store) SetAutoReplySent(ctx context.Context, id int64) error {
	return s.execOne(ctx, fmt.Sprintf("conversation %d", id),
		`UPDATE conversations SET auto_reply_sent = 1 WHERE id = ?`, id)
}

// UpdateThreadBody rewrites a thread body.
func (s *Store) UpdateThreadBody(ctx context.Context, id int64, body string) error {
	return s.execOne(ctx, fmt.Sprintf("thread %d", id),
		`UPDATE threads SET body = ? WHERE id = ?`, body, id)
}

// DeleteThread removes a thread and its attachments in one transaction and
// reports how many attachments went with it.
func (s *Store) DeleteThread(ctx context.Context, id int64) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM attachments WHERE thread_id = ?`), id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete attachments of thread %d: %w", id, err)
	}
	atts, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM threads WHERE id = ?`), id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete thread %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit thread deletion: %w", err)
	}
	return int(atts), nil
}

// DeleteAttachments removes every attachment of a thread.
func (s *Store) DeleteAttachments(ctx context.Context, threadID int64) (int, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM attachments WHERE thread_id = ?`), threadID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete attachments of thread %d: %w", threadID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CreateConversation inserts c, keeping its ID when set, and stores the
// assigned ID back into c.
func (s *Store) CreateConversation(ctx context.Context, c *model.Conversation) error {
	if c.State == 0 {
		c.State = model.StatePublished
	}
	var last sql.NullInt64
	if c.LastReplyAt != nil {
		last = sql.NullInt64{Int64: toMillis(*c.LastReplyAt), Valid: true}
	}

	cols := []string{"customer_email", "state", "threads_count", "last_reply_at", "auto_reply_sent", "created_at"}
	args := []interface{}{c.CustomerEmail, int(c.State), c.ThreadsCount, last, boolToInt(c.AutoReplySent), toMillis(c.CreatedAt)}
	id, err := s.insert(ctx, "conversations", c.ID, cols, args)
	if err != nil {
		return fmt.Errorf("failed to create conversation for %s: %w", c.CustomerEmail, err)
	}
	c.ID = id
	return nil
}

// CreateThread inserts t and its attachments.
func (s *Store) CreateThread(ctx context.Context, t *model.Thread) error {
	var action sql.NullInt64
	if t.Type == model.ThreadLineItem {
		action = sql.NullInt64{Int64: int64(t.ActionType), Valid: true}
	}

	cols := []string{"conversation_id", "type", "body", "action_type", "created_at"}
	args := []interface{}{t.ConversationID, int(t.Type), t.Body, action, toMillis(t.CreatedAt)}
	id, err := s.insert(ctx, "threads", t.ID, cols, args)
	if err != nil {
		return fmt.Errorf("failed to create thread in conversation %d: %w", t.ConversationID, err)
	}
	t.ID = id

	for i := range t.Attachments {
		a := &t.Attachments[i]
		a.ThreadID = id
		aid, err := s.insert(ctx, "attachments", a.ID,
			[]string{"thread_id", "file_name", "size"},
			[]interface{}{a.ThreadID, a.FileName, a.Size})
		if err != nil {
			return fmt.Errorf("failed to create attachment %s: %w", a.FileName, err)
		}
		a.ID = aid
	}
	return nil
}

// insert writes one row and returns its ID. A non-zero id is written as is.
func (s *Store) insert(ctx context.Context, table string, id int64, cols []string, args []interface{}) (int64, error) {
	if id != 0 {
		cols = append([]string{"id"}, cols...)
		args = append([]interface{}{id}, args...)
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING id`, table, strings.Join(cols, ", "), marks)

	var newID int64
	if err := s.db.QueryRowxContext(ctx, s.db.Rebind(query), args...).Scan(&newID); err != nil {
		return 0, err
	}
	return newID, nil
}

func (s *Store) execOne(ctx context.Context, what, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", what, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to update %s: %w", what, ErrNotFound)
	}
	return nil
}
