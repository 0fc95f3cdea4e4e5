package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/maxo-smsgw/smsgw/internal/model"
	"github.com/maxo-smsgw/smsgw/internal/store"
)

// memRepo is an in-memory Repository for tests.
type memRepo struct {
	convs   map[int64]*model.Conversation
	threads map[int64]*model.Thread
	nextID  int64
	writes  int
}

func newMemRepo() *memRepo {
	return &memRepo{
		convs:   make(map[int64]*model.Conversation),
		threads: make(map[int64]*model.Thread),
	}
}

func (m *memRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memRepo) addConversation(email string, at time.Time) int64 {
	c := &model.Conversation{ID: m.id(), CustomerEmail: email, State: model.StatePublished, CreatedAt: at}
	m.convs[c.ID] = c
	return c.ID
}

func (m *memRepo) addThread(convID int64, typ model.ThreadType, body string, at time.Time, attachments ...string) int64 {
	t := &model.Thread{ID: m.id(), ConversationID: convID, Type: typ, Body: body, CreatedAt: at}
	for _, name := range attachments {
		t.Attachments = append(t.Attachments, model.Attachment{ID: m.id(), ThreadID: t.ID, FileName: name, Size: 1})
	}
	m.threads[t.ID] = t
	m.convs[convID].ThreadsCount++
	return t.ID
}

func (m *memRepo) addLineItem(convID int64, action int, at time.Time) int64 {
	id := m.addThread(convID, model.ThreadLineItem, "", at)
	m.threads[id].ActionType = action
	return id
}

func (m *memRepo) LiveConversations(_ context.Context, domain string) ([]model.Conversation, error) {
	suffix := "@" + strings.ToLower(domain)
	var out []model.Conversation
	for _, c := range m.convs {
		if c.State == model.StateDeleted {
			continue
		}
		if domain != "" && !strings.HasSuffix(strings.ToLower(c.CustomerEmail), suffix) {
			continue
		}
		out = append(out, *c)
	}
	model.SortConversations(out)
	return out, nil
}

func (m *memRepo) Threads(_ context.Context, conversationID int64) ([]model.Thread, error) {
	var out []model.Thread
	for _, t := range m.threads {
		if t.ConversationID == conversationID {
			cp := *t
			cp.Attachments = append([]model.Attachment(nil), t.Attachments...)
			out = append(out, cp)
		}
	}
	model.SortTimeline(out)
	return out, nil
}

func (m *memRepo) MoveThreads(_ context.Context, from, to int64) (int, error) {
	m.writes++
	n := 0
	for _, t := range m.threads {
		if t.ConversationID == from {
			t.ConversationID = to
			n++
		}
	}
	return n, nil
}

func (m *memRepo) SetConversationState(_ context.Context, id int64, state model.State) error {
	m.writes++
	c, ok := m.convs[id]
	if !ok {
		return store.ErrNotFound
	}
	c.State = state
	return nil
}

func (m *memRepo) UpdateConversationStats(_ context.Context, id int64, threadsCount int, lastReplyAt *time.Time) error {
	m.writes++
	c, ok := m.convs[id]
	if !ok {
		return store.ErrNotFound
	}
	c.ThreadsCount = threadsCount
	c.LastReplyAt = lastReplyAt
	return nil
}

func (m *memRepo) UpdateThreadBody(_ context.Context, id int64, body string) error {
	m.writes++
	t, ok := m.threads[id]
	if !ok {
		return store.ErrNotFound
	}
	t.Body = body
	return nil
}

func (m *memRepo) DeleteThread(_ context.Context, id int64) (int, error) {
	m.writes++
	t, ok := m.threads[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	delete(m.threads, id)
	return len(t.Attachments), nil
}

func (m *memRepo) DeleteAttachments(_ context.Context, threadID int64) (int, error) {
	m.writes++
	t, ok := m.threads[threadID]
	if !ok {
		return 0, store.ErrNotFound
	}
	n := len(t.Attachments)
	t.Attachments = nil
	return n, nil
}

func (m *memRepo) bodies(convID int64) []string {
	threads, _ := m.Threads(context.Background(), convID)
	var out []string
	for _, t := range threads {
		if t.Type.IsMessage() {
			out = append(out, t.Body)
		}
	}
	return out
}

func (m *memRepo) live() []model.Conversation {
	convs, _ := m.LiveConversations(context.Background(), "")
	return convs
}
