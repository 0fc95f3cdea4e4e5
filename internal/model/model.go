// Package model defines the conversation records the gateway tooling works
// on. Numeric states and thread types mirror the helpdesk's own columns.
package model

import (
	"sort"
	"time"
)

// State is a conversation's lifecycle state
type State int

const (
	StateDraft     State = 1
	StatePublished State = 2
	StateDeleted   State = 3
)

func (s State) String() string {
	switch s {
	case StateDraft:
		return "draft"
	case StatePublished:
		return "published"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// ThreadType is the kind of entry in a conversation timeline
type ThreadType int

const (
	ThreadCustomer ThreadType = 1 // message from the correspondent
	ThreadMessage  ThreadType = 2 // reply from an agent
	ThreadNote     ThreadType = 3 // internal note
	ThreadLineItem ThreadType = 4 // action log entry
)

// IsMessage reports whether the thread carries message text. Every type
// except line items does.
func (t ThreadType) IsMessage() bool {
	return t != ThreadLineItem
}

func (t ThreadType) String() string {
	switch t {
	case ThreadCustomer:
		return "customer"
	case ThreadMessage:
		return "message"
	case ThreadNote:
		return "note"
	case ThreadLineItem:
		return "lineitem"
	default:
		return "unknown"
	}
}

// Conversation groups the threads exchanged with one correspondent.
type Conversation struct {
	ID            int64      `yaml:"id"`
	CustomerEmail string     `yaml:"customer_email"`
	State         State      `yaml:"state"`
	ThreadsCount  int        `yaml:"threads_count"`
	LastReplyAt   *time.Time `yaml:"last_reply_at,omitempty"`
	AutoReplySent bool       `yaml:"auto_reply_sent"`
	CreatedAt     time.Time  `yaml:"created_at"`
}

// Live reports whether the conversation has not been soft-deleted.
func (c Conversation) Live() bool {
	return c.State != StateDeleted
}

// Thread is one timeline entry.
type Thread struct {
	ID             int64        `yaml:"id"`
	ConversationID int64        `yaml:"conversation_id"`
	Type           ThreadType   `yaml:"type"`
	Body           string       `yaml:"body"`
	ActionType     int          `yaml:"action_type,omitempty"` // line items only
	CreatedAt      time.Time    `yaml:"created_at"`
	Attachments    []Attachment `yaml:"attachments,omitempty"`
}

// Attachment is a file owned by a single thread.
type Attachment struct {
	ID       int64  `yaml:"id"`
	ThreadID int64  `yaml:"thread_id"`
	FileName string `yaml:"file_name"`
	Size     int64  `yaml:"size"`
}

// Before orders timeline entries by creation time, then ID.
func Before(aAt time.Time, aID int64, bAt time.Time, bID int64) bool {
	if !aAt.Equal(bAt) {
		return aAt.Before(bAt)
	}
	return aID < bID
}

// SortConversations orders conversations oldest first.
func SortConversations(convs []Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		return Before(convs[i].CreatedAt, convs[i].ID, convs[j].CreatedAt, convs[j].ID)
	})
}

// SortTimeline orders threads oldest first.
func SortTimeline(threads []Thread) {
	sort.SliceStable(threads, func(i, j int) bool {
		return Before(threads[i].CreatedAt, threads[i].ID, threads[j].CreatedAt, threads[j].ID)
	})
}

// Counts tallies the mutations of a maintenance run.
type Counts struct {
	ConversationsMerged  int `json:"conversations_merged"`
	ConversationsDeleted int `json:"conversations_deleted"`
	ThreadsMoved         int `json:"threads_moved"`
	ThreadsCleaned       int `json:"threads_cleaned"`
	EchoesDeleted        int `json:"echoes_deleted"`
	DuplicatesDeleted    int `json:"duplicates_deleted"`
	LineItemsDeleted     int `json:"lineitems_deleted"`
	AttachmentsDeleted   int `json:"attachments_deleted"`
}

// ThreadsDeleted sums every kind of thread deletion.
func (c Counts) ThreadsDeleted() int {
	return c.EchoesDeleted + c.DuplicatesDeleted + c.LineItemsDeleted
}

// Add accumulates o into c.
func (c *Counts) Add(o Counts) {
	c.ConversationsMerged += o.ConversationsMerged
	c.ConversationsDeleted += o.ConversationsDeleted
	c.ThreadsMoved += o.ThreadsMoved
	c.ThreadsCleaned += o.ThreadsCleaned
	c.EchoesDeleted += o.EchoesDeleted
	c.DuplicatesDeleted += o.DuplicatesDeleted
	c.LineItemsDeleted += o.LineItemsDeleted
	c.AttachmentsDeleted += o.AttachmentsDeleted
}

// RunKind names the maintenance job that produced a run
type RunKind string

const (
	RunFull  RunKind = "run"
	RunMerge RunKind = "merge"
	RunDedup RunKind = "dedup"
)

// Run is a recorded maintenance run.
type Run struct {
	ID         string    `json:"id"`
	Kind       RunKind   `json:"kind"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DryRun     bool      `json:"dry_run"`
	Error      string    `json:"error,omitempty"`
	Counts
}
