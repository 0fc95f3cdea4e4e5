package store

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/maxo-smsgw/smsgw/internal/model"
)

// Fixture is a YAML snapshot of conversations used to reproduce production
// data locally.
type Fixture struct {
	Conversations []FixtureConversation `yaml:"conversations"`
}

type FixtureConversation struct {
	model.Conversation `yaml:",inline"`
	Threads            []model.Thread `yaml:"threads"`
}

// ParseFixture decodes a fixture document.
func ParseFixture(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	for i, c := range f.Conversations {
		if c.CustomerEmail == "" {
			return nil, fmt.Errorf("conversation %d: customer_email is required", i)
		}
	}
	return &f, nil
}

// Import inserts every record of f and returns how many conversations and
// threads were written. A zero threads_count is filled in from the threads.
func (s *Store) Import(ctx context.Context, f *Fixture) (int, int, error) {
	var convs, threads int
	for _, fc := range f.Conversations {
		c := fc.Conversation
		if c.ThreadsCount == 0 {
			c.ThreadsCount = len(fc.Threads)
		}
		if err := s.CreateConversation(ctx, &c); err != nil {
			return convs, threads, err
		}
		convs++

		for _, t := range fc.Threads {
			t.ConversationID = c.ID
			if err := s.CreateThread(ctx, &t); err != nil {
				return convs, threads, err
			}
			threads++
		}
	}
	return convs, threads, nil
}
