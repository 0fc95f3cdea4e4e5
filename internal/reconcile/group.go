package reconcile

import (
	"github.com/maxo-smsgw/smsgw/internal/gateway"
	"github.com/maxo-smsgw/smsgw/internal/model"
)

// Group is every live conversation of one correspondent. Primary is the
// earliest and the merge target.
type Group struct {
	Email      string
	Primary    model.Conversation
	Duplicates []model.Conversation
}

// Singleton reports whether there is nothing to merge.
func (g Group) Singleton() bool {
	return len(g.Duplicates) == 0
}

// GroupConversations groups live gateway conversations by exact customer
// address. Groups come back in the order of their primaries.
func GroupConversations(convs []model.Conversation, matcher *gateway.Matcher) []Group {
	sorted := make([]model.Conversation, 0, len(convs))
	for _, c := range convs {
		if !c.Live() || !matcher.IsGateway(c.CustomerEmail) {
			continue
		}
		sorted = append(sorted, c)
	}
	model.SortConversations(sorted)

	index := make(map[string]int)
	var groups []Group
	for _, c := range sorted {
		i, ok := index[c.CustomerEmail]
		if !ok {
			index[c.CustomerEmail] = len(groups)
			groups = append(groups, Group{Email: c.CustomerEmail, Primary: c})
			continue
		}
		groups[i].Duplicates = append(groups[i].Duplicates, c)
	}
	return groups
}
