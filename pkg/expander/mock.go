package expander

import (
	"context"
	"fmt"
)

// Mock is the offline expander. It returns "<topic> - Variation N" items.
type Mock struct{}

// Expand returns ItemCount synthetic variations of topic.
func (Mock) Expand(ctx context.Context, topic, _ string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items := make([]string, ItemCount)
	for i := range items {
		items[i] = fmt.Sprintf("%s - Variation %d", topic, i+1)
	}
	return items, nil
}
