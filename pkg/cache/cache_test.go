package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewKeyDeterministic(t *testing.T) {
	assert.Equal(t, NewKey("Fruit", "#FF5733"), NewKey("Fruit", "#FF5733"))
	assert.Equal(t, NewKey("Fruit", ""), NewKey("Fruit", ""))
}

func TestNewKeyNormalization(t *testing.T) {
	assert.Equal(t, NewKey("Fruit", ""), NewKey("  fruit ", ""))
	assert.Equal(t, NewKey("Office  Supplies", ""), NewKey("office supplies", ""))
	assert.Equal(t, NewKey("Fruit", "#FF5733"), NewKey("fruit", " #ff5733 "))
	assert.Equal(t, NewKey("Fruit", ""), NewKey("Fruit", "   "))
}

func TestNewKeyDistinguishesInputs(t *testing.T) {
	assert.NotEqual(t, NewKey("Fruit", ""), NewKey("Fruit", "#FF5733"))
	assert.NotEqual(t, NewKey("Fruit", "#FF5733"), NewKey("Fruit", "#000000"))
	assert.NotEqual(t, NewKey("Fruit", ""), NewKey("Vegetables", ""))
	// The separator must not let topic text leak into the color slot.
	assert.NotEqual(t, NewKey("a b", ""), NewKey("a", "b"))
}

func TestNewEntry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	items := []string{"a", "b", "c", "d"}
	e := NewEntry(items, now, time.Minute)
	items[0] = "mutated"

	assert.Equal(t, "a", e.Items[0])
	assert.Equal(t, now.Add(time.Minute), e.ExpiresAt)
	assert.False(t, e.Expired(now))
	assert.True(t, e.Expired(now.Add(time.Minute)))

	assert.Equal(t, now.Add(DefaultTTL), NewEntry(items, now, 0).ExpiresAt)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "hit", Hit.String())
	assert.Equal(t, "miss", Miss.String())
	assert.Equal(t, "expired", Expired.String())
	assert.True(t, Lookup{Status: Hit}.Found())
	assert.False(t, Lookup{Status: Expired}.Found())
}
