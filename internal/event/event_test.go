package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionValid(t *testing.T) {
	for _, a := range Actions() {
		assert.True(t, a.Valid(), "expected %q to be valid", a)
	}

	assert.False(t, Action("").Valid())
	assert.False(t, Action("checkout").Valid())
	assert.False(t, Action("PRODUCT_VIEW").Valid())
}

func TestValidateRejectsUnknownAction(t *testing.T) {
	ev := &Event{Action: "page_view", Timestamp: time.Now()}
	err := Validate(ev)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestValidateAcceptsMinimalEvent(t *testing.T) {
	// Every field except action is independently optional.
	for _, a := range Actions() {
		ev := &Event{Action: a, Timestamp: time.Now()}
		assert.NoError(t, Validate(ev), "action %q", a)
	}
}

func TestValidateMetadata(t *testing.T) {
	base := func(md map[string]any) *Event {
		return &Event{Action: ActionProductView, Metadata: md, Timestamp: time.Now()}
	}

	assert.NoError(t, Validate(base(nil)))
	assert.NoError(t, Validate(base(map[string]any{
		"source":   "homepage",
		"position": float64(3),
		"promoted": true,
		"variant":  nil,
	})))

	err := Validate(base(map[string]any{"nested": map[string]any{"a": 1}}))
	assert.ErrorIs(t, err, ErrInvalidMetadata)

	err = Validate(base(map[string]any{"list": []any{1, 2}}))
	assert.ErrorIs(t, err, ErrInvalidMetadata)

	err = Validate(base(map[string]any{"": "empty key"}))
	assert.ErrorIs(t, err, ErrInvalidMetadata)

	big := make(map[string]any, MaxMetadataKeys+1)
	for i := 0; i <= MaxMetadataKeys; i++ {
		big[string(rune('a'+i%26))+string(rune('0'+i/26))] = i
	}
	err = Validate(base(big))
	assert.ErrorIs(t, err, ErrInvalidMetadata)
}

func TestAnonymous(t *testing.T) {
	ev := &Event{Action: ActionUserLogin}
	assert.True(t, ev.Anonymous())

	ev.CallerID = "u-1"
	assert.False(t, ev.Anonymous())
}
