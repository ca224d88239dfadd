package conversation_test

import (
	"testing"

	"github.com/MegaGrindStone/quinton-chat/internal/conversation"
	"github.com/MegaGrindStone/quinton-chat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendUser(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantOK  bool
		wantLen int
	}{
		{name: "Plain text", content: "Hello", wantOK: true, wantLen: 1},
		{name: "Empty", content: "", wantOK: false, wantLen: 0},
		{name: "Whitespace only", content: "   ", wantOK: false, wantLen: 0},
		{name: "Tabs and newlines", content: "\t\n", wantOK: false, wantLen: 0},
		{name: "Padded text is kept verbatim", content: "  hi  ", wantOK: true, wantLen: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := conversation.NewStore()

			ok := s.AppendUser(tt.content)

			assert.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.wantLen, s.Len())
			if tt.wantLen > 0 {
				last, _ := s.Last()
				assert.Equal(t, models.RoleUser, last.Role)
				assert.Equal(t, tt.content, last.Content)
				assert.NotEmpty(t, last.ID)
			}
		})
	}
}

func TestBeginOrExtendAssistant(t *testing.T) {
	s := conversation.NewStore()
	require.True(t, s.AppendUser("Hello"))

	cumulative := []string{"He", "Hello", "Hello the", "Hello there!"}
	s.BeginOrExtendAssistant(cumulative[0])
	lenAfterFirst := s.Len()
	for _, c := range cumulative[1:] {
		s.BeginOrExtendAssistant(c)
	}

	assert.Equal(t, 2, lenAfterFirst)
	msgs := s.Snapshot()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.Message{ID: msgs[0].ID, Role: models.RoleUser, Content: "Hello", Timestamp: msgs[0].Timestamp}, msgs[0])
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello there!", msgs[1].Content)
}

func TestBeginOrExtendAssistantIsIdempotent(t *testing.T) {
	s := conversation.NewStore()
	s.AppendUser("Hi")

	first := s.BeginOrExtendAssistant("abc")
	second := s.BeginOrExtendAssistant("abc")

	assert.Equal(t, first, second)
	assert.Equal(t, 2, s.Len())
}

func TestBeginOrExtendAssistantKeepsEarlierTurns(t *testing.T) {
	s := conversation.NewStore()
	s.AppendUser("one")
	s.BeginOrExtendAssistant("first answer")
	s.AppendUser("two")
	s.BeginOrExtendAssistant("sec")
	s.BeginOrExtendAssistant("second answer")

	msgs := s.Snapshot()
	require.Len(t, msgs, 4)
	assert.Equal(t, "first answer", msgs[1].Content)
	assert.Equal(t, "second answer", msgs[3].Content)
}

func TestClear(t *testing.T) {
	s := conversation.NewStore()
	s.AppendUser("Hi")
	s.BeginOrExtendAssistant("Hello")

	s.Clear()

	assert.Equal(t, 0, s.Len())
	_, ok := s.Last()
	assert.False(t, ok)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := conversation.NewStore()
	s.AppendUser("Hi")

	snap := s.Snapshot()
	snap[0].Content = "changed"

	last, _ := s.Last()
	assert.Equal(t, "Hi", last.Content)
}
