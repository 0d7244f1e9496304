package chat

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/termchat/internal/models"
)

func confirmed(id string, role models.Role, content string, at time.Time) models.Message {
	return models.Message{ID: id, Role: role, Content: content, CreatedAt: at, Status: models.StatusConfirmed}
}

var t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func TestAppendLocalProvisional(t *testing.T) {
	l := NewLog()

	msg := l.AppendLocalProvisional("hi")
	assert.True(t, msg.Provisional())
	assert.Equal(t, models.RoleUser, msg.Role)
	assert.True(t, strings.HasPrefix(msg.ID, localIDPrefix))

	msgs := l.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)
}

func TestApplyIncoming_ConfirmsProvisional(t *testing.T) {
	l := NewLog()
	l.AppendLocalProvisional("hi")

	applied := l.ApplyIncoming(confirmed("srv1", models.RoleUser, "hi", t0))
	assert.True(t, applied)

	msgs := l.Messages()
	require.Len(t, msgs, 1, "provisional must be replaced, not duplicated")
	assert.Equal(t, "srv1", msgs[0].ID)
	assert.Equal(t, models.StatusConfirmed, msgs[0].Status)
}

func TestApplyIncoming_UserEchoWithoutProvisional(t *testing.T) {
	// A user message arriving with no pending provisional (e.g. after a
	// reconnect) is simply appended.
	l := NewLog()

	l.ApplyIncoming(confirmed("srv1", models.RoleUser, "hi", t0))
	require.Equal(t, 1, l.Len())
}

func TestApplyIncoming_AssistantDedup(t *testing.T) {
	l := NewLog()

	msg := confirmed("srv1", models.RoleAssistant, "hello", t0)
	assert.True(t, l.ApplyIncoming(msg))
	assert.False(t, l.ApplyIncoming(msg), "exact redelivery must be dropped")
	assert.False(t, l.ApplyIncoming(msg))

	require.Equal(t, 1, l.Len())
}

func TestApplyIncoming_DuplicateUserEchoKeepsProvisional(t *testing.T) {
	// Redelivery of an already-applied user echo must not consume another
	// provisional entry.
	l := NewLog()
	l.AppendLocalProvisional("one")
	l.ApplyIncoming(confirmed("srv1", models.RoleUser, "one", t0))

	l.AppendLocalProvisional("two")
	l.ApplyIncoming(confirmed("srv1", models.RoleUser, "one", t0)) // duplicate

	msgs := l.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].Provisional(), "second provisional must survive the duplicate")
}

func TestApplyIncoming_AssistantLeavesProvisionalAlone(t *testing.T) {
	l := NewLog()
	l.AppendLocalProvisional("question")

	l.ApplyIncoming(confirmed("srv1", models.RoleAssistant, "answer", t0))

	msgs := l.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].Provisional())
	assert.Equal(t, "srv1", msgs[1].ID)
}

func TestPrependHistoryPage_Ordering(t *testing.T) {
	l := NewLog()

	// Live messages arrive first.
	l.ApplyIncoming(confirmed("live1", models.RoleAssistant, "newest", t0.Add(time.Hour)))

	// Page 1: most recent history, oldest-first within the page.
	l.PrependHistoryPage([]models.Message{
		confirmed("h3", models.RoleUser, "third", t0.Add(2*time.Minute)),
		confirmed("h4", models.RoleAssistant, "fourth", t0.Add(3*time.Minute)),
	})

	// Page 2: strictly older.
	l.PrependHistoryPage([]models.Message{
		confirmed("h1", models.RoleUser, "first", t0),
		confirmed("h2", models.RoleAssistant, "second", t0.Add(time.Minute)),
	})

	msgs := l.Messages()
	require.Len(t, msgs, 5)

	var ids []string
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"h1", "h2", "h3", "h4", "live1"}, ids)

	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt),
			"timestamps must be non-decreasing end-to-end")
	}
}

func TestPrependHistoryPage_SkipsSeenIDs(t *testing.T) {
	l := NewLog()
	l.ApplyIncoming(confirmed("dup", models.RoleAssistant, "already live", t0))

	l.PrependHistoryPage([]models.Message{
		confirmed("h1", models.RoleUser, "old", t0.Add(-time.Hour)),
		confirmed("dup", models.RoleAssistant, "already live", t0),
	})

	msgs := l.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "h1", msgs[0].ID)
	assert.Equal(t, "dup", msgs[1].ID)
}

func TestPrependHistoryPage_Empty(t *testing.T) {
	l := NewLog()
	l.PrependHistoryPage(nil)
	assert.Zero(t, l.Len())
}

func TestRemoveProvisional(t *testing.T) {
	l := NewLog()
	msg := l.AppendLocalProvisional("oops")
	l.ApplyIncoming(confirmed("srv1", models.RoleAssistant, "unrelated", t0))

	l.RemoveProvisional(msg.ID)

	msgs := l.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "srv1", msgs[0].ID)

	// Removing again is a no-op.
	l.RemoveProvisional(msg.ID)
	assert.Equal(t, 1, l.Len())
}

func TestNoDuplicates_RedeliveryStorm(t *testing.T) {
	l := NewLog()

	for round := 0; round < 3; round++ {
		for i := 0; i < 10; i++ {
			l.ApplyIncoming(confirmed(
				fmt.Sprintf("srv%d", i), models.RoleAssistant, "m", t0.Add(time.Duration(i)*time.Second)))
		}
	}

	msgs := l.Messages()
	require.Len(t, msgs, 10)
	ids := make(map[string]int)
	for _, m := range msgs {
		ids[m.ID]++
	}
	for id, n := range ids {
		assert.Equal(t, 1, n, "id %s appears %d times", id, n)
	}
}

func TestMessagesReturnsCopy(t *testing.T) {
	l := NewLog()
	l.ApplyIncoming(confirmed("srv1", models.RoleAssistant, "hello", t0))

	msgs := l.Messages()
	msgs[0].Content = "mutated"

	assert.Equal(t, "hello", l.Messages()[0].Content)
}
