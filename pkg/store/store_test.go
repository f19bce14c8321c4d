package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatterly/pkg/models"
)

func msgAt(id, sender, text string, at time.Time) models.Message {
	return models.Message{
		ID:        id,
		ChannelID: "ch1",
		SenderID:  sender,
		Content:   models.TextContent(text),
		CreatedAt: at,
	}
}

func ids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestReplaceMessagesSortsAscending(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ReplaceMessages("ch1", []models.Message{
		msgAt("m3", "a", "three", base.Add(2*time.Minute)),
		msgAt("m1", "a", "one", base),
		msgAt("m2", "b", "two", base.Add(time.Minute)),
	})
	require.Equal(t, []string{"m1", "m2", "m3"}, ids(s.Messages()))
	require.Equal(t, "ch1", s.OpenChannelID())
}

func TestPromoteKeepsPosition(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ReplaceMessages("ch1", []models.Message{msgAt("m1", "a", "hi", base)})

	prov := msgAt("local-x", "a", "draft", base.Add(time.Second))
	prov.ClientKey = "local-x"
	s.AppendProvisional(prov)

	require.True(t, s.Promote("local-x", "srv-9", base.Add(2*time.Second)))
	msgs := s.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "srv-9", msgs[1].ID)
	require.False(t, msgs[1].Provisional())
	require.Equal(t, "draft", msgs[1].Content.Value)

	// second promote for the same provisional id is a no-op
	require.False(t, s.Promote("local-x", "srv-10", base))
}

func TestWithdrawRemovesOnlyTarget(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ReplaceMessages("ch1", []models.Message{msgAt("m1", "a", "hi", base)})
	s.AppendProvisional(msgAt("local-y", "a", "oops", base.Add(time.Second)))

	require.True(t, s.Withdraw("local-y"))
	require.False(t, s.Withdraw("local-y"), "second withdraw must be a no-op")
	require.Equal(t, []string{"m1"}, ids(s.Messages()))
}

func TestMergeIncomingDuplicateIsNoop(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ReplaceMessages("ch1", []models.Message{msgAt("m1", "a", "hi", base)})

	require.Equal(t, MergeDuplicate, s.MergeIncoming(msgAt("m1", "a", "hi", base)).Op)
	require.Equal(t, MergeDuplicate, s.MergeIncoming(msgAt("m1", "a", "hi", base)).Op)
	require.Len(t, s.Messages(), 1)
}

func TestMergeIncomingDropsOtherChannel(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ReplaceMessages("ch2", nil)

	// message addressed to ch1 arriving while ch2 is open
	res := s.MergeIncoming(msgAt("srv-1", "a", "wrong room", base))
	require.Equal(t, MergeStale, res.Op)
	require.Empty(t, s.Messages())
	require.Equal(t, "ch2", s.OpenChannelID())
}

func TestMergeIncomingPromotesByClientKey(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prov := msgAt("local-k", "a", "ping", base)
	prov.ClientKey = "local-k"
	s.ReplaceMessages("ch1", nil)
	s.AppendProvisional(prov)

	incoming := msgAt("srv-1", "a", "ping", base.Add(3*time.Second))
	incoming.ClientKey = "local-k"
	res := s.MergeIncoming(incoming)
	require.Equal(t, MergePromoted, res.Op)
	require.True(t, res.Newest)
	require.Equal(t, []string{"srv-1"}, ids(s.Messages()))
}

func TestMergeIncomingHeuristicFallback(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC)
	s.ReplaceMessages("ch1", nil)
	s.AppendProvisional(msgAt("local-h", "a", "same words", base))

	// feed echo without the client key, 40s later but same minute
	res := s.MergeIncoming(msgAt("srv-2", "a", "same words", base.Add(40*time.Second)))
	require.Equal(t, MergePromoted, res.Op)

	// different minute: no match, appended instead
	s.AppendProvisional(msgAt("local-h2", "a", "other words", base))
	res = s.MergeIncoming(msgAt("srv-3", "a", "other words", base.Add(2*time.Minute)))
	require.Equal(t, MergeAppended, res.Op)
}

// The two completion orders for one send must converge: promote acked by
// the insert first, or feed echo first.
func TestPromoteAndIngestConverge(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ackID, ackAt := "srv-5", base.Add(time.Second)

	mkProv := func() models.Message {
		m := msgAt("local-c", "a", "hello", base)
		m.ClientKey = "local-c"
		return m
	}
	mkEcho := func() models.Message {
		m := msgAt(ackID, "a", "hello", ackAt)
		m.ClientKey = "local-c"
		return m
	}

	// promote first, then feed echo
	s1 := New()
	s1.ReplaceMessages("ch1", nil)
	s1.AppendProvisional(mkProv())
	s1.Promote("local-c", ackID, ackAt)
	require.Equal(t, MergeDuplicate, s1.MergeIncoming(mkEcho()).Op)

	// feed echo first, then promote
	s2 := New()
	s2.ReplaceMessages("ch1", nil)
	s2.AppendProvisional(mkProv())
	require.Equal(t, MergePromoted, s2.MergeIncoming(mkEcho()).Op)
	require.False(t, s2.Promote("local-c", ackID, ackAt), "late promote must be a no-op")

	a, b := s2.Messages(), s1.Messages()
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	require.Equal(t, b[0].ID, a[0].ID)
	require.True(t, a[0].CreatedAt.Equal(b[0].CreatedAt))
}

func TestMergeIncomingInsertsInOrder(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ReplaceMessages("ch1", []models.Message{
		msgAt("m1", "a", "one", base),
		msgAt("m3", "b", "three", base.Add(2*time.Minute)),
	})

	res := s.MergeIncoming(msgAt("m2", "b", "two", base.Add(time.Minute)))
	require.Equal(t, MergeAppended, res.Op)
	require.False(t, res.Newest)
	require.Equal(t, []string{"m1", "m2", "m3"}, ids(s.Messages()))

	// equal timestamps keep arrival order
	res = s.MergeIncoming(msgAt("m2b", "a", "two-bis", base.Add(time.Minute)))
	require.Equal(t, MergeAppended, res.Op)
	require.Equal(t, []string{"m1", "m2", "m2b", "m3"}, ids(s.Messages()))
}

func TestChannelSummarySorting(t *testing.T) {
	s := New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ReplaceChannels([]models.Channel{
		{ID: "quiet"},
		{ID: "old", LastMessageText: "old", LastMessageAt: base},
	})

	s.UpsertChannelSummary("busy", "fresh", base.Add(time.Hour))
	chs := s.Channels()
	got := make([]string, len(chs))
	for i, c := range chs {
		got[i] = c.ID
	}
	require.Equal(t, []string{"busy", "old", "quiet"}, got)

	// advancing an existing channel reorders, never duplicates
	s.UpsertChannelSummary("old", "newer", base.Add(2*time.Hour))
	chs = s.Channels()
	require.Len(t, chs, 3)
	require.Equal(t, "old", chs[0].ID)
	require.Equal(t, "newer", chs[0].LastMessageText)
}

func TestWatchDeliversEvents(t *testing.T) {
	s := New()
	ch, cancel := s.Watch(8)
	defer cancel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.AppendProvisional(msgAt("local-w", "a", "hi", base))

	select {
	case ev := <-ch:
		require.Equal(t, EventAppended, ev.Kind)
		require.NotNil(t, ev.Message)
		require.Equal(t, "local-w", ev.Message.ID)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}
