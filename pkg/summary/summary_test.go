package summary

import (
	"context"
	"errors"
	"testing"
	"time"

	"chatterly/pkg/platform/platformtest"
	"chatterly/pkg/store"
)

func TestOnChannelAdvancedUpdatesLocalAndPlatform(t *testing.T) {
	pf := &platformtest.Fake{}
	st := store.New()
	u := New(st, pf)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u.OnChannelAdvanced(context.Background(), "ch1", "latest", at)

	chs := st.Channels()
	if len(chs) != 1 || chs[0].LastMessageText != "latest" || !chs[0].LastMessageAt.Equal(at) {
		t.Fatalf("local summary = %+v", chs)
	}
	if len(pf.SummaryCalls) != 1 || pf.SummaryCalls[0].ChannelID != "ch1" {
		t.Fatalf("platform calls = %+v", pf.SummaryCalls)
	}
}

func TestPersistFailureKeepsLocalView(t *testing.T) {
	pf := &platformtest.Fake{SummaryErr: errors.New("write timeout")}
	st := store.New()
	u := New(st, pf)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u.OnChannelAdvanced(context.Background(), "ch1", "kept locally", at)

	chs := st.Channels()
	if len(chs) != 1 || chs[0].LastMessageText != "kept locally" {
		t.Fatalf("local view rolled back on persist failure: %+v", chs)
	}
}
