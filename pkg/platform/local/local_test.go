package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chatterly/pkg/models"
	"chatterly/pkg/platform"
)

func openTest(t *testing.T) *Local {
	t.Helper()
	dir := t.TempDir()
	l, err := Open(Options{
		DBPath:        filepath.Join(dir, "db"),
		UploadDir:     filepath.Join(dir, "uploads"),
		PublicBaseURL: "http://localhost:8080",
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if err := l.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return l
}

func setupDirect(t *testing.T, l *Local, a, b string) string {
	t.Helper()
	ctx := context.Background()
	id, err := l.CreateChannel(ctx)
	if err != nil {
		t.Fatalf("create channel: %v", err)
	}
	if err := l.AddMemberships(ctx, id, []string{a, b}); err != nil {
		t.Fatalf("add memberships: %v", err)
	}
	return id
}

func TestInsertAndListMessages(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()
	ch := setupDirect(t, l, "me", "bob")

	texts := []string{"one", "two", "three"}
	for _, txt := range texts {
		_, err := l.InsertMessage(ctx, models.Message{
			ChannelID: ch,
			SenderID:  "me",
			Content:   models.TextContent(txt),
			ClientKey: "local-" + txt,
		})
		if err != nil {
			t.Fatalf("insert %q: %v", txt, err)
		}
	}

	msgs, err := l.ListMessages(ctx, ch)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	for i, txt := range texts {
		if msgs[i].Content.Value != txt {
			t.Fatalf("order broken: %+v", msgs)
		}
		if msgs[i].Provisional() {
			t.Fatalf("persisted message kept a provisional id: %+v", msgs[i])
		}
		if msgs[i].ClientKey != "local-"+txt {
			t.Fatalf("client key not echoed: %+v", msgs[i])
		}
		if msgs[i].SenderProfile != nil {
			t.Fatalf("profile stored inline: %+v", msgs[i])
		}
	}
}

func TestInsertRejectsMissingChannel(t *testing.T) {
	l := openTest(t)
	_, err := l.InsertMessage(context.Background(), models.Message{
		ChannelID: "no-such-channel",
		SenderID:  "me",
		Content:   models.TextContent("hi"),
	})
	if err == nil {
		t.Fatal("expected insert into missing channel to fail")
	}
}

func TestFeedDeliversInsertEvents(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()
	ch := setupDirect(t, l, "me", "bob")

	got := make(chan platform.InsertEvent, 1)
	sub, err := l.SubscribeToInserts(ctx, ch, func(ev platform.InsertEvent) {
		got <- ev
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	ack, err := l.InsertMessage(ctx, models.Message{
		ChannelID: ch,
		SenderID:  "bob",
		Content:   models.TextContent("over the wire"),
		ClientKey: "local-w",
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	select {
	case ev := <-got:
		if ev.Message.ID != ack.ID || ev.Message.ClientKey != "local-w" {
			t.Fatalf("event = %+v, ack = %+v", ev.Message, ack)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no feed event delivered")
	}
}

func TestChannelListAndSummary(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()
	for _, p := range []models.Account{
		{ID: "me", DisplayName: "Me"},
		{ID: "ann", DisplayName: "Ann"},
		{ID: "bob", DisplayName: "Bob"},
	} {
		if err := l.UpsertProfile(ctx, p); err != nil {
			t.Fatalf("upsert profile: %v", err)
		}
	}
	chA := setupDirect(t, l, "me", "ann")
	chB := setupDirect(t, l, "me", "bob")

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := l.UpdateChannelSummary(ctx, chA, "from ann", at); err != nil {
		t.Fatalf("update summary: %v", err)
	}

	ids, err := l.ListMembershipsForAccount(ctx, "me")
	if err != nil || len(ids) != 2 {
		t.Fatalf("memberships = %v, err = %v", ids, err)
	}
	chs, err := l.ListChannelsWithMembers(ctx, ids)
	if err != nil {
		t.Fatalf("list channels: %v", err)
	}
	if len(chs) != 2 {
		t.Fatalf("channels = %+v", chs)
	}
	if chs[0].ID != chA || chs[0].LastMessageText != "from ann" {
		t.Fatalf("summary channel not first: %+v", chs)
	}
	if chs[1].ID != chB || !chs[1].LastMessageAt.IsZero() {
		t.Fatalf("quiet channel misplaced: %+v", chs[1])
	}
	for _, m := range chs[0].Members {
		if m.Profile == nil {
			t.Fatalf("member profile not joined: %+v", chs[0].Members)
		}
	}
}

func TestSearchAccountsByName(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()
	for _, p := range []models.Account{
		{ID: "me", DisplayName: "Robert Self"},
		{ID: "bob", DisplayName: "Bob Roberts"},
		{ID: "ann", DisplayName: "Ann"},
	} {
		if err := l.UpsertProfile(ctx, p); err != nil {
			t.Fatalf("upsert profile: %v", err)
		}
	}

	res, err := l.SearchAccountsByName(ctx, "robert", "me", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 1 || res[0].ID != "bob" {
		t.Fatalf("results = %+v, want only bob", res)
	}

	res, err = l.SearchAccountsByName(ctx, "  ", "me", 10)
	if err != nil || res != nil {
		t.Fatalf("blank query: res = %v, err = %v", res, err)
	}
}

func TestDeleteChannelIsIdempotent(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()
	ch := setupDirect(t, l, "me", "bob")

	if err := l.DeleteChannel(ctx, ch); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := l.DeleteChannel(ctx, ch); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	ids, err := l.ListMembershipsForAccount(ctx, "me")
	if err != nil || len(ids) != 0 {
		t.Fatalf("memberships after delete = %v, err = %v", ids, err)
	}
	if l.HasChannel(ch) {
		t.Fatal("channel record survived delete")
	}
}

func TestGetProfileNotFound(t *testing.T) {
	l := openTest(t)
	_, err := l.GetProfile(context.Background(), "ghost")
	if err != platform.ErrNotFound {
		t.Fatalf("err = %v, want platform.ErrNotFound", err)
	}
}

func TestUploadFile(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()

	url, err := l.UploadFile(ctx, "uploads/ch1/abc.png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "http://localhost:8080/files/uploads/ch1/abc.png" {
		t.Fatalf("url = %q", url)
	}
	b, err := os.ReadFile(filepath.Join(l.UploadDir(), "uploads", "ch1", "abc.png"))
	if err != nil || string(b) != "png-bytes" {
		t.Fatalf("stored bytes = %q, err = %v", b, err)
	}

	if _, err := l.UploadFile(ctx, "../escape.txt", []byte("x")); err == nil {
		t.Fatal("expected traversal path to be rejected")
	}
	if _, err := l.UploadFile(ctx, "/abs.txt", []byte("x")); err == nil {
		t.Fatal("expected absolute path to be rejected")
	}
}

func TestSweepOrphans(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()

	alive := setupDirect(t, l, "me", "ann")
	dead := setupDirect(t, l, "me", "bob")
	for _, ch := range []string{alive, dead} {
		for i := 0; i < 2; i++ {
			if _, err := l.InsertMessage(ctx, models.Message{
				ChannelID: ch, SenderID: "me", Content: models.TextContent("m"),
			}); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}
		if _, err := l.UploadFile(ctx, "uploads/"+ch+"/f.bin", []byte("x")); err != nil {
			t.Fatalf("upload: %v", err)
		}
	}
	if err := l.DeleteChannel(ctx, dead); err != nil {
		t.Fatalf("delete: %v", err)
	}

	n, err := l.SweepOrphans(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("removed = %d, want the dead channel's 2 rows", n)
	}

	msgs, err := l.ListMessages(ctx, alive)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("alive messages = %d, err = %v", len(msgs), err)
	}
	orphans, err := l.ListMessages(ctx, dead)
	if err != nil || len(orphans) != 0 {
		t.Fatalf("dead messages = %d, err = %v", len(orphans), err)
	}

	if _, err := os.Stat(filepath.Join(l.UploadDir(), "uploads", dead)); !os.IsNotExist(err) {
		t.Fatalf("dead upload dir survived: %v", err)
	}
	if _, err := os.Stat(filepath.Join(l.UploadDir(), "uploads", alive)); err != nil {
		t.Fatalf("alive upload dir removed: %v", err)
	}
}
