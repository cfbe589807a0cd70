package journal

import (
	"path/filepath"
	"testing"

	"github.com/codeturn/core/internal/session"
)

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sess := session.New("be nice", dir)

	h, err := Open(dir, sess, nil)
	if err != nil {
		t.Fatal(err)
	}

	items := []session.Item{
		session.UserMessage("hi"),
		session.FunctionCall("c1", "shell", `{"command":["ls"]}`),
		session.FunctionCallOutput("c1", "ok", true),
	}
	h.Append(items)
	h.Shutdown()

	path, err := FindLatest(dir)
	if err != nil {
		t.Fatal(err)
	}
	if path == "" {
		t.Fatal("expected a rollout file to be found")
	}

	resumed, err := Resume(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resumed.Handle.Shutdown()

	if len(resumed.Items) != len(items) {
		t.Fatalf("got %d items, want %d", len(resumed.Items), len(items))
	}
	for i, want := range items {
		got := resumed.Items[i]
		if got.Kind != want.Kind || got.Content != want.Content || got.CallID != want.CallID {
			t.Errorf("item %d = %+v, want %+v", i, got, want)
		}
	}
	if resumed.Session.ID != sess.ID {
		t.Errorf("session id = %q, want %q", resumed.Session.ID, sess.ID)
	}
}

func TestResumeSkipsUnknownKind(t *testing.T) {
	dir := t.TempDir()
	sess := session.New("", dir)
	h, err := Open(dir, sess, nil)
	if err != nil {
		t.Fatal(err)
	}
	h.Append([]session.Item{
		session.UserMessage("known"),
		{Kind: "some_future_variant", Content: "unknown"},
	})
	h.Shutdown()

	path, _ := FindLatest(dir)
	resumed, err := Resume(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resumed.Handle.Shutdown()

	if len(resumed.Items) != 1 {
		t.Fatalf("expected unknown variant to be skipped, got %d items", len(resumed.Items))
	}
	if resumed.Items[0].Content != "known" {
		t.Errorf("unexpected surviving item: %+v", resumed.Items[0])
	}
}

func TestForkDropsLastN(t *testing.T) {
	dir := t.TempDir()
	sess := session.New("", dir)
	h, err := Open(dir, sess, nil)
	if err != nil {
		t.Fatal(err)
	}
	h.Append([]session.Item{
		session.UserMessage("first"),
		session.AssistantMessage("reply1"),
		session.UserMessage("second"),
		session.AssistantMessage("reply2"),
	})
	h.Shutdown()

	path, _ := FindLatest(dir)
	forked, err := Fork(path, 1, nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(forked.Items) != 2 {
		t.Fatalf("expected fork(1) to drop the last user turn and after, got %d items: %+v", len(forked.Items), forked.Items)
	}
	if forked.Items[0].Content != "first" {
		t.Errorf("unexpected first item: %+v", forked.Items[0])
	}
}

func TestRolloutPathLayout(t *testing.T) {
	dir := t.TempDir()
	sess := session.New("", dir)
	h, err := Open(dir, sess, nil)
	if err != nil {
		t.Fatal(err)
	}
	h.Shutdown()

	path, _ := FindLatest(dir)
	rel, _ := filepath.Rel(dir, path)
	y := sess.Timestamp.Format("2006")
	if filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(rel)))) != "." {
		t.Fatalf("expected year/month/day nesting, got %q", rel)
	}
	if filepath.Base(filepath.Dir(filepath.Dir(filepath.Dir(rel)))) != y {
		t.Errorf("expected year directory %q in path %q", y, rel)
	}
}
