package store_test

import (
	"context"
	"testing"

	"ciphervault/internal/keys"
	"ciphervault/internal/store"
	"ciphervault/internal/store/storetest"
)

func TestInsertFetchRoundTrip(t *testing.T) {
	b := storetest.New(t)
	ctx := context.Background()

	sess, err := b.Session("default", true)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	defer sess.Close(ctx, true)

	tags := []store.EntryTag{{Name: "color", Value: "red", Plaintext: false}}
	if err := sess.Update(ctx, store.OpInsert, store.KindGeneral, "cat", "widget", []byte("payload"), tags, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := sess.Close(ctx, true); err != nil {
		t.Fatalf("commit: %v", err)
	}

	readSess, err := b.Session("default", false)
	if err != nil {
		t.Fatalf("open read session: %v", err)
	}
	defer readSess.Close(ctx, false)

	entry, err := readSess.Fetch(ctx, store.KindGeneral, "cat", "widget", false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(entry.Value) != "payload" {
		t.Fatalf("got value %q", entry.Value)
	}
	if len(entry.Tags) != 1 || entry.Tags[0].Name != "color" || entry.Tags[0].Value != "red" {
		t.Fatalf("unexpected tags: %+v", entry.Tags)
	}
}

func TestInsertDuplicateRejected(t *testing.T) {
	b := storetest.New(t)
	ctx := context.Background()

	sess, _ := b.Session("default", true)
	if err := sess.Update(ctx, store.OpInsert, store.KindGeneral, "cat", "dup", []byte("v1"), nil, nil); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := sess.Update(ctx, store.OpInsert, store.KindGeneral, "cat", "dup", []byte("v2"), nil, nil); err == nil {
		t.Fatalf("expected duplicate error")
	}
	sess.Close(ctx, true)
}

func TestRemoveMissingIsNotFound(t *testing.T) {
	b := storetest.New(t)
	ctx := context.Background()

	sess, _ := b.Session("default", true)
	defer sess.Close(ctx, false)
	if err := sess.Update(ctx, store.OpRemove, store.KindGeneral, "cat", "ghost", nil, nil, nil); err == nil {
		t.Fatalf("expected not-found error removing a missing entry")
	}
}

func TestCountWithTagFilter(t *testing.T) {
	b := storetest.New(t)
	ctx := context.Background()

	sess, _ := b.Session("default", true)
	for i := 0; i < 5; i++ {
		name := []byte{byte('a' + i)}
		tags := []store.EntryTag{{Name: "n", Value: string(name), Plaintext: false}}
		if err := sess.Update(ctx, store.OpInsert, store.KindGeneral, "cat", string(name), []byte("v"), tags, nil); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	sess.Close(ctx, true)

	readSess, _ := b.Session("default", false)
	defer readSess.Close(ctx, false)

	count, err := readSess.Count(ctx, store.KindGeneral, "cat", store.Eq("n", "a"))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 match, got %d", count)
	}

	total, err := readSess.Count(ctx, store.KindGeneral, "cat", nil)
	if err != nil {
		t.Fatalf("count all: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected 5 entries total, got %d", total)
	}
}

func TestFetchAllHonorsLimit(t *testing.T) {
	b := storetest.New(t)
	ctx := context.Background()

	sess, _ := b.Session("default", true)
	for i := 0; i < 10; i++ {
		name := string([]byte{byte('a' + i)})
		if err := sess.Update(ctx, store.OpInsert, store.KindGeneral, "cat2", name, []byte("v"), nil, nil); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	sess.Close(ctx, true)

	readSess, _ := b.Session("default", false)
	defer readSess.Close(ctx, false)

	entries, err := readSess.FetchAll(ctx, store.KindGeneral, "cat2", nil, 3, false)
	if err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
}

func TestRemoveAllDeletesMatching(t *testing.T) {
	b := storetest.New(t)
	ctx := context.Background()

	sess, _ := b.Session("default", true)
	for i := 0; i < 3; i++ {
		name := string([]byte{byte('a' + i)})
		if err := sess.Update(ctx, store.OpInsert, store.KindGeneral, "cat3", name, []byte("v"), nil, nil); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	sess.Close(ctx, true)

	writeSess, _ := b.Session("default", true)
	n, err := writeSess.RemoveAll(ctx, store.KindGeneral, "cat3", nil)
	if err != nil {
		t.Fatalf("remove all: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 removed, got %d", n)
	}
	writeSess.Close(ctx, true)
}

func TestScanPagesResults(t *testing.T) {
	b := storetest.New(t)
	ctx := context.Background()

	sess, _ := b.Session("default", true)
	for i := 0; i < store.PageSize+5; i++ {
		name := string(rune('A' + i))
		if err := sess.Update(ctx, store.OpInsert, store.KindGeneral, "scancat", name, []byte("v"), nil, nil); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	sess.Close(ctx, true)

	scan, err := b.Scan(ctx, "default", store.KindGeneral, "scancat", nil, 0, 0)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	defer scan.Close()

	total := 0
	for {
		batch, err := scan.Next(ctx)
		if err != nil {
			t.Fatalf("scan next: %v", err)
		}
		if batch == nil {
			break
		}
		total += len(batch)
	}
	if total != store.PageSize+5 {
		t.Fatalf("expected %d entries scanned, got %d", store.PageSize+5, total)
	}
}

func TestReplaceOverwritesValue(t *testing.T) {
	b := storetest.New(t)
	ctx := context.Background()

	sess, _ := b.Session("default", true)
	if err := sess.Update(ctx, store.OpInsert, store.KindGeneral, "cat4", "k", []byte("v1"), nil, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := sess.Update(ctx, store.OpReplace, store.KindGeneral, "cat4", "k", []byte("v2"), nil, nil); err != nil {
		t.Fatalf("replace: %v", err)
	}
	sess.Close(ctx, true)

	readSess, _ := b.Session("default", false)
	defer readSess.Close(ctx, false)
	entry, err := readSess.Fetch(ctx, store.KindGeneral, "cat4", "k", false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(entry.Value) != "v2" {
		t.Fatalf("expected replaced value v2, got %q", entry.Value)
	}
}

func TestRekeyPreservesEntriesUnderNewWrapKey(t *testing.T) {
	b := storetest.New(t)
	ctx := context.Background()

	sess, _ := b.Session("default", true)
	if err := sess.Update(ctx, store.OpInsert, store.KindGeneral, "cat5", "k", []byte("secret"), nil, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	sess.Close(ctx, true)

	newPassKey := make([]byte, 32)
	for i := range newPassKey {
		newPassKey[i] = byte(255 - i)
	}
	if err := b.Rekey(ctx, keys.RawWrapKeyMethod{}, newPassKey); err != nil {
		t.Fatalf("rekey: %v", err)
	}

	readSess, _ := b.Session("default", false)
	defer readSess.Close(ctx, false)
	entry, err := readSess.Fetch(ctx, store.KindGeneral, "cat5", "k", false)
	if err != nil {
		t.Fatalf("fetch after rekey: %v", err)
	}
	if string(entry.Value) != "secret" {
		t.Fatalf("expected entry to survive rekey, got %q", entry.Value)
	}
}
