package store_test

import (
	"context"
	"testing"

	"ciphervault/internal/store"
	"ciphervault/internal/store/storetest"
	"ciphervault/internal/verrors"
)

func seedOrderedEntries(t *testing.T, b *store.Backend) {
	t.Helper()
	ctx := context.Background()
	sess, err := b.Session("default", true)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	for i, n := range []string{"85", "90", "95", "100"} {
		tags := []store.EntryTag{{Name: "n", Value: n, Plaintext: true}}
		name := []byte{byte('a' + i)}
		if err := sess.Update(ctx, store.OpInsert, store.KindGeneral, "cat", string(name), []byte("v"), tags, nil); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if err := sess.Close(ctx, true); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func seedEncryptedEntries(t *testing.T, b *store.Backend) {
	t.Helper()
	ctx := context.Background()
	sess, err := b.Session("default", true)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	for i, n := range []string{"85", "90", "95", "100"} {
		tags := []store.EntryTag{{Name: "n", Value: n, Plaintext: false}}
		name := []byte{byte('a' + i)}
		if err := sess.Update(ctx, store.OpInsert, store.KindGeneral, "cat", string(name), []byte("v"), tags, nil); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if err := sess.Close(ctx, true); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestTagFilterOrderingAgainstPlaintextTag(t *testing.T) {
	b := storetest.New(t)
	seedOrderedEntries(t, b)
	ctx := context.Background()

	readSess, err := b.Session("default", false)
	if err != nil {
		t.Fatalf("open read session: %v", err)
	}
	defer readSess.Close(ctx, false)

	filter := store.And(store.Gte("n", "90", true), store.Lte("n", "95", true))
	count, err := readSess.Count(ctx, store.KindGeneral, "cat", filter)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 matches in [90,95], got %d", count)
	}
}

func TestTagFilterOrderingAgainstEncryptedTagIsInput(t *testing.T) {
	b := storetest.New(t)
	seedEncryptedEntries(t, b)
	ctx := context.Background()

	readSess, err := b.Session("default", false)
	if err != nil {
		t.Fatalf("open read session: %v", err)
	}
	defer readSess.Close(ctx, false)

	// plaintext: false on the leaf asserts the tag is encrypted-only;
	// CompileTagFilter must reject the ordering comparison outright
	// rather than silently compiling it to a zero-row match.
	filter := store.Gte("n", "90", false)
	_, err = readSess.Count(ctx, store.KindGeneral, "cat", filter)
	if err == nil {
		t.Fatalf("expected Input error, got nil")
	}
	if !verrors.Is(err, verrors.Input) {
		t.Fatalf("expected verrors.Input, got %v", err)
	}
}

func TestTagFilterAndOrNotCompose(t *testing.T) {
	b := storetest.New(t)
	seedEncryptedEntries(t, b)
	ctx := context.Background()

	readSess, err := b.Session("default", false)
	if err != nil {
		t.Fatalf("open read session: %v", err)
	}
	defer readSess.Close(ctx, false)

	orFilter := store.Or(store.Eq("n", "85"), store.Eq("n", "100"))
	count, err := readSess.Count(ctx, store.KindGeneral, "cat", orFilter)
	if err != nil {
		t.Fatalf("or count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 matches for Or(85,100), got %d", count)
	}

	notFilter := store.Not(store.Eq("n", "85"))
	count, err = readSess.Count(ctx, store.KindGeneral, "cat", notFilter)
	if err != nil {
		t.Fatalf("not count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 matches for Not(85), got %d", count)
	}

	inFilter := store.In("n", []string{"85", "95"})
	count, err = readSess.Count(ctx, store.KindGeneral, "cat", inFilter)
	if err != nil {
		t.Fatalf("in count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 matches for In(85,95), got %d", count)
	}

	existFilter := store.Exist([]string{"n"})
	count, err = readSess.Count(ctx, store.KindGeneral, "cat", existFilter)
	if err != nil {
		t.Fatalf("exist count: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 matches for Exist(n), got %d", count)
	}
}
