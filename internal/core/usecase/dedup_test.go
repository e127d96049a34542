package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/paperflow/internal/core/domain"
)

func TestFingerprintIsLowercaseSHA256(t *testing.T) {
	d := NewContentDeduplicator(newKVFake())
	got := d.Fingerprint([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Fatalf("Fingerprint() = %s, want %s", got, want)
	}
}

func TestContentDeduplicatorKeepsFirstRegisteredPath(t *testing.T) {
	d := NewContentDeduplicator(newKVFake())
	ctx := context.Background()
	digest := d.Fingerprint([]byte("same bytes"))

	if _, found, err := d.IsDuplicate(ctx, digest); err != nil || found {
		t.Fatalf("expected unknown digest, found=%v err=%v", found, err)
	}
	if path, registered, err := d.Register(ctx, digest, "/org/invoice/2024-03/a.pdf"); err != nil || !registered || path != "/org/invoice/2024-03/a.pdf" {
		t.Fatalf("Register() = %q, %v, %v", path, registered, err)
	}
	existing, registered, err := d.Register(ctx, digest, "/org/invoice/2024-03/b.pdf")
	if err != nil {
		t.Fatalf("second Register() error = %v", err)
	}
	if registered || existing != "/org/invoice/2024-03/a.pdf" {
		t.Fatalf("second Register() must report the first path, got %q registered=%v", existing, registered)
	}

	path, found, err := d.IsDuplicate(ctx, digest)
	if err != nil || !found || path != "/org/invoice/2024-03/a.pdf" {
		t.Fatalf("expected first path, got path=%q found=%v err=%v", path, found, err)
	}
}

func TestContentDeduplicatorStoreFailureIsSystemic(t *testing.T) {
	store := newKVFake()
	store.putErr = errors.New("read-only")
	d := NewContentDeduplicator(store)

	_, _, err := d.Register(context.Background(), "abc", "/x")
	if !domain.IsSystemic(err) {
		t.Fatalf("expected systemic error, got %v", err)
	}
}
