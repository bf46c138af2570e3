package usercache

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/MrEthical07/goGrant/userstore"
)

func localRecord(id, first, last, email string) *userstore.Record {
	return &userstore.Record{
		ID:             id,
		FirstName:      first,
		LastName:       last,
		Email:          email,
		HashedPassword: "digest",
		Salt:           "salt",
	}
}

func TestCreateAccountPersistsWhenOnlyVerificationMissing(t *testing.T) {
	cache, store, mr := newCacheTest(t)
	engine := NewCompleteness(cache)

	out, err := engine.CreateAccount(context.Background(), localRecord("u1", "A", "B", "a@b.com"))
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if !out.Persisted {
		t.Fatal("expected durable write")
	}
	if !slices.Equal(out.Entry.MissingItems, []string{ItemEmailVerification}) {
		t.Fatalf("missing items = %v", out.Entry.MissingItems)
	}

	rec, err := store.GetByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("store lookup: %v", err)
	}
	if rec.EmailVerified {
		t.Fatal("email must be stored unverified")
	}
	if mr.HGet(Key("u1"), fieldIncomplete) != "" {
		t.Fatal("persisted account flagged incomplete")
	}
}

func TestCreateAccountKeepsIncompleteInMirrorOnly(t *testing.T) {
	cache, store, mr := newCacheTest(t)
	engine := NewCompleteness(cache)

	out, err := engine.CreateAccount(context.Background(), localRecord("u1", "A", "", "a@b.com"))
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if out.Persisted {
		t.Fatal("incomplete account must not be persisted")
	}
	if store.Len() != 0 {
		t.Fatalf("store has %d records", store.Len())
	}
	if mr.HGet(Key("u1"), fieldIncomplete) != "true" {
		t.Fatal("mirror not flagged incomplete")
	}
	if mr.HGet(Key("u1"), fieldHashedPassword) != "digest" {
		t.Fatal("pending credential not kept")
	}
	if out.Entry.WarningMessage != "Missing required fields. Email address requires verification. " {
		t.Fatalf("warning = %q", out.Entry.WarningMessage)
	}
}

func TestCreateAccountEmailTaken(t *testing.T) {
	cache, store, _ := newCacheTest(t)
	seedRecord(t, store, "owner", "a@b.com", true)
	engine := NewCompleteness(cache)

	out, err := engine.CreateAccount(context.Background(), localRecord("u2", "A", "B", "a@b.com"))
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if out.Persisted || !out.EmailConflict() {
		t.Fatalf("expected email conflict, got %+v", out)
	}
	if !slices.Equal(out.Entry.MissingItems, []string{ItemEmail, ItemEmailUniqueness}) {
		t.Fatalf("missing items = %v", out.Entry.MissingItems)
	}
	if store.Len() != 1 {
		t.Fatal("conflicting account reached the store")
	}
}

func TestCompletePromotesOnceRequiredItemsSupplied(t *testing.T) {
	cache, store, mr := newCacheTest(t)
	engine := NewCompleteness(cache)
	ctx := context.Background()

	if _, err := engine.CreateAccount(ctx, localRecord("u1", "", "", "a@b.com")); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	first := "Ada"
	out, err := engine.Complete(ctx, "u1", Patch{FirstName: &first})
	if err != nil {
		t.Fatalf("Complete first: %v", err)
	}
	if out.Persisted {
		t.Fatal("still missing lastName")
	}
	if slices.Contains(out.Entry.MissingItems, ItemFirstName) {
		t.Fatal("firstName should be gone from missing items")
	}
	if !slices.Contains(out.Entry.MissingItems, ItemLastName) {
		t.Fatal("lastName should still be missing")
	}

	last := "Lovelace"
	out, err = engine.Complete(ctx, "u1", Patch{LastName: &last})
	if err != nil {
		t.Fatalf("Complete last: %v", err)
	}
	if !out.Persisted {
		t.Fatal("expected promotion to the durable store")
	}
	if !slices.Equal(out.Entry.MissingItems, []string{ItemEmailVerification}) {
		t.Fatalf("missing items = %v", out.Entry.MissingItems)
	}

	rec, err := store.GetByID(ctx, "u1")
	if err != nil {
		t.Fatalf("store lookup: %v", err)
	}
	if rec.FirstName != "Ada" || rec.LastName != "Lovelace" || !rec.HasLocalCredential() {
		t.Fatalf("unexpected record %+v", rec)
	}
	if mr.HGet(Key("u1"), fieldIncomplete) != "" || mr.HGet(Key("u1"), fieldSalt) != "" {
		t.Fatal("pending fields must be dropped after promotion")
	}

	if _, err := engine.Complete(ctx, "u1", Patch{FirstName: &first}); !errors.Is(err, ErrAccountComplete) {
		t.Fatalf("expected ErrAccountComplete, got %v", err)
	}
}

func TestCompleteWithTakenEmailStaysPending(t *testing.T) {
	cache, store, _ := newCacheTest(t)
	seedRecord(t, store, "owner", "taken@example.com", true)
	engine := NewCompleteness(cache)
	ctx := context.Background()

	if _, err := engine.CreateAccount(ctx, localRecord("u1", "A", "B", "")); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	taken := "taken@example.com"
	out, err := engine.Complete(ctx, "u1", Patch{Email: &taken})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out.Persisted || !out.EmailConflict() {
		t.Fatalf("expected conflict, got %+v", out.Entry)
	}

	free := "free@example.com"
	out, err = engine.Complete(ctx, "u1", Patch{Email: &free})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !out.Persisted {
		t.Fatal("expected promotion with a free email")
	}
}

func TestCompleteProviderEmailKeepsVerification(t *testing.T) {
	cache, store, _ := newCacheTest(t)
	engine := NewCompleteness(cache)
	ctx := context.Background()

	rec := &userstore.Record{
		ID:    "g1",
		Email: "grace@example.com",
		OpenID: &userstore.ThirdPartyIdentity{
			Provider:      "facebook",
			Email:         "grace@example.com",
			EmailVerified: true,
			Subject:       "fb-1",
		},
		EmailVerified: true,
	}
	if _, err := engine.CreateAccount(ctx, rec); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	first, last := "Grace", "Hopper"
	out, err := engine.Complete(ctx, "g1", Patch{FirstName: &first, LastName: &last})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !out.Persisted || len(out.Entry.MissingItems) != 0 {
		t.Fatalf("expected clean promotion, got %+v", out.Entry)
	}
	stored, err := store.GetOneByField(ctx, userstore.FieldOpenID, userstore.IdentityKey("facebook", "fb-1"))
	if err != nil || stored.ID != "g1" || !stored.EmailVerified {
		t.Fatalf("linked identity not stored: %+v %v", stored, err)
	}
}
