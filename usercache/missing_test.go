package usercache

import (
	"reflect"
	"testing"

	"github.com/MrEthical07/goGrant/userstore"
)

func TestComputeMissing(t *testing.T) {
	local := func(r userstore.Record) *userstore.Record {
		r.HashedPassword = "digest"
		r.Salt = "salt"
		return &r
	}

	tests := []struct {
		name   string
		record *userstore.Record
		taken  bool
		want   []string
	}{
		{
			name:   "complete and verified",
			record: local(userstore.Record{FirstName: "A", LastName: "B", Email: "a@b.com", EmailVerified: true}),
			want:   []string{},
		},
		{
			name:   "unverified email",
			record: local(userstore.Record{FirstName: "A", LastName: "B", Email: "a@b.com"}),
			want:   []string{ItemEmailVerification},
		},
		{
			name:   "taken email",
			record: local(userstore.Record{FirstName: "A", LastName: "B", Email: "a@b.com"}),
			taken:  true,
			want:   []string{ItemEmail, ItemEmailUniqueness},
		},
		{
			name:   "no credential",
			record: &userstore.Record{FirstName: "A", LastName: "B", Email: "a@b.com", EmailVerified: true},
			want:   []string{ItemAuthMethod},
		},
		{
			name: "provider identity counts as auth method",
			record: &userstore.Record{
				FirstName: "A", LastName: "B", Email: "a@b.com", EmailVerified: true,
				OpenID: &userstore.ThirdPartyIdentity{Provider: "google", Subject: "1"},
			},
			want: []string{},
		},
		{
			name:   "everything missing",
			record: &userstore.Record{},
			want:   []string{ItemFirstName, ItemLastName, ItemEmail, ItemAuthMethod},
		},
		{
			name:   "blank names",
			record: local(userstore.Record{FirstName: "  ", LastName: "", Email: "a@b.com", EmailVerified: true}),
			want:   []string{ItemFirstName, ItemLastName},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeMissing(tt.record, tt.taken)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ComputeMissing = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWarningMessage(t *testing.T) {
	tests := []struct {
		items []string
		want  string
	}{
		{nil, ""},
		{[]string{ItemEmailVerification}, "Email address requires verification. "},
		{[]string{ItemEmail, ItemEmailUniqueness}, "Missing required fields. Primary email address is already in use. "},
		{[]string{ItemLastName, ItemEmailVerification}, "Missing required fields. Email address requires verification. "},
	}
	for _, tt := range tests {
		if got := WarningMessage(tt.items); got != tt.want {
			t.Fatalf("WarningMessage(%v) = %q, want %q", tt.items, got, tt.want)
		}
	}
}

func TestRequiresCompletion(t *testing.T) {
	if RequiresCompletion([]string{ItemEmailVerification}) {
		t.Fatal("email verification alone must not block persistence")
	}
	if RequiresCompletion(nil) {
		t.Fatal("empty set must not block persistence")
	}
	for _, it := range []string{ItemFirstName, ItemLastName, ItemEmail, ItemAuthMethod} {
		if !RequiresCompletion([]string{it}) {
			t.Fatalf("%q must block persistence", it)
		}
	}
}

func TestSortItemsDedupsAndOrders(t *testing.T) {
	got := sortItems([]string{ItemEmailVerification, ItemEmail, ItemFirstName, ItemEmail})
	want := []string{ItemFirstName, ItemEmail, ItemEmailVerification}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("sortItems = %v, want %v", got, want)
	}
}
