package jira

import (
	"testing"

	"github.com/trellis-eng/rally2jira/internal/rally"
)

func TestResolveNilUser(t *testing.T) {
	r := NewUserRegistry()
	if got := r.Resolve(nil); got != "" {
		t.Errorf("nil user: got %q, want empty", got)
	}
	if len(r.Snapshot()) != 0 {
		t.Error("nil user must not register anything")
	}
}

func TestResolveDisplayName(t *testing.T) {
	tests := []struct {
		name string
		user *rally.User
		want string
	}{
		{
			"first and last",
			&rally.User{FirstName: "Ada", LastName: "Lovelace", EmailAddress: "ada@x.com"},
			"Ada Lovelace",
		},
		{
			"fallback to name",
			&rally.User{Name: "ada.lovelace", EmailAddress: "ada2@x.com"},
			"ada.lovelace",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewUserRegistry()
			if got := r.Resolve(tt.user); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	r := NewUserRegistry()
	first := r.Resolve(&rally.User{FirstName: "Ada", LastName: "Lovelace", EmailAddress: "ada@x.com"})

	for i := 0; i < 5; i++ {
		// A later sighting with different name details must not
		// overwrite the first-seen record.
		got := r.Resolve(&rally.User{Name: "a.lovelace", EmailAddress: "ada@x.com"})
		if got != first {
			t.Fatalf("call %d: got %q, want %q", i, got, first)
		}
	}

	users := r.Snapshot()
	if len(users) != 1 {
		t.Fatalf("got %d users, want 1", len(users))
	}
	if users[0].Email != "ada@x.com" || users[0].Fullname != "Ada Lovelace" {
		t.Errorf("snapshot entry: %+v", users[0])
	}
}

func TestSnapshotOrderedByEmail(t *testing.T) {
	r := NewUserRegistry()
	r.Resolve(&rally.User{Name: "zed", EmailAddress: "z@x.com"})
	r.Resolve(&rally.User{Name: "ann", EmailAddress: "a@x.com"})
	r.Resolve(&rally.User{Name: "mid", EmailAddress: "m@x.com"})

	users := r.Snapshot()
	if len(users) != 3 {
		t.Fatalf("got %d users, want 3", len(users))
	}
	for i, want := range []string{"a@x.com", "m@x.com", "z@x.com"} {
		if users[i].Email != want {
			t.Errorf("user %d: got %s, want %s", i, users[i].Email, want)
		}
	}
}
