package jira

import (
	"sort"

	"github.com/trellis-eng/rally2jira/internal/rally"
)

// UserRegistry deduplicates Rally user references into Jira user
// records, keyed by email address. The first record seen for an email
// wins; later references only return the stored display name.
type UserRegistry struct {
	byEmail map[string]User
}

// NewUserRegistry creates an empty registry.
func NewUserRegistry() *UserRegistry {
	return &UserRegistry{byEmail: make(map[string]User)}
}

// Resolve returns the display name for a user reference, registering
// the user on first sight. A nil reference resolves to "".
func (r *UserRegistry) Resolve(u *rally.User) string {
	if u == nil {
		return ""
	}

	name := u.Name
	if u.FirstName != "" {
		name = u.FirstName + " " + u.LastName
	}

	if existing, ok := r.byEmail[u.EmailAddress]; ok {
		return existing.Fullname
	}
	r.byEmail[u.EmailAddress] = User{
		Name:     name,
		Email:    u.EmailAddress,
		Fullname: name,
	}
	return name
}

// Snapshot returns the registered users as a flat list, ordered by
// email for stable output.
func (r *UserRegistry) Snapshot() []User {
	users := make([]User, 0, len(r.byEmail))
	for _, u := range r.byEmail {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users
}
