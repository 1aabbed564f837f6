package bridge

import (
	"testing"
	"time"
)

func user(name, key string, lastUse time.Time) *ApiUser {
	return &ApiUser{Username: "u-" + name, Name: name, ClientKey: key, LastUseDate: lastUse}
}

func TestSelectEntertainmentUser(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)

	owner := user("phone app", "aaaa", earlier)

	tests := []struct {
		name     string
		users    []*ApiUser
		expected string
	}{
		{
			name:     "keyword_beats_recency",
			users:    []*ApiUser{user("desk lamp", "bbbb", now), user("Hue Sync TV", "cccc", earlier)},
			expected: "Hue Sync TV",
		},
		{
			name:     "recency_among_keywords",
			users:    []*ApiUser{user("sync box", "bbbb", earlier), user("my tv", "cccc", now)},
			expected: "my tv",
		},
		{
			name:     "keyword_without_key_skipped",
			users:    []*ApiUser{user("sync box", "", now), user("desk lamp", "bbbb", earlier)},
			expected: "desk lamp",
		},
		{
			name:     "recency_without_keywords",
			users:    []*ApiUser{user("one", "bbbb", earlier), user("two", "cccc", now)},
			expected: "two",
		},
		{
			name:     "entertain_keyword",
			users:    []*ApiUser{user("Entertainment area", "bbbb", earlier), user("other", "cccc", now)},
			expected: "Entertainment area",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectEntertainmentUser(tt.users, owner)
			if got.Name != tt.expected {
				t.Errorf("selected %q, want %q", got.Name, tt.expected)
			}
		})
	}
}

func TestSelectEntertainmentUserFallsBackToOwner(t *testing.T) {
	owner := user("owner", "aaaa", time.Now())
	got := SelectEntertainmentUser([]*ApiUser{user("no key", "", time.Now())}, owner)
	if got != owner {
		t.Errorf("selected %v, want owner", got)
	}

	if got := SelectEntertainmentUser(nil, owner); got != owner {
		t.Errorf("selected %v, want owner for empty list", got)
	}
}
