package bridge

import "strings"

// keywords that identify entertainment sources among API users.
var entertainmentKeywords = []string{"sync", "tv", "box", "entertain"}

// SelectEntertainmentUser picks the PSK identity for a streaming session.
// Users whose name contains an entertainment keyword and who carry a client
// key rank highest; ties and the remainder are broken by most recent use.
// Falls back to the session owner when no candidate carries a client key.
func SelectEntertainmentUser(users []*ApiUser, owner *ApiUser) *ApiUser {
	var best *ApiUser
	bestPreferred := false

	for _, u := range users {
		if u == nil || u.ClientKey == "" {
			continue
		}
		preferred := hasEntertainmentName(u.Name)
		switch {
		case best == nil:
			best, bestPreferred = u, preferred
		case preferred && !bestPreferred:
			best, bestPreferred = u, true
		case preferred == bestPreferred && u.LastUseDate.After(best.LastUseDate):
			best = u
		}
	}

	if best == nil {
		return owner
	}
	return best
}

func hasEntertainmentName(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range entertainmentKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
