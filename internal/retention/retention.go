// Package retention computes the bounded, activity-aware subset of a
// workspace's sessions that is materialized locally. The full remote
// session list is unbounded; the trimmed set keeps the first N root
// sessions plus recently-active ones, and never hides a child session
// the user is still interacting with.
package retention

import (
	"sort"
	"time"

	"github.com/p-blackswan/session-mirror/internal/api"
)

// Defaults for the recent-activity selection.
const (
	DefaultRecentCap    = 50
	DefaultRecentWindow = 4 * time.Hour
)

// Options parameterizes Trim.
type Options struct {
	// Limit is the number of root sessions always kept, in id order.
	Limit int

	// RecentCap bounds how many additional recently-updated roots are
	// kept beyond Limit. Defaults to DefaultRecentCap.
	RecentCap int

	// RecentWindow is how far back an update still counts as recent.
	// Defaults to DefaultRecentWindow.
	RecentWindow time.Duration

	// Now anchors the recency window; zero means time.Now().
	Now time.Time

	// HasPermission reports whether a session has a pending permission
	// request. A child session with one is never trimmed.
	HasPermission func(sessionID string) bool
}

// Trim returns the retention set: non-archived sessions limited to
// Limit root sessions plus up to RecentCap recently-updated roots,
// together with every child whose parent is kept, that has a pending
// permission, or that was itself updated within the window. The result
// is sorted by id ascending. Never returns more than Limit+RecentCap
// root sessions.
func Trim(all []*api.Session, opts Options) []*api.Session {
	if opts.RecentCap == 0 {
		opts.RecentCap = DefaultRecentCap
	}
	if opts.RecentWindow == 0 {
		opts.RecentWindow = DefaultRecentWindow
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	cutoff := now.Add(-opts.RecentWindow).UnixMilli()

	var roots, children []*api.Session
	for _, s := range all {
		if s.Archived() {
			continue
		}
		if s.ParentID == "" {
			roots = append(roots, s)
		} else {
			children = append(children, s)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].ID < roots[j].ID })

	kept := make(map[string]*api.Session, opts.Limit+opts.RecentCap+len(children))

	base := roots
	if opts.Limit < len(base) {
		base = base[:opts.Limit]
	}
	for _, s := range base {
		kept[s.ID] = s
	}

	// Bounded insertion-sorted selection of the most recently updated
	// remaining roots: recent never holds more than RecentCap entries.
	var recent []*api.Session
	for _, s := range roots[len(base):] {
		if s.Time.Updated < cutoff {
			continue
		}
		i := sort.Search(len(recent), func(j int) bool {
			if recent[j].Time.Updated != s.Time.Updated {
				return recent[j].Time.Updated < s.Time.Updated
			}
			return recent[j].ID > s.ID
		})
		if i >= opts.RecentCap {
			continue
		}
		if len(recent) < opts.RecentCap {
			recent = append(recent, nil)
		}
		copy(recent[i+1:], recent[i:])
		recent[i] = s
	}
	for _, s := range recent {
		kept[s.ID] = s
	}

	for _, c := range children {
		switch {
		case kept[c.ParentID] != nil:
		case opts.HasPermission != nil && opts.HasPermission(c.ID):
		case c.Time.Updated >= cutoff:
		default:
			continue
		}
		kept[c.ID] = c
	}

	out := make([]*api.Session, 0, len(kept))
	for _, s := range kept {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
