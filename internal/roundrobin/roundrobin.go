// Package roundrobin merges ordered candidate lists into one bounded,
// duplicate-free batch, drawing one entry per list per round so that no
// single list can starve the others when the batch size is capped.
package roundrobin

// Pair identifies one unit of schedulable work.
type Pair struct {
	WorkspaceID string
	UserID      string
}

func (p Pair) key() string {
	return p.WorkspaceID + ":" + p.UserID
}

// SelectPairs returns at most limit pairs drawn round-robin from lists,
// preserving first-seen order and skipping duplicates. It terminates when
// the limit is reached or a full round makes no progress.
func SelectPairs(lists [][]Pair, limit int) []Pair {
	out := make([]Pair, 0)
	seen := make(map[string]struct{})
	cursors := make([]int, len(lists))

	for len(out) < limit {
		progressed := false

		for i := 0; i < len(lists) && len(out) < limit; i++ {
			list := lists[i]
			cursor := cursors[i]

			for cursor < len(list) {
				p := list[cursor]
				cursor++
				if _, dup := seen[p.key()]; dup {
					continue
				}
				seen[p.key()] = struct{}{}
				out = append(out, p)
				progressed = true
				break
			}

			cursors[i] = cursor
		}

		if !progressed {
			break
		}
	}

	return out
}
