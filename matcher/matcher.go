// Package matcher pairs finalized snapshot files with the URLs that
// produced them.
//
// Snapshot filenames come from page titles, not URLs, so pairing is a
// scored assignment. Match is greedy and online: it runs once per poll
// tick over whatever is finalized and unassigned, and a pairing it accepts
// is final. It holds no state between calls.
package matcher

import (
	"sort"
)

// epsilon absorbs float noise in margin comparisons.
const epsilon = 1e-9

// Options configures acceptance.
type Options struct {
	// Threshold is the minimum score for a pairing to be accepted.
	Threshold float64

	// Margin is the minimum gap between a file's best and second-best
	// request scores. With Margin == 0, equal scores go to the request
	// enqueued first.
	Margin float64
}

// DefaultOptions returns the stock threshold and margin.
func DefaultOptions() Options {
	return Options{Threshold: 0.6, Margin: 0.1}
}

// Request is an unassigned URL. ID orders requests by enqueue time.
type Request struct {
	ID  int
	URL string
}

// File is a finalized, unassigned snapshot. Title and SourceURL are
// optional hints read from the file's content. SourceURL binds the file
// without scoring, so it must only carry the URL recorded by the capture
// tool itself.
type File struct {
	Name      string
	Title     string
	SourceURL string
}

// Candidate is an accepted pairing.
type Candidate struct {
	RequestID int
	URL       string
	File      string
	Score     float64

	// RunnerUp is the file's second-best score (0 when it had one request).
	RunnerUp float64
}

// Result is the outcome of one Match call.
type Result struct {
	Matches []Candidate

	// Contested lists IDs of requests that scored above the threshold for
	// some file but lost it to the margin rule. Matched requests are not
	// listed.
	Contested []int
}

type scored struct {
	req   int // index into reqs
	score float64
}

// Match scores every file against every unassigned request, in the order
// files are given, and accepts at most one request per file.
func Match(reqs []Request, files []File, opts Options) Result {
	ordered := make([]Request, len(reqs))
	copy(ordered, reqs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	keys := make([]Key, len(ordered))
	canon := make([]string, len(ordered))
	for i, r := range ordered {
		keys[i] = Normalize(r.URL)
		canon[i] = Canonical(r.URL)
	}

	assigned := make([]bool, len(ordered))
	contested := make(map[int]struct{})
	var res Result

	for _, f := range files {
		nameKey := NormalizeName(f.Name)
		titleKey := NormalizeTitle(f.Title)
		source := ""
		if f.SourceURL != "" {
			source = Canonical(f.SourceURL)
		}

		// A file that names its own source URL needs no scoring.
		if i := provenance(source, canon, assigned); i >= 0 {
			assigned[i] = true
			res.Matches = append(res.Matches, Candidate{
				RequestID: ordered[i].ID,
				URL:       ordered[i].URL,
				File:      f.Name,
				Score:     1,
			})
			continue
		}

		var scores []scored
		for i := range ordered {
			if assigned[i] {
				continue
			}
			s := Score(keys[i], nameKey)
			if t := Score(keys[i], titleKey); t > s {
				s = t
			}
			scores = append(scores, scored{req: i, score: s})
		}
		if len(scores) == 0 {
			break
		}

		// Stable on the ID-ordered slice, so equal scores keep FIFO order.
		sort.SliceStable(scores, func(a, b int) bool { return scores[a].score > scores[b].score })

		best := scores[0]
		if best.score < opts.Threshold {
			continue
		}
		var runnerUp float64
		if len(scores) > 1 {
			runnerUp = scores[1].score
		}
		if len(scores) > 1 && best.score-runnerUp+epsilon < opts.Margin {
			for _, s := range scores {
				if s.score >= opts.Threshold && best.score-s.score+epsilon < opts.Margin {
					contested[ordered[s.req].ID] = struct{}{}
				}
			}
			continue
		}

		assigned[best.req] = true
		res.Matches = append(res.Matches, Candidate{
			RequestID: ordered[best.req].ID,
			URL:       ordered[best.req].URL,
			File:      f.Name,
			Score:     best.score,
			RunnerUp:  runnerUp,
		})
	}

	for i, r := range ordered {
		if _, ok := contested[r.ID]; ok && !assigned[i] {
			res.Contested = append(res.Contested, r.ID)
		}
	}
	return res
}

// provenance returns the first unassigned request whose canonical URL is
// source, or -1.
func provenance(source string, canon []string, assigned []bool) int {
	if source == "" {
		return -1
	}
	for i, c := range canon {
		if !assigned[i] && c == source {
			return i
		}
	}
	return -1
}
