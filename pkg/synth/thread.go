package synth

import (
	"regexp"
	"strings"
)

var tweetMarker = regexp.MustCompile(`(?mi)^\s*TWEET\s+\d+\s*:\s*`)

// SplitThread splits a thread body on "TWEET n:" markers. Text before the
// first marker and empty tweets are dropped. A body with no markers is a
// single tweet.
func SplitThread(body string) []string {
	locs := tweetMarker.FindAllStringIndex(body, -1)
	if len(locs) == 0 {
		if t := strings.TrimSpace(body); t != "" {
			return []string{t}
		}
		return nil
	}

	tweets := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(body)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if t := strings.TrimSpace(body[loc[1]:end]); t != "" {
			tweets = append(tweets, t)
		}
	}
	return tweets
}
