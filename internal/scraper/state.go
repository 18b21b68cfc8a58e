package scraper

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/feedbackhub/review-attribution-service/internal/domain"
)

/********** alias registries (single source of truth) **********/

// Field aliases tried in priority order against heterogeneous review payloads.
// New source formats are additions to these lists, not new code branches.
var reviewAliases = map[string][]string{
	"id":     {"id", "reviewId", "review_id", "externalId", "external_id"},
	"rating": {"rating.value", "rating", "rate", "stars", "mark", "score"},
	"text":   {"text", "comment", "review", "body", "snippet", "message"},
	"author": {"author", "author.name", "user.name", "user.public_name", "name", "userName"},
	"date": {
		"updatedTime", "createdTime", "date_created", "dateCreated",
		"date_edited", "published_at", "publishedAt", "time", "date",
	},
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// firstAlias returns the first non-nil value among the alias paths for key.
func firstAlias(m map[string]any, key string) any {
	for _, p := range reviewAliases[key] {
		if v := lookupAny(m, p); v != nil {
			return v
		}
	}
	return nil
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		// JSON numbers decode as float64; ids are integral in practice.
		return strconv.FormatInt(int64(s), 10)
	}
	return ""
}

func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n + 0.5)
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(n, ",", "."))
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(f + 0.5)
		}
	}
	return 0
}

func ptrStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// parseTime accepts the timestamp shapes the platforms have been seen using:
// RFC3339, a plain datetime, and unix seconds or milliseconds.
func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
	case float64:
		switch {
		case t > 1e12: // millis
			return time.UnixMilli(int64(t)).UTC(), true
		case t > 1e9: // seconds
			return time.Unix(int64(t), 0).UTC(), true
		}
	}
	return time.Time{}, false
}

/********** review node extraction **********/

// looksLikeReview: a node must expose a native id plus either a rating or a
// text body to count. Anything weaker drags in unrelated entities (photos,
// replies, org cards) that also carry ids.
func looksLikeReview(m map[string]any) bool {
	if asString(firstAlias(m, "id")) == "" {
		return false
	}

	return firstAlias(m, "rating") != nil || asString(firstAlias(m, "text")) != ""
}

// normalizeNode maps one review-shaped node to the transient ScrapedReview.
// Missing rating defaults to 0, missing text/author stay nil, and a missing
// timestamp defaults to now — the conservative choice that keeps stale
// reviews from matching a fresh click window.
func normalizeNode(m map[string]any, now time.Time) domain.ScrapedReview {
	r := domain.ScrapedReview{
		PlatformReviewID: asString(firstAlias(m, "id")),
		Rating:           asInt(firstAlias(m, "rating")),
		Text:             ptrStr(asString(firstAlias(m, "text"))),
		Author:           ptrStr(asString(firstAlias(m, "author"))),
		PublishedAt:      now,
	}

	if ts, ok := parseTime(firstAlias(m, "date")); ok {
		r.PublishedAt = ts
	}

	return r
}

// collectReviews walks a decoded JSON tree (maps, arrays, scalars) depth-first
// and gathers every review-shaped node, preserving document order. Document
// order matters: the matcher links the first in-window review as returned.
func collectReviews(v any, now time.Time, out *[]domain.ScrapedReview) {
	switch node := v.(type) {
	case map[string]any:
		if looksLikeReview(node) {
			*out = append(*out, normalizeNode(node, now))
			return
		}

		// Maps iterate in random order in Go; to keep extraction
		// deterministic, recurse into likely containers first.
		for _, key := range []string{"reviews", "items", "data", "entries"} {
			if child, ok := node[key]; ok {
				collectReviews(child, now, out)
			}
		}

		if len(*out) > 0 {
			return
		}

		for _, child := range node {
			collectReviews(child, now, out)
			if len(*out) > 0 {
				return
			}
		}

	case []any:
		for _, child := range node {
			collectReviews(child, now, out)
		}
	}
}

/********** embedded state blobs **********/

var (
	scriptRe = regexp.MustCompile(`(?s)<script[^>]*>(.*?)</script>`)
	assignRe = regexp.MustCompile(`(?s)^\s*(?:window\.\w+|var\s+\w+|const\s+\w+)\s*=\s*`)
)

// extractStateReviews digs review nodes out of the JSON/state blobs embedded
// in a listing page's HTML. Every script body that decodes as JSON (after
// stripping a `window.X =` style assignment prefix) is deep-searched.
func extractStateReviews(html []byte, now time.Time) []domain.ScrapedReview {
	var reviews []domain.ScrapedReview

	for _, m := range scriptRe.FindAllSubmatch(html, -1) {
		body := strings.TrimSpace(string(m[1]))
		body = assignRe.ReplaceAllString(body, "")
		body = strings.TrimSuffix(strings.TrimSpace(body), ";")

		if body == "" || (body[0] != '{' && body[0] != '[') {
			continue
		}

		var decoded any
		if err := json.Unmarshal([]byte(body), &decoded); err != nil {
			continue
		}

		collectReviews(decoded, now, &reviews)
		if len(reviews) > 0 {
			return reviews
		}
	}

	return nil
}
