package apiclient

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// retryAfterKeys are JSON fields the API has used to carry a wait duration.
var retryAfterKeys = []string{"retry_after", "cooldown", "wait_seconds"}

var secondsInMessage = regexp.MustCompile(`(\d+)\s*s`)

// extractRetryAfter recovers the wait duration from a 429 response, trying
// the Retry-After header first, then well-known JSON fields (including a
// nested "error" object), then a "Ns" scan of the message text.
func extractRetryAfter(header http.Header, body []byte) time.Duration {
	if raw := header.Get("Retry-After"); raw != "" {
		if seconds, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return 0
	}

	if wait := retryAfterFromObject(decoded); wait > 0 {
		return wait
	}
	if nested, ok := decoded["error"].(map[string]any); ok {
		if wait := retryAfterFromObject(nested); wait > 0 {
			return wait
		}
	}
	return retryAfterFromMessage(decoded)
}

func retryAfterFromObject(obj map[string]any) time.Duration {
	for _, key := range retryAfterKeys {
		switch value := obj[key].(type) {
		case float64:
			if value > 0 {
				return time.Duration(value * float64(time.Second))
			}
		case string:
			if seconds, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil && seconds > 0 {
				return time.Duration(seconds * float64(time.Second))
			}
		}
	}
	return 0
}

// retryAfterFromMessage scans message-like fields for an "Ns" duration.
func retryAfterFromMessage(obj map[string]any) time.Duration {
	for _, key := range []string{"message", "detail"} {
		text, ok := obj[key].(string)
		if !ok {
			continue
		}
		match := secondsInMessage.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		if seconds, err := strconv.Atoi(match[1]); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}
