package pipeline

import (
	"strings"
)

// Category is the closed classification outcome for a message.
type Category string

const (
	CategoryNotification  Category = "Notification"
	CategoryRespond       Category = "Respond"
	CategoryAdvertisement Category = "Advertisement"
)

// ParseCategory coerces raw classifier output into the closed set.
// Anything unrecognized becomes Notification, the safe default.
func ParseCategory(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "respond":
		return CategoryRespond
	case "advertisement":
		return CategoryAdvertisement
	case "notification":
		return CategoryNotification
	default:
		return CategoryNotification
	}
}

var (
	adKeywords      = []string{"unsubscribe", "promotion", "discount", "offer", "sale"}
	notifyKeywords  = []string{"notification", "alert", "confirmation", "receipt", "no-reply"}
	respondKeywords = []string{"?", "please", "could you", "need", "request", "help"}
)

func containsAny(haystack string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// classifyByKeywords is the deterministic fallback used whenever the
// classifier collaborator is unavailable or its response is unparsable.
// The tier order is fixed: advertisement keywords in subject/body, then
// notification keywords in sender/subject, then response-indicating
// keywords, else Notification.
func classifyByKeywords(subject, sender, body string) Category {
	subject = strings.ToLower(subject)
	sender = strings.ToLower(sender)
	body = strings.ToLower(body)

	if containsAny(subject, adKeywords) || containsAny(body, adKeywords) {
		return CategoryAdvertisement
	}
	if containsAny(sender, notifyKeywords) || containsAny(subject, notifyKeywords) {
		return CategoryNotification
	}
	if containsAny(subject, respondKeywords) || containsAny(body, respondKeywords) {
		return CategoryRespond
	}
	return CategoryNotification
}

// truncateSummary is the deterministic fallback for a failed summarize
// stage: the first 500 characters of the raw body.
func truncateSummary(body string) string {
	runes := []rune(body)
	if len(runes) <= 500 {
		return body
	}
	return string(runes[:500])
}
