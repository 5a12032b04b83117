package pipeline

import (
	"strings"
	"testing"
)

func TestParseCategoryClosure(t *testing.T) {
	cases := map[string]Category{
		"Respond":        CategoryRespond,
		"respond":        CategoryRespond,
		" RESPOND ":      CategoryRespond,
		"Advertisement":  CategoryAdvertisement,
		"advertisement":  CategoryAdvertisement,
		"Notification":   CategoryNotification,
		"":               CategoryNotification,
		"spam":           CategoryNotification,
		"Respond please": CategoryNotification,
		"{}":             CategoryNotification,
	}
	for raw, want := range cases {
		if got := ParseCategory(raw); got != want {
			t.Errorf("ParseCategory(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestKeywordFallbackTiers(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		sender  string
		body    string
		want    Category
	}{
		{
			name:    "advertisement keywords in subject",
			subject: "50% off sale - unsubscribe now",
			want:    CategoryAdvertisement,
		},
		{
			name:    "respond keywords in subject",
			subject: "Can you review this by Friday?",
			want:    CategoryRespond,
		},
		{
			name:   "notification keywords in sender and body",
			sender: "no-reply@service.com",
			body:   "receipt confirmation",
			want:   CategoryNotification,
		},
		{
			name:    "advertisement beats respond",
			subject: "Could you check out this discount?",
			want:    CategoryAdvertisement,
		},
		{
			name:    "notification beats respond",
			subject: "Alert: please verify your login",
			want:    CategoryNotification,
		},
		{
			name:    "no keywords defaults to notification",
			subject: "hi",
			body:    "see attached",
			want:    CategoryNotification,
		},
		{
			name: "empty message defaults to notification",
			want: CategoryNotification,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyByKeywords(tt.subject, tt.sender, tt.body)
			if got != tt.want {
				t.Fatalf("classifyByKeywords(%q, %q, %q) = %q, want %q",
					tt.subject, tt.sender, tt.body, got, tt.want)
			}
		})
	}
}

func TestTruncateSummary(t *testing.T) {
	short := "hello"
	if got := truncateSummary(short); got != short {
		t.Fatalf("short body changed: %q", got)
	}

	long := strings.Repeat("a", 600)
	got := truncateSummary(long)
	if len(got) != 500 {
		t.Fatalf("truncated length = %d, want 500", len(got))
	}
}
