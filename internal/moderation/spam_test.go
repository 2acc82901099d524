package moderation

import "testing"

func TestCheckSpamPatterns_URLs(t *testing.T) {
	f := NewFilterWithTerms(nil)

	tests := []struct {
		name    string
		input   string
		blocked bool
	}{
		{"http url", "check out http://spam.example/deal", true},
		{"https url", "https://phishy.ru/login", true},
		{"www url", "visit www.totally-legit.biz now", true},
		{"bare domain with path", "go to freestuff.xyz/win today", true},
		{"bare domain no path", "I work at example.com", false},
		{"version string", "we shipped v2.0 yesterday", false},
		{"decimal number", "pi is about 3.14 right?", false},
		{"no url", "just a normal message", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(tt.input)
			if result.Blocked != tt.blocked {
				t.Errorf("Check(%q).Blocked = %v, want %v (term=%q)", tt.input, result.Blocked, tt.blocked, result.Term)
			}
			if tt.blocked && result.Term != "url" {
				t.Errorf("Check(%q).Term = %q, want %q", tt.input, result.Term, "url")
			}
		})
	}
}

func TestCheckSpamPatterns_PhoneNumbers(t *testing.T) {
	f := NewFilterWithTerms(nil)

	tests := []struct {
		name    string
		input   string
		blocked bool
	}{
		{"dashed", "call me at 555-123-4567", true},
		{"dotted", "my number is 555.123.4567", true},
		{"parens", "reach me (555) 123-4567 anytime", true},
		{"international", "text +1-555-123-4567 ok", true},
		{"short number", "I scored 100 points", false},
		{"year", "back in 2024 we met", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(tt.input)
			if result.Blocked != tt.blocked {
				t.Errorf("Check(%q).Blocked = %v, want %v (term=%q)", tt.input, result.Blocked, tt.blocked, result.Term)
			}
			if tt.blocked && result.Term != "phone" {
				t.Errorf("Check(%q).Term = %q, want %q", tt.input, result.Term, "phone")
			}
		})
	}
}

func TestHasCharFlood(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"aaaaa", true},
		{"hellooooo", true},
		{"!!!!!!", true},
		{"aaaa", false},
		{"hello", false},
		{"", false},
		{"aabbaabbaa", false},
	}

	for _, tt := range tests {
		if got := hasCharFlood(tt.input); got != tt.want {
			t.Errorf("hasCharFlood(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestHasWordFlood(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"buy buy buy", true},
		{"BUY buy Buy", true},
		{"spam spam spam spam", true},
		{"buy buy now", false},
		{"buy now buy now buy", false},
		{"single", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := hasWordFlood(tt.input); got != tt.want {
			t.Errorf("hasWordFlood(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestCheckSpamPatterns_Reason(t *testing.T) {
	f := NewFilterWithTerms(nil)

	result := f.Check("wowwwwww")
	if !result.Blocked {
		t.Fatal("expected char flood to block")
	}
	if result.Reason != "spam_pattern" {
		t.Errorf("Reason = %q, want %q", result.Reason, "spam_pattern")
	}
	if result.Term != "char_flood" {
		t.Errorf("Term = %q, want %q", result.Term, "char_flood")
	}
}
