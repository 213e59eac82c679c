package moderation

import (
	"strings"
	"testing"
)

func TestNewFilterWithDefaults(t *testing.T) {
	f := NewFilterWithTerms(DefaultBannedWords)
	if f == nil {
		t.Fatal("NewFilterWithTerms returned nil")
	}
	if f.Terms() == 0 {
		t.Fatal("default banned words gave an empty filter")
	}
}

func TestCheck_BannedWords(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword", "offensive"})

	tests := []struct {
		name    string
		input   string
		blocked bool
		term    string
	}{
		{"exact match", "badword", true, "badword"},
		{"in sentence", "this is badword here", true, "badword"},
		{"case insensitive", "BADWORD", true, "badword"},
		{"mixed case", "BaDwOrD", true, "badword"},
		{"with punctuation", "hello, badword!", true, "badword"},
		{"substring of longer word", "mybadwording", true, "badword"},
		{"second term", "so offensive", true, "offensive"},
		{"clean message", "hello world", false, ""},
		{"empty message", "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(tt.input)
			if result.Blocked != tt.blocked {
				t.Errorf("Check(%q).Blocked = %v, want %v", tt.input, result.Blocked, tt.blocked)
			}
			if tt.blocked && result.Term != tt.term {
				t.Errorf("Check(%q).Term = %q, want %q", tt.input, result.Term, tt.term)
			}
			if tt.blocked && result.Reason != ReasonBannedWord {
				t.Errorf("Check(%q).Reason = %q, want %q", tt.input, result.Reason, ReasonBannedWord)
			}
		})
	}
}

func TestCheck_UpperCaseTerms(t *testing.T) {
	f := NewFilterWithTerms([]string{"IdiotWord1"})

	if r := f.Check("idiotword1 test"); !r.Blocked {
		t.Error("expected configured upper-case term to match lower-case text")
	}
}

func TestCheck_ArabicTerm(t *testing.T) {
	f := NewFilterWithTerms([]string{"كلمة"})

	if r := f.Check("هذه كلمة سيئة"); !r.Blocked {
		t.Error("expected Arabic term to match")
	}
}

func TestCheck_EmptyFilter(t *testing.T) {
	f := NewFilterWithTerms(nil)

	if r := f.Check("anything goes"); r.Blocked {
		t.Errorf("empty filter blocked message (term=%q)", r.Term)
	}
}

func TestNewFilterWithTerms_EmptyAndWhitespace(t *testing.T) {
	f := NewFilterWithTerms([]string{"", "  ", "valid", "VALID"})

	if f.Terms() != 1 {
		t.Errorf("expected 1 term, got %d", f.Terms())
	}
	if f.terms[0] != "valid" {
		t.Errorf("expected term %q, got %q", "valid", f.terms[0])
	}
}

func TestCheck_DeterministicTerm(t *testing.T) {
	f := NewFilterWithTerms([]string{"zeta", "alpha"})

	for i := 0; i < 10; i++ {
		if r := f.Check("alpha and zeta"); r.Term != "alpha" {
			t.Fatalf("Check().Term = %q, want %q", r.Term, "alpha")
		}
	}
}

func TestCountIdentical(t *testing.T) {
	history := []string{"spam", "Spam", "spam ", "spam", "hello"}

	if got := CountIdentical(history, "spam"); got != 2 {
		t.Errorf("CountIdentical = %d, want 2", got)
	}
	if got := CountIdentical(nil, "spam"); got != 0 {
		t.Errorf("CountIdentical(nil) = %d, want 0", got)
	}
}

func TestIsRepeatSpam(t *testing.T) {
	tests := []struct {
		copies int
		want   bool
	}{
		{0, false},
		{3, false},
		{4, true},
		{10, true},
	}

	for _, tt := range tests {
		history := make([]string, 0, 10)
		for i := 0; i < tt.copies; i++ {
			history = append(history, "buy now")
		}
		for len(history) < 10 {
			history = append(history, "other")
		}
		if got := IsRepeatSpam(history, "buy now", 3); got != tt.want {
			t.Errorf("IsRepeatSpam with %d copies = %v, want %v", tt.copies, got, tt.want)
		}
	}
}

// BenchmarkCheck measures filter cost on a clean message.
func BenchmarkCheck(b *testing.B) {
	f := NewFilterWithTerms([]string{"badword", "offensive", "noxiousword1", "noxiousword2"})
	msg := "hey how are you doing today? I love chatting about music and movies. What are your favorite hobbies?"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Check(msg)
	}
}

// BenchmarkCheck_LongMessage measures performance on longer messages.
func BenchmarkCheck_LongMessage(b *testing.B) {
	f := NewFilterWithTerms(DefaultBannedWords)
	msg := strings.Repeat("this is a perfectly normal message with no bad content. ", 40)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Check(msg)
	}
}
