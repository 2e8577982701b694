package chat

import (
	"testing"
	"time"

	"github.com/spsquared/battleboxes-server/internal/config"
)

func TestCensor(t *testing.T) {
	banned := []string{"frick", "heck"}
	tests := []struct {
		name, in, want string
	}{
		{"clean", "hello there", "hello there"},
		{"exact", "frick", "*****"},
		{"case insensitive", "FrIcK that", "***** that"},
		{"inside word", "heckler", "****ler"},
		{"multiple", "heck heck", "**** ****"},
		{"both words", "frick and heck", "***** and ****"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Censor(tt.in, banned); got != tt.want {
				t.Errorf("Censor(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPlayerMessage(t *testing.T) {
	m := PlayerMessage("sam", "hi")
	if len(m.Sections) != 2 || m.Sections[0].Style != "username" || m.Sections[1].Text != ": hi" {
		t.Errorf("unexpected sections: %+v", m.Sections)
	}
}

func testFilter(cfg config.ChatConfig) (*Filter, *time.Time) {
	f := NewFilter(cfg)
	now := time.Unix(1000, 0)
	f.now = func() time.Time { return now }
	return f, &now
}

func TestFilterMinimumGap(t *testing.T) {
	cfg := config.DefaultChat()
	cfg.SpamGraceCount = 0
	f, now := testFilter(cfg)

	if !f.Allow("sam") {
		t.Fatal("first message should pass")
	}
	if f.Allow("sam") {
		t.Fatal("instant second message should be blocked with no grace")
	}
	*now = now.Add(time.Duration(cfg.MinMillisPerMessage) * time.Millisecond)
	if !f.Allow("sam") {
		t.Fatal("message after the gap should pass")
	}
}

func TestFilterGraceBurst(t *testing.T) {
	cfg := config.DefaultChat() // grace of 3
	f, _ := testFilter(cfg)

	// First message plus the grace allowance pass; the next rapid one is
	// blocked.
	allowed := 0
	for i := 0; i < cfg.SpamGraceCount+2; i++ {
		if f.Allow("sam") {
			allowed++
		}
	}
	if allowed != cfg.SpamGraceCount+1 {
		t.Errorf("%d rapid messages allowed, want %d", allowed, cfg.SpamGraceCount+1)
	}
}

func TestFilterPerMinuteCap(t *testing.T) {
	cfg := config.DefaultChat()
	f, now := testFilter(cfg)

	allowed := 0
	for i := 0; i < cfg.MaxSpamPerMinute+10; i++ {
		if f.Allow("sam") {
			allowed++
		}
		*now = now.Add(time.Second)
	}
	if allowed != cfg.MaxSpamPerMinute {
		t.Errorf("%d messages in a minute, want cap %d", allowed, cfg.MaxSpamPerMinute)
	}

	// A new window opens after the minute.
	*now = now.Add(time.Minute)
	if !f.Allow("sam") {
		t.Error("message in a fresh window should pass")
	}
}

func TestFilterPerUser(t *testing.T) {
	cfg := config.DefaultChat()
	cfg.SpamGraceCount = 0
	f, _ := testFilter(cfg)

	if !f.Allow("a") {
		t.Fatal("a's first message should pass")
	}
	if !f.Allow("b") {
		t.Error("b must not be throttled by a's messages")
	}

	f.Forget("a")
	if !f.Allow("a") {
		t.Error("forgotten user starts fresh")
	}
}
