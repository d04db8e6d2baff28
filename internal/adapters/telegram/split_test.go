package telegram

import (
	"strings"
	"testing"
)

func TestSplitMessageShort(t *testing.T) {
	parts := SplitMessage("короткое сообщение")
	if len(parts) != 1 {
		t.Fatalf("ожидали 1 часть, получили %d", len(parts))
	}
}

func TestSplitMessageEmpty(t *testing.T) {
	if parts := SplitMessage("   \n  "); parts != nil {
		t.Fatalf("ожидали nil для пустого текста, получили %v", parts)
	}
}

func TestSplitMessagePrefersLineBreaks(t *testing.T) {
	line := strings.Repeat("я", 3000)
	parts := SplitMessage(line + "\n" + line)
	if len(parts) != 2 {
		t.Fatalf("ожидали 2 части, получили %d", len(parts))
	}
	for i, p := range parts {
		if len([]rune(p)) > messageLimit {
			t.Fatalf("часть %d длиннее лимита: %d", i, len([]rune(p)))
		}
	}
}

func TestSplitMessageHardCut(t *testing.T) {
	parts := SplitMessage(strings.Repeat("ж", messageLimit+10))
	if len(parts) != 2 {
		t.Fatalf("ожидали 2 части, получили %d", len(parts))
	}
	if len([]rune(parts[0])) != messageLimit {
		t.Fatalf("первая часть должна быть ровно в лимит, получили %d", len([]rune(parts[0])))
	}
	if len([]rune(parts[1])) != 10 {
		t.Fatalf("ожидали хвост из 10 рун, получили %d", len([]rune(parts[1])))
	}
}
