package helpers

import "testing"

func TestPlainTextRemovesTagsAndScripts(t *testing.T) {
	input := `<p>Hello <strong>world</strong><script>alert('x')</script></p>`
	if got := PlainText(input); got != "Hello world" {
		t.Fatalf("expected %q, got %q", "Hello world", got)
	}
}

func TestPlainTextDecodesEntitiesAndCollapsesWhitespace(t *testing.T) {
	input := "<div>Stocks &amp; bonds\n\n   rally</div>"
	if got := PlainText(input); got != "Stocks & bonds rally" {
		t.Fatalf("got %q", got)
	}
}

func TestTruncateIsRuneSafe(t *testing.T) {
	if got := Truncate("héllo", 2); got != "hé" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("abc", 10); got != "abc" {
		t.Fatalf("got %q", got)
	}
}

func TestPreview(t *testing.T) {
	long := "The quick brown fox jumps over the lazy dog and keeps running far away"
	got := Preview(long, 50)
	if got != long[:50]+"..." {
		t.Fatalf("got %q", got)
	}
	if got := Preview("short", 50); got != "short" {
		t.Fatalf("got %q", got)
	}
}

func TestSpeakableTextDropsMarkdownAndTags(t *testing.T) {
	input := `**Big** news today [DEEP_DIVE topic="x" context="y"] in _tech_`
	if got := SpeakableText(input); got != "Big news today in tech" {
		t.Fatalf("got %q", got)
	}
}
