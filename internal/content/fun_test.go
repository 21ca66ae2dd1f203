package content

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/morningdrive/internal/briefing"
)

func TestSelectHistoryPriority(t *testing.T) {
	events := []HistoryEvent{
		{Year: 1990, Kind: "birth"},
		{Year: 1800, Kind: "event"},
		{Year: 2001, Kind: "death"},
		{Year: 1969, Kind: "event"},
	}
	got := SelectHistory(events, 2)
	if len(got) != 2 || got[0].Year != 1969 || got[1].Year != 1800 {
		t.Fatalf("unexpected selection: %+v", got)
	}
	if len(SelectHistory(events, 0)) != 4 {
		t.Fatalf("limit 0 keeps everything")
	}
}

func TestFunFactsFetch(t *testing.T) {
	var historyPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/onthisday/"):
			historyPath = r.URL.Path
			fmt.Fprint(w, `{"selected":[{"year":1969,"text":"Moon landing"},{"year":1903,"text":"First World Series game"}],
				"births":[{"year":1980,"text":"Someone"}],"deaths":[]}`)
		case r.URL.Path == "/quote":
			fmt.Fprint(w, `[{"q":"Be here now.","a":"Ram Dass"}]`)
		default:
			http.Error(w, "nope", http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()

	f := &FunFacts{
		WikipediaURL: srv.URL + "/onthisday",
		ZenQuotesURL: srv.URL + "/quote",
		DadJokeURL:   srv.URL + "/joke",
	}
	settings := briefing.DefaultUserSettings("u1")
	settings.FunSegments = []string{FunHistory, FunQuote, FunDadJoke, FunSportsHistory}
	now := time.Date(2025, 7, 4, 6, 0, 0, 0, time.UTC)
	sec, err := f.Fetch(context.Background(), Request{Settings: settings, Rules: briefing.RulesFor(briefing.LengthShort), Now: now})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if historyPath != "/onthisday/all/07/04" {
		t.Fatalf("unexpected wikipedia path %q", historyPath)
	}
	for _, want := range []string{
		"## This Day in History",
		"- **1969** (event): Moon landing",
		"> \"Be here now.\"",
		"## Dad Joke",
		"## On This Day in Sports",
		"First World Series game",
	} {
		if !strings.Contains(sec.Text, want) {
			t.Fatalf("missing %q in:\n%s", want, sec.Text)
		}
	}
	// short rules keep a single history entry
	if strings.Contains(sec.Text, "(event): First World Series game") {
		t.Fatalf("history should be limited to one entry:\n%s", sec.Text)
	}
	if len(sec.Errors) != 1 || sec.Errors[0].Source != "icanhazdadjoke" {
		t.Fatalf("expected dad joke failure with fallback, got %+v", sec.Errors)
	}
}
