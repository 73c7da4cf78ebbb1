package judge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"serotonyl.ru/bizbattle/internal/common"
	"serotonyl.ru/bizbattle/internal/config"
)

// fakeGen отвечает заранее заданным текстом в зависимости от промпта.
type fakeGen struct {
	reply func(prompt string) string
}

func (f fakeGen) Generate(_ context.Context, prompt string) string {
	return f.reply(prompt)
}

func constGen(s string) fakeGen {
	return fakeGen{reply: func(string) string { return s }}
}

func newJudge(gen Generator) *Judge {
	return New(gen, common.NewLockedRand(1), ConfigFromTuning(config.DefaultTuning()))
}

const longDesc = "We roast single origin beans every morning. Customers subscribe monthly and get fresh bags delivered to their door."

func TestScoreBusiness(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		reply string
		desc  string
		want  int
	}{
		{"unavailable", "", longDesc, 0},
		{"garbage", "no idea", longDesc, 3},
		{"clean json", `{"difficulty": 4, "earning": 7, "realistic": 6}`, longDesc, 17},
		{"wrapped json", "Sure! ```{\"difficulty\": 11, \"earning\": 7, \"realistic\": 6}```", longDesc, 23},
		{"short penalty", `{"difficulty": 4, "earning": 7, "realistic": 2}`, "Coffee.", 1 + 4 + 0},
		{"schema mismatch", `{"difficulty": "hard"}`, longDesc, 3},
	}
	for _, tc := range tests {
		got := newJudge(constGen(tc.reply)).ScoreBusiness(ctx, "Кофе", tc.desc)
		if got.Total != tc.want {
			t.Fatalf("%s: total=%d want %d (%+v)", tc.name, got.Total, tc.want, got)
		}
	}
}

func TestScoreUpgrade(t *testing.T) {
	ctx := context.Background()
	r := newJudge(constGen("")).ScoreUpgrade(ctx, "Ads", longDesc)
	if r.Realistic != 5 || r.Useful != 5 || r.Total != 10 || r.Average != 5 {
		t.Fatalf("fallback rating = %+v", r)
	}
	r = newJudge(constGen(`{"realistic": 8, "useful": 9}`)).ScoreUpgrade(ctx, "Ads", longDesc)
	if r.Total != 17 || r.Average != 8.5 {
		t.Fatalf("rating = %+v", r)
	}
	r = newJudge(constGen(`{"realistic": 8, "useful": 1}`)).ScoreUpgrade(ctx, "Ads", "short")
	if r.Realistic != 6 || r.Useful != 0 {
		t.Fatalf("short penalty rating = %+v", r)
	}
}

func TestDetectAI(t *testing.T) {
	ctx := context.Background()
	if _, ok := newJudge(constGen("")).DetectAI(ctx, "hello"); ok {
		t.Fatalf("empty reply must mean unavailable")
	}
	if v, ok := newJudge(constGen("Score: 92")).DetectAI(ctx, "hello"); !ok || v != 92 {
		t.Fatalf("got %d %v", v, ok)
	}
	if v, _ := newJudge(constGen("999")).DetectAI(ctx, "hello"); v != 100 {
		t.Fatalf("clamp failed: %d", v)
	}
	if _, ok := newJudge(nil).DetectAI(ctx, "hello"); ok {
		t.Fatalf("nil generator must be unavailable")
	}
}

func TestPickWinnerFallbacks(t *testing.T) {
	ctx := context.Background()
	v := newJudge(constGen("b")).PickWinner(ctx, "A", "x", "B", "y")
	if v.Winner != SideB || v.Source != SourceJudge {
		t.Fatalf("judge verdict = %+v", v)
	}
	v = newJudge(constGen("")).PickWinner(ctx, "A", "one two three", "B", "one")
	if v.Winner != SideA || v.Source != SourceWords {
		t.Fatalf("words verdict = %+v", v)
	}
	v = newJudge(constGen("maybe")).PickWinner(ctx, "A", "one", "B", "two")
	if v.Source != SourceCoin {
		t.Fatalf("coin verdict = %+v", v)
	}
}

func TestExplain(t *testing.T) {
	ctx := context.Background()
	got := newJudge(constGen("A is concrete. It cites numbers! Extra sentence.\nsecond line")).
		Explain(ctx, SideA, "A", "x", "B", "y")
	if got != "A is concrete. It cites numbers!" {
		t.Fatalf("explanation = %q", got)
	}
	got = newJudge(constGen("")).Explain(ctx, SideB, "A", "short", "B", "we grew revenue 30% with six new loyal customers this quarter")
	if !strings.HasPrefix(got, "B wins because") || !strings.Contains(got, "concrete figures") {
		t.Fatalf("heuristic explanation = %q", got)
	}
}

func TestCustomer(t *testing.T) {
	ctx := context.Background()
	p := config.Persona{Name: "Busy parent", Need: "convenient and reliable", Mood: "practical"}

	got := newJudge(constGen("")).Customer(ctx, p, "Кофе", "desc")
	want := "I'm a Busy parent looking for something convenient and reliable. Before I buy, how will this help me?"
	if got != want {
		t.Fatalf("fallback customer = %q", got)
	}

	got = newJudge(constGen("I need coffee fast")).Customer(ctx, p, "Кофе", "desc")
	if got != "I need coffee fast. Can you explain briefly how this meets my 'convenient and reliable' need?" {
		t.Fatalf("single sentence customer = %q", got)
	}

	long := strings.Repeat("word ", 60) + "end. Second."
	got = newJudge(constGen(long)).Customer(ctx, p, "Кофе", "desc")
	if n := len([]rune(got)); n > 200 {
		t.Fatalf("customer too long: %d", n)
	}
}

func TestJudgePitch(t *testing.T) {
	ctx := context.Background()
	if ok, _ := newJudge(constGen("YES, definitely")).JudgePitch(ctx, "c", "p"); !ok {
		t.Fatalf("YES must pass")
	}
	if ok, _ := newJudge(constGen("no")).JudgePitch(ctx, "c", "p"); ok {
		t.Fatalf("NO must fail")
	}
	good := "This will save you 3 hours every week and your customers get their orders twice as fast"
	if ok, _ := newJudge(constGen("")).JudgePitch(ctx, "c", good); !ok {
		t.Fatalf("heuristic should accept %q", good)
	}
	if ok, _ := newJudge(constGen("")).JudgePitch(ctx, "c", "buy it now"); ok {
		t.Fatalf("heuristic should reject short pitch")
	}
}

type slowGen struct{}

func (slowGen) Generate(ctx context.Context, _ string) string {
	time.Sleep(200 * time.Millisecond)
	return "A"
}

func TestTimeoutFallsBack(t *testing.T) {
	cfg := ConfigFromTuning(config.DefaultTuning())
	cfg.VerdictTimeout = 10 * time.Millisecond
	j := New(slowGen{}, common.NewLockedRand(1), cfg)

	v := j.PickWinner(context.Background(), "A", "a", "B", "b b")
	if v.Source == SourceJudge || v.Winner != SideB {
		t.Fatalf("expected word fallback after timeout, got %+v", v)
	}
}

func TestGeminiClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
			return
		}
		if !strings.HasSuffix(r.URL.Path, "/models/test-model:generateContent") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":" B \n"}]}}]}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	c := NewGeminiClient(GeminiConfig{APIKey: "secret", Model: "test-model", BaseURL: srv.URL})
	if got := c.Generate(ctx, "hi"); got != "B" {
		t.Fatalf("got %q", got)
	}

	bad := NewGeminiClient(GeminiConfig{APIKey: "wrong", Model: "test-model", BaseURL: srv.URL})
	if got := bad.Generate(ctx, "hi"); got != "" {
		t.Fatalf("error must map to empty string, got %q", got)
	}

	none := NewGeminiClient(GeminiConfig{BaseURL: srv.URL})
	if none.Available() || none.Generate(ctx, "hi") != "" {
		t.Fatalf("client without key must be unavailable")
	}
}

func TestSentenceHelpers(t *testing.T) {
	if !IsShortDescription("One sentence with many words but only one sentence here at all.") {
		t.Fatalf("single sentence must be short")
	}
	if IsShortDescription(longDesc) {
		t.Fatalf("long description flagged as short")
	}
}
