package voice

import (
	"fmt"
	"strings"
	"testing"

	"github.com/nivaanlabs/vaani/internal/session"
)

func TestPersonaPromptFromParametersFull(t *testing.T) {
	params := map[string]string{
		"persona_name":  "Priya",
		"persona_age":   "28",
		"tone":          "friendly",
		"gender":        "female",
		"city":          "Mumbai",
		"language":      "hindi",
		"documents":     "Plan A costs 500 rupees.",
		"customer_name": "Rahul",
	}
	got := PersonaPromptFromParameters(params)

	wantIntro := "You are Priya, 28 years old, a friendly female from Mumbai."
	if !strings.HasPrefix(got, wantIntro) {
		t.Fatalf("intro = %q, want prefix %q", got, wantIntro)
	}
	for _, want := range []string{
		"Baat karo Hinglish mein (mix of Hindi and English).",
		"Sirf in documents se jawab do:\nPlan A costs 500 rupees.",
		"Customer ka naam: Rahul",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt missing %q:\n%s", want, got)
		}
	}
}

func TestPersonaPromptFromParametersDropsMissingClauses(t *testing.T) {
	got := PersonaPromptFromParameters(map[string]string{"persona_name": "Priya"})
	if got != "You are Priya." {
		t.Fatalf("prompt = %q, want bare intro", got)
	}

	got = PersonaPromptFromParameters(map[string]string{"city": "Pune"})
	if got != "You are Vaani from Pune." {
		t.Fatalf("prompt = %q", got)
	}
}

func TestLanguageInstruction(t *testing.T) {
	tests := []struct {
		language string
		want     string
	}{
		{"hindi", "Baat karo Hinglish mein (mix of Hindi and English)."},
		{"Hindi", "Baat karo Hinglish mein (mix of Hindi and English)."},
		{"hi", "Baat karo Hinglish mein (mix of Hindi and English)."},
		{"english", "Speak in english."},
		{"", ""},
	}
	for _, tt := range tests {
		if got := languageInstruction(tt.language); got != tt.want {
			t.Fatalf("languageInstruction(%q) = %q, want %q", tt.language, got, tt.want)
		}
	}
}

func TestBuildTurnPromptShape(t *testing.T) {
	history := []session.Message{
		{Role: session.RoleSystem, Content: "You are Vaani."},
		{Role: session.RoleUser, Content: "hello"},
		{Role: session.RoleAssistant, Content: "Namaste!"},
	}
	got := BuildTurnPrompt("You are Vaani.", []string{"Pricing is 500 rupees."}, history, "kitna costly hai")

	want := "You are Vaani.\n\n" +
		session.RelevantContextPrefix + "\nPricing is 500 rupees.\n\n" +
		"User: hello\nAssistant: Namaste!\n" +
		"User: kitna costly hai\nAssistant:"
	if got != want {
		t.Fatalf("prompt:\n%q\nwant:\n%q", got, want)
	}
}

func TestBuildTurnPromptWindowsHistory(t *testing.T) {
	var history []session.Message
	for i := 0; i < 30; i++ {
		history = append(history, session.Message{Role: session.RoleUser, Content: fmt.Sprintf("u%d", i)})
	}
	got := BuildTurnPrompt("sys", nil, history, "latest")
	if strings.Contains(got, "u19\n") {
		t.Fatalf("prompt should only keep the last %d turns:\n%s", historyWindow, got)
	}
	if !strings.Contains(got, "u29\n") {
		t.Fatalf("prompt lost the most recent turn:\n%s", got)
	}
}
