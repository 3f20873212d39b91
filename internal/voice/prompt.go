package voice

import (
	"strings"

	"github.com/nivaanlabs/vaani/internal/session"
)

// historyWindow is how many recent non-system turns make it into the prompt.
const historyWindow = 10

// PersonaPromptFromParameters builds the persona system prompt from carrier
// custom parameters. Missing fields drop their clause.
//
// Recognized keys: persona_name, persona_age, tone, gender, city, language,
// documents, customer_name.
func PersonaPromptFromParameters(params map[string]string) string {
	name := strings.TrimSpace(params["persona_name"])
	if name == "" {
		name = "Vaani"
	}

	intro := "You are " + name
	if age := strings.TrimSpace(params["persona_age"]); age != "" {
		intro += ", " + age + " years old"
	}
	descriptor := strings.TrimSpace(strings.TrimSpace(params["tone"]) + " " + strings.TrimSpace(params["gender"]))
	city := strings.TrimSpace(params["city"])
	if descriptor != "" {
		intro += ", a " + descriptor
		if city != "" {
			intro += " from " + city
		}
	} else if city != "" {
		intro += " from " + city
	}
	intro += "."

	parts := []string{intro}
	if instruction := languageInstruction(params["language"]); instruction != "" {
		parts = append(parts, instruction)
	}
	if docs := strings.TrimSpace(params["documents"]); docs != "" {
		parts = append(parts, "Sirf in documents se jawab do:\n"+docs)
	}
	if customer := strings.TrimSpace(params["customer_name"]); customer != "" {
		parts = append(parts, "Customer ka naam: "+customer)
	}
	return strings.Join(parts, "\n\n")
}

func languageInstruction(language string) string {
	language = strings.TrimSpace(language)
	if language == "" {
		return ""
	}
	if strings.Contains(strings.ToLower(language), "hi") {
		return "Baat karo Hinglish mein (mix of Hindi and English)."
	}
	return "Speak in " + language + "."
}

// BuildTurnPrompt linearizes the persona block, optional retrieval context,
// recent history and the current utterance into one LLM prompt. The history
// slice must not yet contain the current user turn.
func BuildTurnPrompt(systemPrompt string, chunks []string, history []session.Message, userText string) string {
	var b strings.Builder
	if systemPrompt != "" {
		b.WriteString(systemPrompt)
		b.WriteString("\n\n")
	}
	if len(chunks) > 0 {
		b.WriteString(session.RelevantContextPrefix)
		b.WriteString("\n")
		b.WriteString(strings.Join(chunks, "\n\n"))
		b.WriteString("\n\n")
	}

	turns := make([]session.Message, 0, len(history))
	for _, msg := range history {
		if msg.Role == session.RoleSystem {
			continue
		}
		turns = append(turns, msg)
	}
	if len(turns) > historyWindow {
		turns = turns[len(turns)-historyWindow:]
	}
	for _, msg := range turns {
		switch msg.Role {
		case session.RoleUser:
			b.WriteString("User: ")
		case session.RoleAssistant:
			b.WriteString("Assistant: ")
		}
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}

	b.WriteString("User: ")
	b.WriteString(userText)
	b.WriteString("\nAssistant:")
	return b.String()
}
