// Package domain contains core domain types for the NaurBotMX application.
package domain

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Language tags a message with the language the backend detected for it.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageSpanish Language = "es"
)

// NormalizeLanguage maps backend language tags to a known Language.
// Anything that is not Spanish is treated as English.
func NormalizeLanguage(v string) Language {
	if Language(v) == LanguageSpanish {
		return LanguageSpanish
	}
	return LanguageEnglish
}

// Message is one turn in a conversation. Messages are immutable once
// appended to a conversation; the References slice is deduplicated at
// construction time so renderers never see the same code twice.
type Message struct {
	Role       Role     `json:"role"`
	Text       string   `json:"text"`
	References []string `json:"references,omitempty"`
	Language   Language `json:"language"`
}

// NewUserMessage builds a message authored by the visitor.
func NewUserMessage(text string) Message {
	return Message{
		Role:     RoleUser,
		Text:     text,
		Language: LanguageEnglish,
	}
}

// NewBotMessage builds an assistant message. Reference codes are kept in
// first-occurrence order with duplicates dropped; references only carry
// meaning on bot messages.
func NewBotMessage(text string, references []string, lang string) Message {
	return Message{
		Role:       RoleBot,
		Text:       text,
		References: dedupeReferences(references),
		Language:   NormalizeLanguage(lang),
	}
}

func dedupeReferences(refs []string) []string {
	if len(refs) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
