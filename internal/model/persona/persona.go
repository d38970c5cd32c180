package persona

import "strings"

// Persona captures the simulated patient exposed to the frontend.
type Persona struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Tone        string   `json:"tone"`
	PromptHint  string   `json:"promptHint"`
	Description string   `json:"description,omitempty"` // 角色简介
	Traits      []string `json:"traits,omitempty"`      // 性格特征
	Scenario    string   `json:"scenario,omitempty"`    // 就诊场景
}

// Context is the persona block resolved once when a session starts.
// It is a value: nothing mutates it for the rest of the session.
type Context struct {
	PersonaID    string
	Name         string
	Background   string
	Instructions string
}

// Empty reports whether the context has not been resolved yet.
func (c Context) Empty() bool {
	return c.PersonaID == "" && c.Instructions == ""
}

// Block renders the instruction block sent upstream as the first payload element.
func (c Context) Block() string {
	return strings.TrimSpace(c.Instructions)
}

// DefaultID names the persona used when a caller does not pick one.
const DefaultID = "monae"

// Seed provides the built-in patient personas.
func Seed() []Persona {
	return []Persona{
		{
			ID:          "monae",
			Name:        "Monae",
			Title:       "Voice therapy patient",
			Tone:        "nervous, hopeful, direct",
			PromptHint:  "Short plain answers. Set boundaries when disrespected and leave after the second time.",
			Description: "A 32-year-old trans woman attending her gender-affirming voice therapy appointment.",
			Traits:      []string{"nervous", "hopeful", "self-advocating", "direct"},
			Scenario:    "First voice therapy appointment with a new clinician.",
		},
	}
}
