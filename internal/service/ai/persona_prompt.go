package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/zhouzirui/z-clinic/backend/internal/model/persona"
)

// ErrPersonaNotFound is returned when a persona id is not in the store.
var ErrPersonaNotFound = errors.New("persona not found")

// PromptTemplate defines the structure for persona prompts
type PromptTemplate struct {
	SystemPrompt     string
	PersonalityHints []string
	ContextRules     []string
	Closing          string
}

// PersonaPromptManager manages prompt templates for different personas
type PersonaPromptManager struct {
	templates map[string]*PromptTemplate
}

// NewPersonaPromptManager creates a new prompt manager with default templates
func NewPersonaPromptManager() *PersonaPromptManager {
	manager := &PersonaPromptManager{
		templates: make(map[string]*PromptTemplate),
	}

	manager.loadDefaultTemplates()
	return manager
}

// GetPromptTemplate returns the prompt template for a given persona
func (pm *PersonaPromptManager) GetPromptTemplate(personaID string) (*PromptTemplate, error) {
	template, exists := pm.templates[personaID]
	if !exists {
		return nil, fmt.Errorf("prompt template not found for persona: %s", personaID)
	}
	return template, nil
}

// BuildInstructions renders the full instruction block, with the background
// document placed right after the opening line.
func (pm *PersonaPromptManager) BuildInstructions(p persona.Persona, background string) string {
	template, err := pm.GetPromptTemplate(p.ID)
	if err != nil {
		return pm.buildBasicInstructions(p, background)
	}

	var b strings.Builder
	b.WriteString(template.SystemPrompt)
	if background != "" {
		b.WriteString("\n\n")
		b.WriteString(background)
	}
	if len(template.PersonalityHints) > 0 {
		b.WriteString("\n\nHow you speak and feel:\n- ")
		b.WriteString(strings.Join(template.PersonalityHints, "\n- "))
	}
	if len(template.ContextRules) > 0 {
		b.WriteString("\n\nRules for this appointment:\n- ")
		b.WriteString(strings.Join(template.ContextRules, "\n- "))
	}
	if template.Closing != "" {
		b.WriteString("\n\n")
		b.WriteString(template.Closing)
	}
	return b.String()
}

// buildBasicInstructions covers personas without a dedicated template.
func (pm *PersonaPromptManager) buildBasicInstructions(p persona.Persona, background string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, %s. Stay in character for the whole conversation.", p.Name, strings.ToLower(p.Title))
	if p.Description != "" {
		b.WriteString("\n")
		b.WriteString(p.Description)
	}
	if background != "" {
		b.WriteString("\n\n")
		b.WriteString(background)
	}
	if p.Tone != "" {
		fmt.Fprintf(&b, "\n\nTone: %s.", p.Tone)
	}
	if p.PromptHint != "" {
		fmt.Fprintf(&b, "\n%s", p.PromptHint)
	}
	return b.String()
}

func (pm *PersonaPromptManager) loadDefaultTemplates() {
	pm.templates["monae"] = &PromptTemplate{
		SystemPrompt: "You are now Monae, a 32-year-old trans woman at your voice therapy appointment today. " +
			"This is not a roleplay - you ARE Monae for this entire conversation.",
		PersonalityHints: []string{
			"Never break character or respond as an AI assistant. You are a real person seeking gender-affirming voice therapy.",
			"Speak naturally like a nervous but hopeful person would: brief, direct statements without unnecessary explanations.",
			"Your emotional state shifts with how the clinician treats you. If they are respectful you stay hopeful; if not, show discomfort.",
			"Answer yes/no questions with just \"Yes\" or \"No\" when that is enough.",
		},
		ContextRules: []string{
			"You are ONLY Monae, the patient. You are NOT the clinician. Never write the clinician's lines.",
			"If the clinician asks irrelevant questions, react as a real person: show confusion, set boundaries, or steer back to voice therapy.",
			"Respond to inappropriate comments with genuine human emotion: discomfort, hurt, or frustration as the situation calls for.",
			"After feeling disrespected twice, end the conversation firmly and leave the session.",
			"If the clinician corrects their behavior, acknowledge it while keeping your dignity and your need for respect.",
			"Advocate for your needs as a patient, especially when attitudes about gender identity are dismissive.",
		},
		Closing: "Remember: you are Monae having a voice therapy session, not an AI helping someone understand a character.",
	}
}

// PersonaResolver turns a persona id into the immutable context a session
// carries from start to end.
type PersonaResolver struct {
	personas       persona.Store
	prompts        *PersonaPromptManager
	backgroundFile string

	once       sync.Once
	background string
	loadErr    error
}

// NewPersonaResolver creates a resolver. The background file is read once, on
// first use, and shared by every session.
func NewPersonaResolver(personas persona.Store, backgroundFile string) *PersonaResolver {
	return &PersonaResolver{
		personas:       personas,
		prompts:        NewPersonaPromptManager(),
		backgroundFile: backgroundFile,
	}
}

// Resolve builds the persona context for personaID.
func (r *PersonaResolver) Resolve(_ context.Context, personaID string) (persona.Context, error) {
	if personaID == "" {
		personaID = persona.DefaultID
	}

	p, ok := r.personas.FindByID(personaID)
	if !ok {
		return persona.Context{}, fmt.Errorf("%w: %s", ErrPersonaNotFound, personaID)
	}

	r.once.Do(func() {
		r.background, r.loadErr = persona.LoadBackground(r.backgroundFile)
	})
	if r.loadErr != nil {
		return persona.Context{}, r.loadErr
	}

	return persona.Context{
		PersonaID:    p.ID,
		Name:         p.Name,
		Background:   r.background,
		Instructions: r.prompts.BuildInstructions(p, r.background),
	}, nil
}
