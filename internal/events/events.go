// Package events defines the NATS event contracts of the render workflow.
package events

import (
	"time"

	"github.com/book-expert/render-service/internal/core"
)

// EventHeader carries the tracing fields shared by every workflow event.
type EventHeader struct {
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id,omitempty"`
	TenantID   string    `json:"tenant_id,omitempty"`
}

// RenderRequestedEvent asks the service to render one vocal take. Guide audio
// is referenced by object-store key, never inlined.
type RenderRequestedEvent struct {
	Header EventHeader `json:"header"`

	PersonaID   string `json:"persona_id"`
	VoiceID     string `json:"voice_id"`
	Lyrics      string `json:"lyrics,omitempty"`
	StylePrompt string `json:"style_prompt,omitempty"`

	Controls core.ControlOverrides `json:"controls"`
	Effects  core.EffectSettings   `json:"effects"`

	GuideKey       string  `json:"guide_key,omitempty"`
	GuideUseLyrics bool    `json:"guide_use_lyrics,omitempty"`
	GuideTempo     float64 `json:"guide_tempo,omitempty"`
	GuideMatch     float64 `json:"guide_match,omitempty"`
	AccentLock     string  `json:"accent_lock,omitempty"`
	PreviewSeconds float64 `json:"preview_seconds,omitempty"`
}

// RenderCompletedEvent is the reply for one render request. ArtifactKey and
// PreviewKey are object-store keys of the uploaded takes.
type RenderCompletedEvent struct {
	Header EventHeader `json:"header"`

	RunID       string `json:"run_id"`
	ArtifactKey string `json:"artifact_key"`
	PreviewKey  string `json:"preview_key,omitempty"`
	Format      string `json:"format"`

	// DegradedStages lists best-effort stages that fell back during the
	// run, so consumers know the take is not exactly what was asked for.
	DegradedStages []string `json:"degraded_stages,omitempty"`

	Error string `json:"error,omitempty"`
}
