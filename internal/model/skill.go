// Package model holds the core domain types shared by every component of the
// skill protocol server: skills, execution records, workflows, and usage
// statistics.
package model

import "time"

// Language is a source language the sandbox runtime knows how to launch.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageTypeScript Language = "typescript"
	LanguageGo         Language = "go"
)

// SupportedLanguages is the fixed set of sandbox-supported source languages.
var SupportedLanguages = []Language{LanguagePython, LanguageTypeScript, LanguageGo}

func (l Language) Valid() bool {
	for _, s := range SupportedLanguages {
		if s == l {
			return true
		}
	}
	return false
}

// Skill is a versioned, user-supplied code artifact exposing a single entry
// point "execute". (spec.md §3, Skill)
type Skill struct {
	SkillID     string   `json:"skill_id"`
	SkillName   string   `json:"skill_name"`
	Description string   `json:"description"`
	Version     string   `json:"version"`
	Language    Language `json:"language"`

	// Code is the raw (already base64-decoded) artifact bytes.
	Code []byte `json:"-"`

	TimeoutSeconds int    `json:"timeout_seconds"`
	Dependencies   string `json:"dependencies,omitempty"`

	InputSchema  map[string]any `json:"input_schema,omitempty"`
	OutputSchema map[string]any `json:"output_schema,omitempty"`

	Author   string `json:"author,omitempty"`
	License  string `json:"license,omitempty"`
	Category string `json:"category,omitempty"`

	// ContentHash is the blake3 digest of Code, stamped at registration.
	ContentHash string `json:"content_hash"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Deleted bool `json:"-"`
}

// UsageStats tracks per-skill invocation statistics, updated after each
// terminal invocation. (spec.md §3, UsageStats)
type UsageStats struct {
	TotalCalls  int64   `json:"total_calls"`
	SuccessRate float64 `json:"success_rate"`
	Popularity  int64   `json:"popularity"`
}

// Key identifies a skill by its unique (skill_id, version) pair.
type Key struct {
	SkillID string
	Version string
}
