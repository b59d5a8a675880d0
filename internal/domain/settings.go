package domain

import (
	"strings"
	"time"
)

// maskSuffix marks a secret echoed back from a masked response.
const maskSuffix = "***"

// DefaultSettingsID is the id of the settings row created on first read.
const DefaultSettingsID int64 = 1

// UserSettings is the persisted key-value settings record consulted by the
// runtime configuration resolver. Empty strings mean "not set".
type UserSettings struct {
	ID                    int64
	OpenAIAPIKey          string
	SemanticScholarAPIKey string
	CoreAPIKey            string
	ContactEmail          string
	EnabledSources        []SourceType
	ProxyURL              string
	ProxyEnabled          bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// SettingsUpdate is a partial update. Nil fields are left unchanged.
type SettingsUpdate struct {
	OpenAIAPIKey          *string
	SemanticScholarAPIKey *string
	CoreAPIKey            *string
	ContactEmail          *string
	EnabledSources        []string
	ProxyURL              *string
	ProxyEnabled          *bool
}

// Apply merges u into s following the secret and provider normalization rules.
func (s *UserSettings) Apply(u SettingsUpdate) {
	if u.OpenAIAPIKey != nil {
		s.OpenAIAPIKey = NormalizeSecretUpdate(*u.OpenAIAPIKey, s.OpenAIAPIKey)
	}
	if u.SemanticScholarAPIKey != nil {
		s.SemanticScholarAPIKey = NormalizeSecretUpdate(*u.SemanticScholarAPIKey, s.SemanticScholarAPIKey)
	}
	if u.CoreAPIKey != nil {
		s.CoreAPIKey = NormalizeSecretUpdate(*u.CoreAPIKey, s.CoreAPIKey)
	}
	if u.ContactEmail != nil {
		s.ContactEmail = strings.TrimSpace(*u.ContactEmail)
	}
	if u.EnabledSources != nil {
		s.EnabledSources = NormalizeSources(u.EnabledSources)
	}
	if u.ProxyURL != nil {
		s.ProxyURL = strings.TrimSpace(*u.ProxyURL)
	}
	if u.ProxyEnabled != nil {
		s.ProxyEnabled = *u.ProxyEnabled
	}
}

// NormalizeSecretUpdate resolves a submitted secret against the stored one.
// A blank candidate clears the secret, and a masked candidate keeps the
// current value.
func NormalizeSecretUpdate(candidate, current string) string {
	value := strings.TrimSpace(candidate)
	if value == "" {
		return ""
	}
	if strings.HasSuffix(value, maskSuffix) {
		return current
	}
	return value
}

// NormalizeSources lowercases and deduplicates provider names, dropping any
// that are not adapter sources. An empty result falls back to the defaults.
func NormalizeSources(raw []string) []SourceType {
	out := make([]SourceType, 0, len(raw))
	seen := make(map[SourceType]bool, len(raw))
	for _, name := range raw {
		st, ok := ParseSourceType(name)
		if !ok || !IsAdapterSource(st) || seen[st] {
			continue
		}
		seen[st] = true
		out = append(out, st)
	}
	if len(out) == 0 {
		return DefaultEnabledSources()
	}
	return out
}

// MaskSecret hides a secret for display, keeping only the text before the
// first dash. It returns nil for an empty secret.
func MaskSecret(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	masked := maskSuffix
	if prefix, _, found := strings.Cut(v, "-"); found {
		masked = prefix + "-" + maskSuffix
	}
	return &masked
}
