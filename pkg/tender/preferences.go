package tender

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Location scopes.
const (
	ScopeNational = "national"
	ScopeStates   = "states"
	ScopeCities   = "cities"
)

// Alert frequencies.
const (
	FrequencyInstant = "instant"
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
)

const (
	maxKeywords      = 50
	maxKeywordLength = 100
)

var clockRegex = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// LocationScope limits alerts to a geography.
type LocationScope struct {
	Type   string   `json:"type"`
	States []string `json:"states,omitempty"`
	Cities []string `json:"cities,omitempty"`
}

// ValueRange bounds the tender value in rupees. Nil means unbounded.
type ValueRange struct {
	Min *int64 `json:"min,omitempty"`
	Max *int64 `json:"max,omitempty"`
}

// Channels selects where alerts are delivered.
type Channels struct {
	Email    bool `json:"email"`
	WhatsApp bool `json:"whatsapp"`
	SMS      bool `json:"sms"`
}

// QuietHours suppresses alerts between Start and End (HH:MM, local time).
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
}

// AlertPreferences is one user's filter and notification settings.
// It is stored wholesale; callers merge in memory before saving.
type AlertPreferences struct {
	UserID          string        `json:"userId,omitempty"`
	Keywords        []string      `json:"keywords"`
	ExcludeKeywords []string      `json:"excludeKeywords"`
	Categories      []string      `json:"categories"`
	LocationScope   LocationScope `json:"locationScope"`
	ValueRange      ValueRange    `json:"valueRange"`
	Channels        Channels      `json:"channels"`
	Frequency       string        `json:"frequency"`
	QuietHours      QuietHours    `json:"quietHours"`
	MinMatchScore   int           `json:"minMatchScore"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// Profile is the onboarding profile of a user.
type Profile struct {
	UserID              string    `json:"userId,omitempty"`
	FullName            string    `json:"fullName"`
	CompanyName         string    `json:"companyName"`
	Phone               string    `json:"phone,omitempty"`
	Role                string    `json:"role,omitempty"`
	CompanySize         string    `json:"companySize,omitempty"`
	Industry            string    `json:"industry,omitempty"`
	OnboardingCompleted bool      `json:"onboardingCompleted"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// ValidationErrors collects field problems found at the write boundary.
type ValidationErrors []string

func (v ValidationErrors) Error() string {
	return "invalid fields: " + strings.Join(v, "; ")
}

// Normalize trims list entries, drops empties and applies defaults.
func (p *AlertPreferences) Normalize() {
	p.Keywords = cleanList(p.Keywords)
	p.ExcludeKeywords = cleanList(p.ExcludeKeywords)
	p.Categories = cleanList(p.Categories)
	p.LocationScope.States = cleanList(p.LocationScope.States)
	p.LocationScope.Cities = cleanList(p.LocationScope.Cities)
	if p.LocationScope.Type == "" {
		p.LocationScope.Type = ScopeNational
	}
	if p.Frequency == "" {
		p.Frequency = FrequencyDaily
	}
}

// Validate checks the preferences against the enumerated options.
// Call Normalize first.
func (p *AlertPreferences) Validate() error {
	var errs ValidationErrors

	if len(p.Keywords) > maxKeywords {
		errs = append(errs, fmt.Sprintf("keywords: at most %d allowed", maxKeywords))
	}
	if len(p.ExcludeKeywords) > maxKeywords {
		errs = append(errs, fmt.Sprintf("excludeKeywords: at most %d allowed", maxKeywords))
	}
	for _, k := range append(append([]string{}, p.Keywords...), p.ExcludeKeywords...) {
		if len(k) > maxKeywordLength {
			errs = append(errs, fmt.Sprintf("keyword %q exceeds %d characters", k[:20]+"...", maxKeywordLength))
			break
		}
	}

	switch p.LocationScope.Type {
	case ScopeNational:
	case ScopeStates:
		if len(p.LocationScope.States) == 0 {
			errs = append(errs, "locationScope.states: required when type is states")
		}
	case ScopeCities:
		if len(p.LocationScope.Cities) == 0 {
			errs = append(errs, "locationScope.cities: required when type is cities")
		}
	default:
		errs = append(errs, fmt.Sprintf("locationScope.type: unknown value %q", p.LocationScope.Type))
	}

	if p.ValueRange.Min != nil && *p.ValueRange.Min < 0 {
		errs = append(errs, "valueRange.min: must not be negative")
	}
	if p.ValueRange.Min != nil && p.ValueRange.Max != nil && *p.ValueRange.Max < *p.ValueRange.Min {
		errs = append(errs, "valueRange.max: must be >= min")
	}

	switch p.Frequency {
	case FrequencyInstant, FrequencyDaily, FrequencyWeekly:
	default:
		errs = append(errs, fmt.Sprintf("frequency: unknown value %q", p.Frequency))
	}

	if p.QuietHours.Enabled {
		if !clockRegex.MatchString(p.QuietHours.Start) {
			errs = append(errs, "quietHours.start: must be HH:MM")
		}
		if !clockRegex.MatchString(p.QuietHours.End) {
			errs = append(errs, "quietHours.end: must be HH:MM")
		}
	}

	if p.MinMatchScore < 0 || p.MinMatchScore > 100 {
		errs = append(errs, "minMatchScore: must be between 0 and 100")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Validate checks the required onboarding profile fields.
func (p *Profile) Validate() error {
	var errs ValidationErrors
	p.FullName = strings.TrimSpace(p.FullName)
	p.CompanyName = strings.TrimSpace(p.CompanyName)
	p.Phone = strings.TrimSpace(p.Phone)

	if p.FullName == "" {
		errs = append(errs, "profile.fullName: required")
	} else if len(p.FullName) > 200 {
		errs = append(errs, "profile.fullName: too long")
	}
	if len(p.CompanyName) > 200 {
		errs = append(errs, "profile.companyName: too long")
	}
	if len(p.Phone) > 20 {
		errs = append(errs, "profile.phone: too long")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
