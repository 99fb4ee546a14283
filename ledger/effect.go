package ledger

import (
	"fmt"
	"time"
)

// EffectKind tags the Effect variant.
type EffectKind string

const (
	EffectGrantPremium       EffectKind = "grant_premium"
	EffectGrantVerification  EffectKind = "grant_verification"
	EffectEnablePremiumEmoji EffectKind = "enable_premium_emoji"
	EffectGrantSuperLikes    EffectKind = "grant_super_likes"
	EffectSetCustomTheme     EffectKind = "set_custom_theme"
	EffectGrantBoost         EffectKind = "grant_boost"
)

// Effect is what a catalog item does to an Account once paid for.
// Only the field matching Kind is meaningful.
type Effect struct {
	Kind     EffectKind        `json:"kind"`
	Color    VerificationColor `json:"color,omitempty"`
	Count    int               `json:"count,omitempty"`
	Theme    Theme             `json:"theme,omitempty"`
	Duration time.Duration     `json:"duration,omitempty"`
}

func GrantPremium() Effect       { return Effect{Kind: EffectGrantPremium} }
func EnablePremiumEmoji() Effect { return Effect{Kind: EffectEnablePremiumEmoji} }

func GrantVerification(c VerificationColor) Effect {
	return Effect{Kind: EffectGrantVerification, Color: c}
}

func GrantSuperLikes(n int) Effect {
	return Effect{Kind: EffectGrantSuperLikes, Count: n}
}

func SetCustomTheme(t Theme) Effect {
	return Effect{Kind: EffectSetCustomTheme, Theme: t}
}

func GrantBoost(d time.Duration) Effect {
	return Effect{Kind: EffectGrantBoost, Duration: d}
}

// Validate checks the payload of the variant named by Kind.
func (e Effect) Validate() error {
	switch e.Kind {
	case EffectGrantPremium, EffectEnablePremiumEmoji:
		return nil
	case EffectGrantVerification:
		if e.Color != VerificationRed && e.Color != VerificationBlue {
			return fmt.Errorf("%w: verification color %q", ErrInvalidEffect, e.Color)
		}
	case EffectGrantSuperLikes:
		if e.Count <= 0 {
			return fmt.Errorf("%w: super-like count %d", ErrInvalidEffect, e.Count)
		}
	case EffectSetCustomTheme:
		if !e.Theme.Valid() || e.Theme == ThemeDefault {
			return fmt.Errorf("%w: theme %q", ErrInvalidEffect, e.Theme)
		}
	case EffectGrantBoost:
		if e.Duration <= 0 {
			return fmt.Errorf("%w: boost duration %s", ErrInvalidEffect, e.Duration)
		}
	default:
		return fmt.Errorf("%w: kind %q", ErrInvalidEffect, e.Kind)
	}
	return nil
}

func (e Effect) String() string {
	switch e.Kind {
	case EffectGrantVerification:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Color)
	case EffectGrantSuperLikes:
		return fmt.Sprintf("%s(%d)", e.Kind, e.Count)
	case EffectSetCustomTheme:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Theme)
	case EffectGrantBoost:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Duration)
	}
	return string(e.Kind)
}

// EntitlementDelta lists the Account fields a grant changed. Nil means
// unchanged.
type EntitlementDelta struct {
	IsPremium           *bool              `json:"is_premium,omitempty"`
	IsVerified          *bool              `json:"is_verified,omitempty"`
	VerificationColor   *VerificationColor `json:"verification_color,omitempty"`
	CustomTheme         *Theme             `json:"custom_theme,omitempty"`
	PremiumEmojiEnabled *bool              `json:"premium_emoji_enabled,omitempty"`
	SuperLikesCount     *int               `json:"super_likes_count,omitempty"`
	BoostActiveUntil    *time.Time         `json:"boost_active_until,omitempty"`
}

// Empty reports whether the grant was a no-op.
func (d EntitlementDelta) Empty() bool {
	return d.IsPremium == nil && d.IsVerified == nil && d.VerificationColor == nil &&
		d.CustomTheme == nil && d.PremiumEmojiEnabled == nil &&
		d.SuperLikesCount == nil && d.BoostActiveUntil == nil
}

// merge folds a later delta over an earlier one.
func (d *EntitlementDelta) merge(o EntitlementDelta) {
	if o.IsPremium != nil {
		d.IsPremium = o.IsPremium
	}
	if o.IsVerified != nil {
		d.IsVerified = o.IsVerified
	}
	if o.VerificationColor != nil {
		d.VerificationColor = o.VerificationColor
	}
	if o.CustomTheme != nil {
		d.CustomTheme = o.CustomTheme
	}
	if o.PremiumEmojiEnabled != nil {
		d.PremiumEmojiEnabled = o.PremiumEmojiEnabled
	}
	if o.SuperLikesCount != nil {
		d.SuperLikesCount = o.SuperLikesCount
	}
	if o.BoostActiveUntil != nil {
		d.BoostActiveUntil = o.BoostActiveUntil
	}
}

// apply is the single handler for every Effect variant. It mutates a in
// place and returns what changed. Idempotent grants return an empty delta
// when the Account already holds the entitlement.
func (e Effect) apply(a *Account, now time.Time) (EntitlementDelta, error) {
	if err := e.Validate(); err != nil {
		return EntitlementDelta{}, err
	}

	var d EntitlementDelta
	switch e.Kind {
	case EffectGrantPremium:
		if !a.IsPremium {
			a.IsPremium = true
			d.IsPremium = ptr(true)
		}
		if !a.IsVerified {
			a.IsVerified = true
			d.IsVerified = ptr(true)
		}
		if a.VerificationColor != VerificationBlue {
			a.VerificationColor = VerificationBlue
			d.VerificationColor = ptr(VerificationBlue)
		}

	case EffectGrantVerification:
		// Blue is never downgraded; an existing badge is never recolored.
		if a.IsVerified {
			return d, nil
		}
		a.IsVerified = true
		a.VerificationColor = e.Color
		d.IsVerified = ptr(true)
		d.VerificationColor = ptr(e.Color)

	case EffectEnablePremiumEmoji:
		if !a.PremiumEmojiEnabled {
			a.PremiumEmojiEnabled = true
			d.PremiumEmojiEnabled = ptr(true)
		}

	case EffectGrantSuperLikes:
		a.SuperLikesCount += e.Count
		d.SuperLikesCount = ptr(a.SuperLikesCount)

	case EffectSetCustomTheme:
		if a.CustomTheme != e.Theme {
			a.CustomTheme = e.Theme
			d.CustomTheme = ptr(e.Theme)
		}

	case EffectGrantBoost:
		from := now
		if a.BoostActiveUntil != nil && a.BoostActiveUntil.After(now) {
			from = *a.BoostActiveUntil
		}
		until := from.Add(e.Duration)
		a.BoostActiveUntil = &until
		d.BoostActiveUntil = ptr(until)

	default:
		// Unreachable after Validate; kept so a new kind cannot slip through.
		return d, fmt.Errorf("%w: kind %q", ErrInvalidEffect, e.Kind)
	}
	return d, nil
}

func ptr[T any](v T) *T { return &v }
