package fishing

import (
	"context"

	"github.com/xkilldash9x/angler/internal/config"
	"github.com/xkilldash9x/angler/internal/humanoid"
)

// Preference keys in the persistent store.
const (
	KeyJitter            = "jitter"
	KeyActionKey         = "action_key"
	KeyCollectKey        = "collect_key"
	KeySoundNotification = "sound_notification"
)

// Preferences are the user settings a session runs with.
type Preferences struct {
	ActionKey  humanoid.Key
	CollectKey humanoid.Key
	Sound      bool
	Reaction   humanoid.Profile
}

// PreferenceSource reads typed values with fallbacks. *kvstore.Store implements it.
type PreferenceSource interface {
	Bool(ctx context.Context, key string, def bool) bool
	String(ctx context.Context, key string, def string) string
}

// DefaultPreferences derives preferences from static configuration alone.
func DefaultPreferences(cfg config.Interface) Preferences {
	r := cfg.Reaction()
	return Preferences{
		ActionKey:  humanoid.Key(cfg.Fishing().ActionKey),
		CollectKey: humanoid.Key(cfg.Fishing().CollectKey),
		Sound:      cfg.Fishing().SoundNotification,
		Reaction: humanoid.Profile{
			Jitter:       r.Jitter,
			LowerBoundMs: r.LowerBoundMs,
			UpperBoundMs: r.UpperBoundMs,
		},
	}
}

// LoadPreferences reads the session preferences from the persistent store, falling
// back to cfg for anything the user never set.
func LoadPreferences(ctx context.Context, src PreferenceSource, cfg config.Interface) Preferences {
	p := DefaultPreferences(cfg)
	if src == nil {
		return p
	}
	p.Reaction.Jitter = src.Bool(ctx, KeyJitter, p.Reaction.Jitter)
	p.ActionKey = humanoid.Key(src.String(ctx, KeyActionKey, string(p.ActionKey)))
	p.CollectKey = humanoid.Key(src.String(ctx, KeyCollectKey, string(p.CollectKey)))
	p.Sound = src.Bool(ctx, KeySoundNotification, p.Sound)
	return p
}
