package snd

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// SoundAsset maps a logical sound name to its content-server locations.
// Assets are immutable once the engine is constructed.
type SoundAsset struct {
	Name     string
	Primary  string
	Fallback string
	Category ChannelName
}

// DefaultAssets is the stock casino sound set. Primaries are MP3 with WAV
// fallbacks for the handful of sounds that historically shipped in both
// encodings.
var DefaultAssets = []SoundAsset{
	{Name: "spinStart", Primary: "sounds/spin_start.mp3", Fallback: "sounds/fallback/spin_start.wav", Category: ChannelEffects},
	{Name: "reelStop", Primary: "sounds/reel_stop.mp3", Category: ChannelEffects},
	{Name: "winSmall", Primary: "sounds/win_small.mp3", Fallback: "sounds/fallback/win_small.wav", Category: ChannelEffects},
	{Name: "winMedium", Primary: "sounds/win_medium.mp3", Fallback: "sounds/fallback/win_medium.wav", Category: ChannelEffects},
	{Name: "winBig", Primary: "sounds/win_big.mp3", Fallback: "sounds/fallback/win_big.wav", Category: ChannelEffects},
	{Name: "winJackpot", Primary: "sounds/win_jackpot.mp3", Category: ChannelEffects},
	{Name: "wheelTick", Primary: "sounds/wheel_tick.wav", Category: ChannelUI},
	{Name: "wheelStop", Primary: "sounds/wheel_stop.mp3", Category: ChannelEffects},
	{Name: "diceRoll", Primary: "sounds/dice_roll.mp3", Category: ChannelEffects},
	{Name: "diceLand", Primary: "sounds/dice_land.mp3", Category: ChannelEffects},
	{Name: "cardFlip", Primary: "sounds/card_flip.wav", Category: ChannelUI},
	{Name: "scratchReveal", Primary: "sounds/scratch_reveal.mp3", Category: ChannelEffects},
	{Name: "coinDrop", Primary: "sounds/coin_drop.mp3", Fallback: "sounds/fallback/coin_drop.wav", Category: ChannelEffects},
	{Name: "buttonClick", Primary: "sounds/button_click.wav", Category: ChannelUI},
	{Name: "fanfare", Primary: "sounds/fanfare.mp3", Category: ChannelEffects},
	{Name: "applause", Primary: "sounds/applause.mp3", Category: ChannelEffects},
	{Name: "ambientCasino", Primary: "sounds/ambient_casino.mp3", Category: ChannelAmbient},
	{Name: "musicLobby", Primary: "sounds/music_lobby.mp3", Category: ChannelMusic},
	{Name: "voiceWinner", Primary: "sounds/voice_winner.mp3", Category: ChannelVoice},
	{Name: "voiceJackpot", Primary: "sounds/voice_jackpot.mp3", Category: ChannelVoice},
}

// criticalSounds are preloaded best-effort during initialization.
var criticalSounds = []string{"buttonClick", "spinStart", "wheelTick", "winSmall"}

// dynamicTier maps a magnitude floor to a sound-name suffix. Tiers are
// checked highest floor first.
type dynamicTier struct {
	min    float64
	suffix string
}

var dynamicTiers = map[string][]dynamicTier{
	"win": {
		{min: 25, suffix: "Jackpot"},
		{min: 10, suffix: "Big"},
		{min: 5, suffix: "Medium"},
		{min: 0, suffix: "Small"},
	},
}

// dynamicSoundName picks the tier name for a base sound and magnitude, e.g.
// ("win", 7) -> "winMedium".
func dynamicSoundName(base string, magnitude float64) (string, bool) {
	tiers, ok := dynamicTiers[base]
	if !ok {
		return "", false
	}
	for _, t := range tiers {
		if magnitude >= t.min {
			return base + t.suffix, true
		}
	}
	return base + tiers[len(tiers)-1].suffix, true
}

// dynamicVolume derives playback volume from a magnitude.
func dynamicVolume(magnitude float64) float64 {
	v := 0.5 + magnitude/200
	if v > 1 {
		v = 1
	}
	if v < 0 {
		v = 0
	}
	return v
}

// resolver maps logical names to locations, probing primaries at most once
// and remembering both successes and known-missing locations so repeat
// resolutions are deterministic and probe-free.
type resolver struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter

	mu       sync.Mutex
	assets   map[string]SoundAsset
	resolved map[string]string
	missing  map[string]struct{}

	flight singleflight.Group
}

func newResolver(baseURL string, assets []SoundAsset, knownMissing []string, client *http.Client) *resolver {
	r := &resolver{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
		limiter:  rate.NewLimiter(rate.Every(200*time.Millisecond), 4),
		assets:   make(map[string]SoundAsset, len(assets)),
		resolved: make(map[string]string),
		missing:  make(map[string]struct{}),
	}
	if r.client == nil {
		r.client = http.DefaultClient
	}
	for _, a := range assets {
		r.assets[a.Name] = a
	}
	for _, loc := range knownMissing {
		r.missing[loc] = struct{}{}
	}
	return r
}

func (r *resolver) location(path string) string {
	if path == "" {
		return ""
	}
	if strings.Contains(path, "://") {
		return path
	}
	return r.baseURL + "/" + strings.TrimLeft(path, "/")
}

func (r *resolver) namesByCategory(ch ChannelName) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for _, a := range r.assets {
		if a.Category == ch {
			names = append(names, a.Name)
		}
	}
	return names
}

func (r *resolver) asset(name string) (SoundAsset, bool) {
	r.mu.Lock()
	a, ok := r.assets[name]
	r.mu.Unlock()
	return a, ok
}

// resolve returns the location to load for a logical name. Concurrent
// first-time resolutions of the same name share one probe.
func (r *resolver) resolve(ctx context.Context, name string) (string, error) {
	r.mu.Lock()
	if loc, ok := r.resolved[name]; ok {
		r.mu.Unlock()
		return loc, nil
	}
	a, ok := r.assets[name]
	r.mu.Unlock()
	if !ok {
		return "", ErrAssetUnavailable
	}

	v, err, _ := r.flight.Do(name, func() (interface{}, error) {
		return r.resolveSlow(ctx, a)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *resolver) resolveSlow(ctx context.Context, a SoundAsset) (string, error) {
	primary := r.location(a.Primary)
	fallback := r.location(a.Fallback)

	r.mu.Lock()
	_, primaryMissing := r.missing[primary]
	r.mu.Unlock()

	if primaryMissing {
		if fallback != "" {
			r.learn(a.Name, fallback)
			return fallback, nil
		}
		// No fallback: hand back the primary so the caller's own load
		// produces the authoritative error.
		return primary, nil
	}

	if r.probe(ctx, primary) {
		r.learn(a.Name, primary)
		return primary, nil
	}
	r.markMissing(primary)
	if fallback != "" {
		r.learn(a.Name, fallback)
		return fallback, nil
	}
	return primary, nil
}

func (r *resolver) learn(name, loc string) {
	r.mu.Lock()
	r.resolved[name] = loc
	r.mu.Unlock()
}

// forget drops a learned resolution, e.g. after the learned location failed
// to load so the next resolve can fall back.
func (r *resolver) forget(name string) {
	r.mu.Lock()
	delete(r.resolved, name)
	r.mu.Unlock()
}

func (r *resolver) markMissing(loc string) {
	r.mu.Lock()
	r.missing[loc] = struct{}{}
	r.mu.Unlock()
}

func (r *resolver) isMissing(loc string) bool {
	r.mu.Lock()
	_, ok := r.missing[loc]
	r.mu.Unlock()
	return ok
}

// probe issues a metadata-only existence check.
func (r *resolver) probe(ctx context.Context, url string) bool {
	if err := r.limiter.Wait(ctx); err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		logDebug("probe %v: %v", url, err)
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
