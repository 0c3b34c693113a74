package humanoid

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
	"unicode"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
)

// -- keyboardNeighbors maps characters to their adjacent keys on a QWERTY layout --
var keyboardNeighbors = map[rune]string{
	'1': "2q`", '2': "13wq", '3': "24we", '4': "35er", '5': "46rt", '6': "57ty",
	'7': "68yu", '8': "79ui", '9': "80io", '0': "9-op",
	'q': "wa1s", 'w': "qase23", 'e': "wsdr34", 'r': "edft45", 't': "rfgy56",
	'y': "tghu67", 'u': "yhji78", 'i': "ujko89", 'o': "iklp90", 'p': "ol;0-",
	'a': "qwsz", 's': "awedxz", 'd': "serfcx", 'f': "drtgvc", 'g': "ftyhbv",
	'h': "gyujnb", 'j': "huikmn", 'k': "jiol,m", 'l': "kop;.",
	'z': "asx", 'x': "zsdc", 'c': "xdfv", 'v': "cfgb", 'b': "vghn", 'n': "bhjm", 'm': "njk,",
}

// -- commonNgrams contains common letter combinations typed with a faster rhythm --
var commonNgrams = map[string]bool{
	"th": true, "he": true, "in": true, "er": true, "an": true, "re": true,
	"es": true, "on": true, "st": true, "nt": true, "ch": true, "en": true,
	"the": true, "and": true, "ing": true, "ion": true, "tio": true,
	"sch": true, "ich": true, "ein": true, "und": true, "der": true,
}

// TypeDelays generates the inter-key delay preceding each character of text.
//
// The model: a base delay drawn from a bounded range, accelerated toward the
// middle of each word and decelerated at its boundaries (a U-shaped per-word
// curve), with an extra thinking pause after spaces and faster rhythm on
// common n-grams. With DistractionProbability, any single delay is stretched
// by the configured factor range, modeling momentary inattention. The
// distraction rate is a property of the generated sequence and can be
// verified empirically by sampling.
func TypeDelays(rng *rand.Rand, cfg Config, text string) []time.Duration {
	runes := []rune(text)
	delays := make([]time.Duration, len(runes))
	if len(runes) == 0 {
		return delays
	}

	// Per-rune word position, for the U-shaped curve.
	wordPos := make([]int, len(runes))
	wordLen := make([]int, len(runes))
	start := -1
	for i := 0; i <= len(runes); i++ {
		atEnd := i == len(runes)
		if !atEnd && !unicode.IsSpace(runes[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			for j := start; j < i; j++ {
				wordPos[j] = j - start
				wordLen[j] = i - start
			}
			start = -1
		}
	}

	for i, r := range runes {
		base := cfg.KeyPauseMean + rng.NormFloat64()*cfg.KeyPauseStdDev
		base = math.Max(cfg.KeyPauseMin, math.Min(cfg.KeyPauseMax, base))

		factor := 1.0
		if !unicode.IsSpace(r) && wordLen[i] > 1 {
			frac := float64(wordPos[i]) / float64(wordLen[i]-1)
			factor = 1.0 - cfg.UCurveDepth*math.Sin(math.Pi*frac)
		}
		factor *= ngramFactor(cfg, runes, i)

		delay := base * factor

		// Inter-word thinking pause lands on the first key after a space.
		if i > 0 && unicode.IsSpace(runes[i-1]) {
			pause := cfg.WordPauseMeanMs + rng.NormFloat64()*cfg.WordPauseStdDevMs
			if pause > 0 {
				delay += pause
			}
		}

		if rng.Float64() < cfg.DistractionProbability {
			stretch := cfg.DistractionMinFactor +
				rng.Float64()*(cfg.DistractionMaxFactor-cfg.DistractionMinFactor)
			delay *= stretch
		}

		delays[i] = time.Duration(delay * float64(time.Millisecond))
	}

	return delays
}

// ngramFactor speeds up keystrokes inside well-practiced letter sequences.
func ngramFactor(cfg Config, runes []rune, index int) float64 {
	if index >= 2 {
		trigraph := strings.ToLower(string(runes[index-2 : index+1]))
		if commonNgrams[trigraph] {
			return cfg.KeyPauseNgramFactor3
		}
	}
	if index >= 1 {
		digraph := strings.ToLower(string(runes[index-1 : index+1]))
		if commonNgrams[digraph] {
			return cfg.KeyPauseNgramFactor2
		}
	}
	return 1.0
}

// Type focuses the element with a human-like click, pauses to plan, and types
// the text with realistic delays, bursts and typos.
func (h *Humanoid) Type(ctx context.Context, selector string, text string, opts *InteractionOptions) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.updateFatigue(float64(len(text)) * 0.05)

	if err := h.moveToSelector(ctx, selector, opts); err != nil {
		return fmt.Errorf("humanoid: failed to focus selector '%s': %w", selector, err)
	}
	if err := h.pressAndRelease(ctx); err != nil {
		return err
	}

	// Cognitive planning pause before the first keystroke.
	if err := h.cognitivePause(ctx, 200, 80); err != nil {
		return err
	}

	return h.typeText(ctx, text)
}

// typeText plays a generated delay sequence, interleaving typos.
// Assumes the caller holds the lock.
func (h *Humanoid) typeText(ctx context.Context, text string) error {
	runes := []rune(text)
	delays := TypeDelays(h.rng, h.dynamicConfig, text)

	for i := 0; i < len(runes); i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		pause := time.Duration(float64(delays[i]) * (1.0 + h.fatigueLevel*h.dynamicConfig.KeyPauseFatigueFactor))
		h.recoverFatigue(pause)
		if err := h.executor.Sleep(ctx, pause); err != nil {
			return err
		}

		char := runes[i]
		if !unicode.IsSpace(char) && h.rng.Float64() < h.dynamicConfig.TypoRate {
			introduced, advanced, err := h.introduceTypo(ctx, h.dynamicConfig, runes, i)
			if err != nil {
				return fmt.Errorf("humanoid: error during typo simulation: %w", err)
			}
			if introduced {
				if advanced {
					i++
				}
				continue
			}
		}

		if err := h.sendString(ctx, string(char)); err != nil {
			return fmt.Errorf("humanoid: failed to send key %q: %w", char, err)
		}
	}
	return nil
}

// Shortcut executes a keyboard shortcut expression such as "ctrl+a".
func (h *Humanoid) Shortcut(ctx context.Context, keysExpression string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var mods schemas.KeyModifier
	var key string
	for _, part := range strings.Split(strings.ToLower(keysExpression), "+") {
		switch strings.TrimSpace(part) {
		case "ctrl", "control":
			mods |= schemas.ModCtrl
		case "alt":
			mods |= schemas.ModAlt
		case "shift":
			mods |= schemas.ModShift
		case "meta", "cmd":
			mods |= schemas.ModMeta
		case "":
		default:
			key = normalizeKeyName(part)
		}
	}
	if key == "" {
		return fmt.Errorf("humanoid: shortcut %q has no primary key", keysExpression)
	}

	if err := h.cognitivePause(ctx, 120, 40); err != nil {
		return err
	}
	return h.executor.DispatchStructuredKey(ctx, schemas.KeyEventData{Key: key, Modifiers: mods})
}

func normalizeKeyName(name string) string {
	switch name {
	case "enter", "return":
		return string(KeyEnter)
	case "tab":
		return string(KeyTab)
	case "escape", "esc":
		return string(KeyEscape)
	case "backspace":
		return string(KeyBackspace)
	default:
		return name
	}
}

// sendString dispatches keys and simulates the key dwell time afterwards.
// Assumes the caller holds the lock.
func (h *Humanoid) sendString(ctx context.Context, keys string) error {
	if err := h.executor.SendKeys(ctx, keys); err != nil {
		return err
	}
	return h.executor.Sleep(ctx, h.keyHoldDuration())
}

// keyHoldDuration calculates how long a key is held down.
// Assumes the caller holds the lock.
func (h *Humanoid) keyHoldDuration() time.Duration {
	delay := h.rng.NormFloat64()*h.dynamicConfig.KeyHoldStdDev + h.dynamicConfig.KeyHoldMean
	if delay < 20.0 {
		delay = 20.0
	}
	return time.Duration(delay) * time.Millisecond
}

// correctionPause is the hesitation around noticing and fixing a typo.
// Assumes the caller holds the lock.
func (h *Humanoid) correctionPause(ctx context.Context, meanScale, stdDevScale float64) error {
	mean := h.dynamicConfig.KeyPauseMean * meanScale
	stdDev := h.dynamicConfig.KeyPauseStdDev * stdDevScale
	delay := math.Max(h.dynamicConfig.KeyPauseMin, h.rng.NormFloat64()*stdDev+mean)
	duration := time.Duration(delay) * time.Millisecond
	h.recoverFatigue(duration)
	return h.executor.Sleep(ctx, duration)
}

// introduceTypo decides which kind of typo to simulate.
// Assumes the caller holds the lock.
func (h *Humanoid) introduceTypo(ctx context.Context, cfg Config, runes []rune, i int) (introduced bool, advanced bool, err error) {
	char := runes[i]
	p := h.rng.Float64()

	if p < cfg.TypoNeighborRate {
		return h.introduceNeighborTypo(ctx, char)
	}
	p -= cfg.TypoNeighborRate

	if p < cfg.TypoTransposeRate {
		var nextChar rune
		if i+1 < len(runes) {
			nextChar = runes[i+1]
		}
		return h.introduceTransposition(ctx, char, nextChar)
	}
	p -= cfg.TypoTransposeRate

	if p < cfg.TypoOmissionRate {
		return h.introduceOmission(ctx, char)
	}

	return h.introduceInsertion(ctx, char)
}

// -- Typo Implementations --

func (h *Humanoid) introduceNeighborTypo(ctx context.Context, char rune) (bool, bool, error) {
	lowerChar := unicode.ToLower(char)
	neighbors, ok := keyboardNeighbors[lowerChar]
	if !ok || len(neighbors) == 0 {
		return false, false, nil
	}

	cfg := h.dynamicConfig
	typoChar := rune(neighbors[h.rng.Intn(len(neighbors))])
	if unicode.IsUpper(char) && h.rng.Float64() < cfg.TypoShiftCorrectionProbability {
		typoChar = unicode.ToUpper(typoChar)
	}

	if err := h.sendString(ctx, string(typoChar)); err != nil {
		return true, false, err
	}
	if err := h.correctionPause(ctx, cfg.TypoCorrectionPauseMeanScale, cfg.TypoCorrectionPauseStdDevScale); err != nil {
		return true, false, err
	}
	if err := h.sendString(ctx, string(KeyBackspace)); err != nil {
		return true, false, err
	}
	if err := h.correctionPause(ctx, 1.2, 0.5); err != nil {
		return true, false, err
	}
	if err := h.sendString(ctx, string(char)); err != nil {
		return true, false, err
	}
	return true, false, nil
}

func (h *Humanoid) introduceTransposition(ctx context.Context, char, nextChar rune) (introduced, advanced bool, err error) {
	if nextChar == 0 || unicode.IsSpace(nextChar) || unicode.IsSpace(char) {
		return false, false, nil
	}
	if err := h.sendString(ctx, string(nextChar)); err != nil {
		return true, true, err
	}
	if err := h.correctionPause(ctx, 0.8, 0.3); err != nil {
		return true, true, err
	}
	if err := h.sendString(ctx, string(char)); err != nil {
		return true, true, err
	}

	cfg := h.dynamicConfig
	if h.rng.Float64() >= cfg.TypoCorrectionProbability {
		// Transposition goes unnoticed, both characters stand as typed.
		return true, true, nil
	}

	if err := h.correctionPause(ctx, cfg.TypoCorrectionPauseMeanScale, cfg.TypoCorrectionPauseStdDevScale); err != nil {
		return true, true, err
	}
	if err := h.sendString(ctx, string(KeyBackspace)); err != nil {
		return true, true, err
	}
	if err := h.correctionPause(ctx, 1.1, 0.4); err != nil {
		return true, true, err
	}
	if err := h.sendString(ctx, string(KeyBackspace)); err != nil {
		return true, true, err
	}
	if err := h.correctionPause(ctx, 1.2, 0.5); err != nil {
		return true, true, err
	}
	if err := h.sendString(ctx, string(char)); err != nil {
		return true, true, err
	}
	if err := h.correctionPause(ctx, 1.0, 0.4); err != nil {
		return true, true, err
	}
	if err := h.sendString(ctx, string(nextChar)); err != nil {
		return true, true, err
	}
	return true, true, nil
}

func (h *Humanoid) introduceOmission(ctx context.Context, char rune) (bool, bool, error) {
	if unicode.IsSpace(char) {
		return false, false, nil
	}

	cfg := h.dynamicConfig
	if h.rng.Float64() < cfg.TypoOmissionNoticeProbability {
		if err := h.correctionPause(ctx, cfg.TypoCorrectionPauseMeanScale, cfg.TypoCorrectionPauseStdDevScale); err != nil {
			return true, false, err
		}
		if err := h.sendString(ctx, string(char)); err != nil {
			return true, false, err
		}
		return true, false, nil
	}
	// Omission remains uncorrected.
	return true, false, nil
}

func (h *Humanoid) introduceInsertion(ctx context.Context, char rune) (bool, bool, error) {
	lowerChar := unicode.ToLower(char)
	neighbors, ok := keyboardNeighbors[lowerChar]
	if !ok || len(neighbors) == 0 {
		return false, false, nil
	}

	cfg := h.dynamicConfig
	insertionChar := rune(neighbors[h.rng.Intn(len(neighbors))])
	shouldNotice := h.rng.Float64() < cfg.TypoInsertionNoticeProbability

	if err := h.sendString(ctx, string(insertionChar)); err != nil {
		return true, false, err
	}
	if shouldNotice {
		if err := h.correctionPause(ctx, cfg.TypoCorrectionPauseMeanScale, cfg.TypoCorrectionPauseStdDevScale); err != nil {
			return true, false, err
		}
		if err := h.sendString(ctx, string(KeyBackspace)); err != nil {
			return true, false, err
		}
	}
	if err := h.correctionPause(ctx, 1.1, 0.4); err != nil {
		return true, false, err
	}
	if err := h.sendString(ctx, string(char)); err != nil {
		return true, false, err
	}
	return true, false, nil
}
