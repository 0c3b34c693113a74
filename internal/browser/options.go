// internal/browser/options.go
package browser

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/doorknock-cli/internal/browser/stealth"
	"github.com/xkilldash9x/doorknock-cli/internal/config"
)

// allocatorFlags computes the Chrome switch set for a run. The set is built
// explicitly instead of starting from chromedp's defaults: those include
// --enable-automation, which the persona layer would then have to undo.
func allocatorFlags(cfg config.BrowserConfig, persona stealth.Persona, rng *rand.Rand) map[string]interface{} {
	w, h := windowSize(cfg, rng)
	flags := map[string]interface{}{
		"no-first-run":             true,
		"no-default-browser-check": true,
		"disable-gpu":              true,
		"disable-dev-shm-usage":    true,
		"disable-infobars":         true,
		"disable-blink-features":   "AutomationControlled",
		"window-size":              fmt.Sprintf("%d,%d", w, h),
	}
	if persona.Locale != "" {
		flags["lang"] = persona.Locale
	}
	if cfg.Headless {
		flags["headless"] = "new"
	}

	// Operator args win over the built-in set.
	for _, arg := range cfg.Args {
		key, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if key == "" {
			continue
		}
		if hasValue {
			flags[key] = value
		} else {
			flags[key] = true
		}
	}
	return flags
}

// AllocatorOptions renders the flag set as exec allocator options in a stable
// order.
func AllocatorOptions(cfg config.BrowserConfig, persona stealth.Persona, rng *rand.Rand) []chromedp.ExecAllocatorOption {
	flags := allocatorFlags(cfg, persona, rng)

	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)

	opts := make([]chromedp.ExecAllocatorOption, 0, len(names))
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}
	return opts
}

// windowSize draws the outer window dimensions from the configured bounds so
// runs do not share one fixed, fingerprintable geometry.
func windowSize(cfg config.BrowserConfig, rng *rand.Rand) (int, int) {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	w := drawBetween(rng, cfg.WindowMinWidth, cfg.WindowMaxWidth, 1366, 1920)
	h := drawBetween(rng, cfg.WindowMinHeight, cfg.WindowMaxHeight, 768, 1080)
	return w, h
}

func drawBetween(rng *rand.Rand, min, max, defaultMin, defaultMax int) int {
	if min <= 0 {
		min = defaultMin
	}
	if max <= 0 {
		max = defaultMax
	}
	if max < min {
		max = min
	}
	return min + rng.Intn(max-min+1)
}
