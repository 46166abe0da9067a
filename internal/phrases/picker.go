package phrases

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Picker chooses the notification text for a reminder. The result always
// contains the label.
type Picker interface {
	Pick(ctx context.Context, label string) string
}

// Fill substitutes label into a phrase template.
func Fill(template, label string) string {
	return strings.ReplaceAll(template, LabelPlaceholder, label)
}

// RandomPicker picks uniformly from a fixed template set.
type RandomPicker struct {
	mu        sync.Mutex
	rng       *rand.Rand
	templates []string
}

// NewRandomPicker uses rng as the source of randomness; nil seeds one from
// the runtime.
func NewRandomPicker(templates []string, rng *rand.Rand) *RandomPicker {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	usable := make([]string, 0, len(templates))
	for _, t := range templates {
		if strings.Contains(t, LabelPlaceholder) {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		usable = append(usable, defaultPhrases...)
	}
	return &RandomPicker{rng: rng, templates: usable}
}

// Pick returns one filled template.
func (p *RandomPicker) Pick(_ context.Context, label string) string {
	p.mu.Lock()
	i := p.rng.IntN(len(p.templates))
	p.mu.Unlock()
	return Fill(p.templates[i], label)
}

// Composer writes a fresh reminder line for a label.
type Composer interface {
	ComposeReminder(ctx context.Context, label string) (string, error)
}

// AIPicker asks a language model for a phrase and falls back to another
// picker when the call fails or the answer does not mention the label.
type AIPicker struct {
	composer Composer
	fallback Picker
	logger   zerolog.Logger
}

// NewAIPicker wraps composer with fallback.
func NewAIPicker(composer Composer, fallback Picker, logger zerolog.Logger) *AIPicker {
	return &AIPicker{composer: composer, fallback: fallback, logger: logger}
}

// Pick implements Picker.
func (p *AIPicker) Pick(ctx context.Context, label string) string {
	text, err := p.composer.ComposeReminder(ctx, label)
	if err != nil {
		p.logger.Debug().Err(err).Msg("compose reminder phrase failed, using fallback")
		return p.fallback.Pick(ctx, label)
	}
	text = strings.TrimSpace(text)
	if text == "" || !strings.Contains(strings.ToLower(text), strings.ToLower(label)) {
		return p.fallback.Pick(ctx, label)
	}
	return text
}
