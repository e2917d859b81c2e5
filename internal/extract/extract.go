// Package extract finds the date/time expression in free-form reminder text.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmhodges/clock"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/olebedev/when/rules/ru"

	"github.com/and161185/remind-keeper/internal/errs"
	"github.com/and161185/remind-keeper/internal/model"
)

// Extractor wraps a when.Parser configured with English, Russian and numeric date rules.
type Extractor struct {
	parser *when.Parser
	loc    *time.Location
	clk    clock.Clock
}

// New builds an Extractor resolving relative expressions in loc.
func New(loc *time.Location, clk clock.Clock) *Extractor {
	if loc == nil {
		loc = time.UTC
	}
	if clk == nil {
		clk = clock.New()
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(ru.All...)
	w.Add(common.All...)
	w.Add(atHour(rules.Override))
	return &Extractor{parser: w, loc: loc, clk: clk}
}

// Extract splits text into tokens around the matched date span, which is replaced
// by model.Placeholder, and returns the matched time as the single date range.
func (e *Extractor) Extract(text string) (model.Extraction, error) {
	base := e.clk.Now().In(e.loc)
	r, err := e.parser.Parse(text, base)
	if err != nil {
		return model.Extraction{}, fmt.Errorf("%w: %v", errs.ErrExtraction, err)
	}
	if r == nil {
		return model.Extraction{}, fmt.Errorf("%w: no date or time found", errs.ErrExtraction)
	}

	start := r.Index
	end := r.Index + len(r.Text)
	if start < 0 || end > len(text) || start > end {
		return model.Extraction{}, fmt.Errorf("%w: match out of bounds", errs.ErrExtraction)
	}

	tokens := strings.Fields(text[:start])
	tokens = append(tokens, model.Placeholder)
	tokens = append(tokens, strings.Fields(text[end:])...)

	return model.Extraction{
		Tokens: tokens,
		Dates:  []model.DateRange{{From: r.Time, To: r.Time}},
	}, nil
}

// atHour matches a bare hour after "at" or "в" ("tomorrow at 9", "завтра в 9").
// More specific rules that start later in the text, such as "9:30" or "9 pm", still win.
func atHour(s rules.Strategy) rules.Rule {
	return &rules.F{
		RegExp: regexp.MustCompile(`(?i)(?:^|\s)(at|в)\s+(\d{1,2})(?:\W|$)`),
		Applier: func(m *rules.Match, c *rules.Context, _ *rules.Options, _ time.Time) (bool, error) {
			if c.Hour != nil && s != rules.Override {
				return false, nil
			}
			hour, err := strconv.Atoi(m.Captures[1])
			if err != nil || hour > 23 {
				return false, nil
			}
			zero := 0
			c.Hour = &hour
			c.Minute = &zero
			c.Second = &zero
			return true, nil
		},
	}
}
