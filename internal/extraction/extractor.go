// Package extraction pulls booking field values out of customer messages.
package extraction

import (
	"context"
	"strings"

	"github.com/shliew97/frappe-whatsapp/internal/booking"
	"github.com/shliew97/frappe-whatsapp/internal/conversation"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

// Request is everything an extractor may look at.
type Request struct {
	History  []conversation.ChatMessage
	Message  string
	Existing booking.Partial
}

// Extractor returns the field values found in a request. Absent fields are
// left out of the result.
type Extractor interface {
	Extract(ctx context.Context, req Request) (booking.Partial, error)
}

// CallObserver is notified about calls to the model extractor.
type CallObserver interface {
	ObserveExternalCall(capability, outcome string)
}

// ChainExtractor prefers a model extractor and lets the deterministic parser
// fill whatever the model left empty. Model failures degrade to the parser.
type ChainExtractor struct {
	primary  Extractor
	parser   *RegexExtractor
	logger   *logging.Logger
	observer CallObserver
}

// ChainOption customizes a ChainExtractor.
type ChainOption func(*ChainExtractor)

// WithCallObserver reports model outcomes, e.g. to metrics.
func WithCallObserver(obs CallObserver) ChainOption {
	return func(c *ChainExtractor) { c.observer = obs }
}

// NewChainExtractor wires the chain; primary may be nil.
func NewChainExtractor(primary Extractor, parser *RegexExtractor, logger *logging.Logger, opts ...ChainOption) *ChainExtractor {
	if parser == nil {
		panic("extraction: regex extractor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &ChainExtractor{primary: primary, parser: parser, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Extract never fails.
func (c *ChainExtractor) Extract(ctx context.Context, req Request) (booking.Partial, error) {
	parsed := c.parser.Parse(req.Message)
	if c.primary == nil {
		return parsed, nil
	}

	fromModel, err := c.primary.Extract(ctx, req)
	if err != nil {
		c.logger.Warn("field extractor unavailable, using parser", "error", err)
		c.observe("fallback")
		return parsed, nil
	}
	c.observe("ok")

	out := booking.Partial{}
	for f, v := range fromModel {
		if supplied(v) {
			out[f] = v
		}
	}
	for f, v := range parsed {
		if _, ok := out[f]; !ok && supplied(v) {
			out[f] = v
		}
	}
	return out, nil
}

func supplied(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !strings.EqualFold(v, "null") && !strings.EqualFold(v, "none")
}

func (c *ChainExtractor) observe(outcome string) {
	if c.observer != nil {
		c.observer.ObserveExternalCall("extract", outcome)
	}
}
