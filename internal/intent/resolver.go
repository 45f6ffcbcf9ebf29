package intent

import (
	"context"

	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

// Source says which classifier produced a Result.
type Source string

const (
	SourceModel    Source = "model"
	SourceKeywords Source = "keywords"
)

// Result is a classification that always carries an Intent. Err records why
// the model was bypassed, if it was.
type Result struct {
	Intent Intent
	Source Source
	Err    error
}

// Fallback reports whether the keyword classifier had to stand in for the model.
func (r Result) Fallback() bool {
	return r.Err != nil
}

// Resolver runs the model classifier and falls back to keywords on any failure.
type Resolver struct {
	primary Classifier
	logger  *logging.Logger
}

// NewResolver builds a resolver; a nil primary means keywords only.
func NewResolver(primary Classifier, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{primary: primary, logger: logger}
}

// Resolve never fails.
func (r *Resolver) Resolve(ctx context.Context, text string, c Context) Result {
	if r.primary != nil {
		in, err := r.primary.Classify(ctx, text, c)
		if err == nil {
			return Result{Intent: in, Source: SourceModel}
		}
		r.logger.Warn("intent classifier unavailable, using keywords", "error", err)
		return Result{Intent: ClassifyKeywords(text), Source: SourceKeywords, Err: err}
	}
	return Result{Intent: ClassifyKeywords(text), Source: SourceKeywords}
}
