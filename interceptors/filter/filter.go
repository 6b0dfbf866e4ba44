// Package filter vetoes or rewrites frames matching regular expressions.
//
//	f := filter.New().
//	    Veto(`^@ADMIN\b`).
//	    Redact(`\b\d{16}\b`, "****")
//	server.Intercept(halyard.Incoming, filter.Interceptor[*Room](f))
package filter

import (
	"context"

	"github.com/RobertWHurst/halyard"
	"github.com/grafana/regexp"
)

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

// Filter is a list of veto patterns and redactions. Build it before
// installing it; it is read-only afterwards.
type Filter struct {
	vetoes     []*regexp.Regexp
	redactions []redaction
}

// New creates an empty filter, which passes every frame unchanged.
func New() *Filter {
	return &Filter{}
}

// Veto drops any frame matching pattern. It panics if pattern does not
// compile.
func (f *Filter) Veto(pattern string) *Filter {
	f.vetoes = append(f.vetoes, regexp.MustCompile(pattern))
	return f
}

// Redact replaces every match of pattern with replacement. The replacement
// may refer to submatches as in regexp.ReplaceAllString. It panics if
// pattern does not compile.
func (f *Filter) Redact(pattern string, replacement string) *Filter {
	f.redactions = append(f.redactions, redaction{
		pattern:     regexp.MustCompile(pattern),
		replacement: replacement,
	})
	return f
}

// Apply runs the vetoes against text, then the redactions in the order they
// were added. It returns false if the frame is vetoed.
func (f *Filter) Apply(text string) (string, bool) {
	for _, veto := range f.vetoes {
		if veto.MatchString(text) {
			return "", false
		}
	}
	for _, r := range f.redactions {
		text = r.pattern.ReplaceAllString(text, r.replacement)
	}
	return text, true
}

// Interceptor returns an interceptor that applies f.
func Interceptor[S any](f *Filter) halyard.InterceptorFunc[S] {
	return func(ctx context.Context, text string, connectionID string, state S) (string, bool) {
		return f.Apply(text)
	}
}
