// Package sanitize strips markup from user-supplied message text.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Policy removes every HTML element, keeping only the escaped text
type Policy struct {
	p *bluemonday.Policy
}

func New() *Policy {
	return &Policy{p: bluemonday.StrictPolicy()}
}

func (s *Policy) Sanitize(text string) string {
	return strings.TrimSpace(s.p.Sanitize(text))
}
