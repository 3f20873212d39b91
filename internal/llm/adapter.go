package llm

import "context"

// TokenHandler receives streamed reply fragments. It is invoked once per
// delta with done=false, then exactly once with an empty delta and done=true
// when the reply is complete.
type TokenHandler func(delta string, done bool) error

// Adapter streams a reply for a linearized prompt.
type Adapter interface {
	StreamReply(ctx context.Context, prompt string, onToken TokenHandler) (string, error)
}
