// Package tokens counts prompt and completion tokens for usage estimates,
// token-weighted rate limiting and dry-run cost ceilings.
package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE used for OpenAI-family models and as an
// approximation for other hosted chat models.
const DefaultEncoding = "cl100k_base"

// chatFraming is the per-message cost of the chat wire format (role and
// separators) on BPE-counted models.
const chatFraming = 4

// Counter counts the tokens of a text.
type Counter interface {
	Count(text string) int
}

// framed is implemented by counters whose chat format adds tokens around
// every message.
type framed interface {
	MessageOverhead() int
}

// BPE counts with a tiktoken encoding.
type BPE struct {
	enc *tiktoken.Tiktoken
}

// NewBPE loads the named encoding. The table may be fetched over the network
// on first use.
func NewBPE(encoding string) (*BPE, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &BPE{enc: enc}, nil
}

func (b *BPE) Count(text string) int {
	return len(b.enc.Encode(text, nil, nil))
}

func (b *BPE) MessageOverhead() int { return chatFraming }

// Heuristic assumes about four characters per token. It serves models with
// no known BPE and stands in when a BPE cannot be loaded.
type Heuristic struct{}

func (Heuristic) Count(text string) int {
	if text == "" {
		return 0
	}
	return max(1, len(text)/4)
}

// lazyBPE loads its table on first use and degrades to Heuristic when the
// table is unavailable.
type lazyBPE struct {
	name string
	once sync.Once
	c    Counter
}

func (l *lazyBPE) get() Counter {
	l.once.Do(func() {
		if bpe, err := NewBPE(l.name); err == nil {
			l.c = bpe
		} else {
			l.c = Heuristic{}
		}
	})
	return l.c
}

func (l *lazyBPE) Count(text string) int { return l.get().Count(text) }

func (l *lazyBPE) MessageOverhead() int {
	if f, ok := l.get().(framed); ok {
		return f.MessageOverhead()
	}
	return 0
}

// Registry maps model ids to counters. Lookups match the exact id first,
// then the id without its "vendor/" prefix, then registered vendors.
type Registry struct {
	mu       sync.RWMutex
	models   map[string]Counter
	vendors  map[string]Counter
	fallback Counter
}

// NewRegistry returns a registry that counts every model heuristically.
func NewRegistry() *Registry {
	return &Registry{
		models:   make(map[string]Counter),
		vendors:  make(map[string]Counter),
		fallback: Heuristic{},
	}
}

// Register sets the counter for one model id.
func (r *Registry) Register(model string, c Counter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[model] = c
}

// RegisterVendor sets the counter for every "vendor/..." model id.
func (r *Registry) RegisterVendor(vendor string, c Counter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vendors[vendor] = c
}

// For returns the counter used for model.
func (r *Registry) For(model string) Counter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.models[model]; ok {
		return c
	}
	if vendor, name, ok := strings.Cut(model, "/"); ok {
		if c, ok := r.models[name]; ok {
			return c
		}
		if c, ok := r.vendors[vendor]; ok {
			return c
		}
	}
	return r.fallback
}

// Count counts text for model.
func (r *Registry) Count(model, text string) int {
	return r.For(model).Count(text)
}

// CountPrompt counts the messages of one chat request, including the
// framing the chat format adds per message.
func (r *Registry) CountPrompt(model string, messages []string) int {
	c := r.For(model)
	overhead := 0
	if f, ok := c.(framed); ok {
		overhead = f.MessageOverhead()
	}
	total := 0
	for _, m := range messages {
		total += c.Count(m) + overhead
	}
	return total
}

// GetDefaultRegistry returns a registry with the BPE registered for OpenAI
// models and, as an approximation, Anthropic models. Tables load lazily.
func GetDefaultRegistry() *Registry {
	r := NewRegistry()
	bpe := &lazyBPE{name: DefaultEncoding}

	for _, model := range []string{
		"gpt-4", "gpt-4-turbo", "gpt-4o", "gpt-4o-mini",
		"gpt-4.1", "gpt-4.1-mini", "gpt-3.5-turbo",
	} {
		r.Register(model, bpe)
	}
	r.RegisterVendor("openai", bpe)
	r.RegisterVendor("anthropic", bpe)
	return r
}
