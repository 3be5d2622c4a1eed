// Package tags extracts inline annotation tags from input text and reattaches
// them to the words that followed them.
package tags

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lexiqai/tts-gateway/internal/speech"
)

// Placeholder replaces every tag in the text handed to the sentence splitter.
const Placeholder = "{{tag}}"

// placeholderName is what a literal Placeholder in the input is reduced to.
const placeholderName = "tag"

// pattern matches either <<...>> or [[...]] without nesting.
var pattern = regexp.MustCompile(`(<<[^<>]+>>)|(\[\[[^\[\]]+\]\])`)

// Extract returns the tags found in text in left-to-right order and the text
// with each tag replaced by Placeholder. Placeholder text already present in
// the input loses its braces first, so every placeholder in the result stands
// for exactly one returned tag.
func Extract(text string) ([]string, string) {
	// Repeat: "{{{{tag}}}}" collapses to a fresh "{{tag}}" after one pass.
	for strings.Contains(text, Placeholder) {
		text = strings.ReplaceAll(text, Placeholder, placeholderName)
	}

	var found []string
	replaced := pattern.ReplaceAllStringFunc(text, func(tag string) string {
		found = append(found, tag)
		return Placeholder
	})
	return found, replaced
}

// Queue is a FIFO of tags scoped to one input text. It is a value: Pop
// returns the updated queue rather than mutating the receiver.
type Queue struct {
	items []string
}

// NewQueue returns a queue holding tags in order.
func NewQueue(tags []string) Queue {
	return Queue{items: append([]string(nil), tags...)}
}

// Len returns the number of tags still queued.
func (q Queue) Len() int { return len(q.items) }

// Pop dequeues n tags.
func (q Queue) Pop(n int) ([]string, Queue, error) {
	if n < 0 {
		return nil, q, fmt.Errorf("%w: negative tag count %d", speech.ErrProtocolDesync, n)
	}
	if n > len(q.items) {
		return nil, q, fmt.Errorf("%w: need %d tags, %d queued", speech.ErrProtocolDesync, n, len(q.items))
	}
	if n == 0 {
		return nil, q, nil
	}
	popped := append([]string(nil), q.items[:n]...)
	return popped, Queue{items: q.items[n:]}, nil
}

// Reinsert builds the timing record for a word slot, dequeuing the tags that
// preceded it. startMS is the projected start time of the word.
func Reinsert(word speech.Word, startMS int, q Queue) (speech.WordTiming, Queue, error) {
	popped, rest, err := q.Pop(word.TagCount)
	if err != nil {
		return speech.WordTiming{}, q, fmt.Errorf("reinsert %q: %w", word.Text, err)
	}
	return speech.WordTiming{
		Word:    word.Text,
		StartMS: startMS,
		Tags:    popped,
	}, rest, nil
}
