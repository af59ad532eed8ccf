package diffpatch

import (
	"errors"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ErrPatchFailed is returned when no safe patch could be produced, even
// after the reversed retry. Callers are expected to fall back to a coarser
// strategy and flag the affected entity for manual review.
var ErrPatchFailed = errors.New("diffpatch: patch failed")

// Reconcile computes the diff between new and current, and applies it as a
// patch to old. The effect is "replay onto the pre-change baseline whatever
// changed between post-change and now", which preserves independent later
// edits while reverting the target ones.
//
// Tokens are opaque; the engine has no knowledge of what they encode.
// A successful result never contains duplicates, never drops a token
// present in both old and current, and never introduces a token absent
// from both. If the forward attempt fails, one retry is made with new
// reversed in order, which handles pure order-reversal edits.
func Reconcile(old, new, current []string) ([]string, error) {
	if result, ok := reconcile(old, new, current); ok {
		return result, nil
	}

	reversed := make([]string, len(new))
	for i, token := range new {
		reversed[len(new)-1-i] = token
	}

	if result, ok := reconcile(old, reversed, current); ok {
		return result, nil
	}

	return nil, ErrPatchFailed
}

func reconcile(old, new, current []string) (result []string, ok bool) {
	// PatchApply mixes byte- and rune-based indexing and can slice out of
	// range on the multi-byte encoded text when the sequences diverge too
	// far. Treat that as a failed patch, not a crash.
	defer func() {
		if recover() != nil {
			result, ok = nil, false
		}
	}()

	enc := newTokenEncoder()

	oldText, ok := enc.encode(old)
	if !ok {
		return nil, false
	}
	newText, ok := enc.encode(new)
	if !ok {
		return nil, false
	}
	currentText, ok := enc.encode(current)
	if !ok {
		return nil, false
	}

	dmp := diffmatchpatch.New()
	dmp.MatchThreshold = 1
	dmp.PatchDeleteThreshold = 0

	diffs := dmp.DiffMain(newText, currentText, false)
	patches := dmp.PatchMake(diffs)

	resultText, applied := dmp.PatchApply(patches, oldText)
	for _, ok := range applied {
		if !ok {
			return nil, false
		}
	}

	result, ok = enc.decode(resultText)
	if !ok {
		return nil, false
	}

	// No duplicate tokens.
	seen := make(map[string]struct{}, len(result))
	for _, token := range result {
		if _, dup := seen[token]; dup {
			return nil, false
		}
		seen[token] = struct{}{}
	}

	known := make(map[string]int, len(old)+len(current))
	for _, token := range old {
		known[token] |= 1
	}
	for _, token := range current {
		known[token] |= 2
	}

	// No fabricated tokens: everything must come from old or current.
	for _, token := range result {
		if known[token] == 0 {
			return nil, false
		}
	}

	// No lost tokens: anything in both old and current must survive.
	for token, sources := range known {
		if sources != 3 {
			continue
		}
		if _, kept := seen[token]; !kept {
			return nil, false
		}
	}

	return result, true
}

// tokenEncoder maps opaque tokens onto single runes so the character-based
// diff operates on whole tokens, the same trick as line-mode diffing.
// Runes are allocated from the private use areas to stay clear of
// surrogates and real text.
type tokenEncoder struct {
	toRune   map[string]rune
	toToken  map[rune]string
	nextRune rune
}

func newTokenEncoder() *tokenEncoder {
	return &tokenEncoder{
		toRune:   make(map[string]rune),
		toToken:  make(map[rune]string),
		nextRune: 0xE000,
	}
}

func (e *tokenEncoder) encode(tokens []string) (string, bool) {
	runes := make([]rune, 0, len(tokens))
	for _, token := range tokens {
		r, ok := e.toRune[token]
		if !ok {
			r, ok = e.alloc()
			if !ok {
				return "", false
			}
			e.toRune[token] = r
			e.toToken[r] = token
		}
		runes = append(runes, r)
	}
	return string(runes), true
}

func (e *tokenEncoder) alloc() (rune, bool) {
	if e.nextRune > 0xFFFFD {
		return 0, false
	}
	r := e.nextRune
	e.nextRune++
	if e.nextRune == 0xF900 {
		// Basic private use area exhausted; continue in plane 15.
		e.nextRune = 0xF0000
	}
	return r, true
}

func (e *tokenEncoder) decode(text string) ([]string, bool) {
	var tokens []string
	for _, r := range text {
		token, ok := e.toToken[r]
		if !ok {
			return nil, false
		}
		tokens = append(tokens, token)
	}
	return tokens, true
}
