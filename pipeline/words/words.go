// Package words provides the seed word lists generator steps sample for
// prompt entropy.
//
// Two lists ship embedded: "basic" (common concrete nouns) and "advanced"
// (evocative, lower-frequency vocabulary). A project can override either
// by placing basic.txt or advanced.txt (one word per line) in the working
// directory; curating the lists is how datasets are steered without
// touching code.
package words

import (
	_ "embed"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
)

//go:embed basic.txt
var embeddedBasic string

//go:embed advanced.txt
var embeddedAdvanced string

// Lists holds named word lists and samples from them.
type Lists struct {
	mu    sync.Mutex
	lists map[string][]string
	rng   *rand.Rand
}

// Load returns the embedded lists, overridden by basic.txt and
// advanced.txt from the working directory when present.
func Load() (*Lists, error) {
	l := &Lists{
		lists: map[string][]string{
			"basic":    splitWords(embeddedBasic),
			"advanced": splitWords(embeddedAdvanced),
		},
		rng: rand.New(rand.NewSource(rand.Int63())),
	}
	for _, name := range []string{"basic", "advanced"} {
		path := name + ".txt"
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if words := splitWords(string(data)); len(words) > 0 {
			l.lists[name] = words
		}
	}
	return l, nil
}

// Random samples n distinct words from the named list.
func (l *Lists) Random(list string, n int) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	words, ok := l.lists[list]
	if !ok {
		return nil, fmt.Errorf("unknown word list %q", list)
	}
	if n > len(words) {
		return nil, fmt.Errorf("word list %q has %d words, wanted %d", list, len(words), n)
	}

	out := make([]string, 0, n)
	for _, idx := range l.rng.Perm(len(words))[:n] {
		out = append(out, words[idx])
	}
	return out, nil
}

func splitWords(data string) []string {
	var out []string
	for _, line := range strings.Split(data, "\n") {
		word := strings.TrimSpace(line)
		if word != "" {
			out = append(out, word)
		}
	}
	return out
}
