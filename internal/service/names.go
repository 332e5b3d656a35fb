package service

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// NameAssigner hands out the display aliases diners see at a table.  It
// is pure: the set of names already in use is read by the caller inside
// its own transaction and passed in.
type NameAssigner interface {
	// Generate returns a name not contained in existing.
	Generate(existing map[string]struct{}) string
	// Validate checks a caller-supplied name against the format rules.
	Validate(name string) error
}

const (
	minNameLen = 2
	maxNameLen = 30

	// random draws before falling back to a scan of the whole space
	maxNameAttempts = 16

	namePunctuation = "'-._!"
)

var adjectives = []string{
	"Brave", "Clever", "Swift", "Gentle", "Mighty", "Silent", "Golden", "Crimson",
	"Lucky", "Jolly", "Noble", "Wild", "Sunny", "Misty", "Cosmic", "Fierce",
	"Humble", "Merry", "Shy", "Witty",
}

var nouns = []string{
	"Dragon", "Phoenix", "Griffin", "Unicorn", "Wizard", "Knight", "Falcon", "Otter",
	"Panda", "Tiger", "Fox", "Owl", "Wolf", "Bear", "Raven", "Lynx",
	"Kraken", "Sprite", "Golem", "Pixie",
}

// FantasyNames composes names as "<Adjective> <Noun>".  The zero value
// draws from the global random source.
type FantasyNames struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewFantasyNames returns a generator drawing from the global random
// source.
func NewFantasyNames() *FantasyNames { return &FantasyNames{} }

// NewSeededFantasyNames returns a generator with a deterministic
// sequence, used by tests.
func NewSeededFantasyNames(seed uint64) *FantasyNames {
	return &FantasyNames{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (f *FantasyNames) intn(n int) int {
	if f.rng == nil {
		return rand.IntN(n)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rng.IntN(n)
}

func compose(i int) string {
	return adjectives[i/len(nouns)] + " " + nouns[i%len(nouns)]
}

// Generate draws random combinations first.  When those keep colliding
// it walks the full adjective x noun product from a random offset, and
// once every combination is in use it appends " 2", " 3", ... to one of
// them.  The last loop ends after at most len(existing)+1 steps.
func (f *FantasyNames) Generate(existing map[string]struct{}) string {
	total := len(adjectives) * len(nouns)
	free := func(name string) bool {
		_, taken := existing[name]
		return !taken
	}
	for i := 0; i < maxNameAttempts; i++ {
		if name := compose(f.intn(total)); free(name) {
			return name
		}
	}
	start := f.intn(total)
	for i := 0; i < total; i++ {
		if name := compose((start + i) % total); free(name) {
			return name
		}
	}
	base := compose(start)
	for n := 2; ; n++ {
		if name := fmt.Sprintf("%s %d", base, n); free(name) {
			return name
		}
	}
}

// Validate accepts 2 to 30 characters made of letters, digits, single
// spaces and the punctuation ' - . _ !, with at least one letter or
// digit. Combining marks must follow a letter or digit. Leading or
// trailing spaces and control characters are rejected.
func (f *FantasyNames) Validate(name string) error {
	if strings.TrimSpace(name) == "" {
		return validation("fantasy name is required")
	}
	if name != strings.TrimSpace(name) {
		return validation("fantasy name must not start or end with a space")
	}
	if n := utf8.RuneCountInString(name); n < minNameLen || n > maxNameLen {
		return validation(fmt.Sprintf("fantasy name must be between %d and %d characters", minNameLen, maxNameLen))
	}
	var prevSpace, afterBase, hasAlnum bool
	for _, r := range name {
		switch {
		case r == ' ':
			if prevSpace {
				return validation("fantasy name must not contain consecutive spaces")
			}
			prevSpace, afterBase = true, false
			continue
		case unicode.IsControl(r):
			return validation("fantasy name must not contain control characters")
		case unicode.IsLetter(r), unicode.IsDigit(r):
			hasAlnum, afterBase = true, true
		case unicode.Is(unicode.Mn, r):
			if !afterBase {
				return validation("fantasy name has a combining mark without a base letter")
			}
		case strings.ContainsRune(namePunctuation, r):
			afterBase = false
		default:
			return validation(fmt.Sprintf("fantasy name contains invalid character %q", r))
		}
		prevSpace = false
	}
	if !hasAlnum {
		return validation("fantasy name must contain a letter or digit")
	}
	return nil
}

// normalizeName trims a caller-supplied name and brings it to NFC so
// that visually identical names compare equal.
func normalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
