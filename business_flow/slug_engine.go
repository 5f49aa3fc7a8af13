package businessflow

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"github.com/amirphl/Kusanagi/config"
	"github.com/amirphl/Kusanagi/repository"
	"github.com/amirphl/Kusanagi/utils"
)

// suggestionAlphabet excludes the ambiguous glyphs 0, O, 1 and I
const suggestionAlphabet = "23456789abcdefghijklmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"

// randomSuggestionRetries bounds the random tier so Suggest always terminates
const randomSuggestionRetries = 10

// SlugEngine validates slugs and proposes alternatives for taken ones.
// Slugs are case-sensitive; the reserved-word check is case-insensitive.
type SlugEngine struct {
	codeRepo repository.QRCodeRepository
	reserved map[string]struct{}
	maxLen   int
	pattern  *regexp.Regexp
	rng      *rand.Rand
}

func NewSlugEngine(codeRepo repository.QRCodeRepository, cfg *config.QRConfig) *SlugEngine {
	maxLen := cfg.MaxSlugLength
	if maxLen <= 0 {
		maxLen = utils.MaxSlugLength
	}
	reserved := make(map[string]struct{}, len(cfg.ReservedSlugs))
	for _, word := range cfg.ReservedSlugs {
		reserved[strings.ToLower(word)] = struct{}{}
	}
	return &SlugEngine{
		codeRepo: codeRepo,
		reserved: reserved,
		maxLen:   maxLen,
		pattern:  regexp.MustCompile(fmt.Sprintf(`^[A-Za-z0-9_-]{1,%d}$`, maxLen)),
		rng:      rand.New(rand.NewSource(utils.UTCNow().UnixNano())),
	}
}

// ValidFormat reports whether slug matches the allowed charset and length.
// It is charset-only; reserved words still pass.
func (e *SlugEngine) ValidFormat(slug string) bool {
	return e.pattern.MatchString(slug)
}

// Validate checks format first, then the reserved-word list
func (e *SlugEngine) Validate(slug string) error {
	if !e.ValidFormat(slug) {
		return NewBusinessError("SLUG_INVALID",
			fmt.Sprintf("slug must be 1 to %d characters of letters, digits, hyphen or underscore", e.maxLen),
			ErrSlugInvalid)
	}
	if _, ok := e.reserved[strings.ToLower(slug)]; ok {
		return NewBusinessError("SLUG_RESERVED", "this slug is reserved and cannot be used", ErrSlugReserved)
	}
	return nil
}

// IsAvailable reports whether slug is free. excludeID, when non-zero, lets a
// record keep its own slug during edits.
func (e *SlugEngine) IsAvailable(ctx context.Context, slug string, excludeID uint) (bool, error) {
	exists, err := e.codeRepo.SlugExists(ctx, slug, excludeID)
	if err != nil {
		return false, fmt.Errorf("failed to check slug availability: %w", err)
	}
	return !exists, nil
}

// Suggest proposes up to count alternatives for a taken base slug, in
// priority order: numeric suffixes, the current year, month plus year, then
// short random suffixes. Every candidate passes Validate and is available at
// probe time; candidates that would exceed the length limit are skipped.
func (e *SlugEngine) Suggest(ctx context.Context, base string, count int) ([]string, error) {
	if count <= 0 {
		count = utils.SlugSuggestionCount
	}
	out := make([]string, 0, count)
	seen := make(map[string]struct{}, count)

	probe := func(candidate string) (bool, error) {
		if len(out) >= count {
			return true, nil
		}
		if _, dup := seen[candidate]; dup {
			return false, nil
		}
		seen[candidate] = struct{}{}
		if e.Validate(candidate) != nil {
			return false, nil
		}
		available, err := e.IsAvailable(ctx, candidate, 0)
		if err != nil {
			return false, err
		}
		if available {
			out = append(out, candidate)
		}
		return len(out) >= count, nil
	}

	for i := 2; i <= count+1; i++ {
		done, err := probe(fmt.Sprintf("%s-%d", base, i))
		if err != nil {
			return nil, err
		}
		if done {
			return out, nil
		}
	}

	now := utils.UTCNow()
	temporal := []string{
		fmt.Sprintf("%s-%d", base, now.Year()),
		fmt.Sprintf("%s-%s-%d", base, strings.ToLower(now.Format("Jan")), now.Year()),
	}
	for _, candidate := range temporal {
		done, err := probe(candidate)
		if err != nil {
			return nil, err
		}
		if done {
			return out, nil
		}
	}

	for attempt := 0; attempt < randomSuggestionRetries && len(out) < count; attempt++ {
		done, err := probe(base + "-" + e.randomSuffix(3))
		if err != nil {
			return nil, err
		}
		if done {
			return out, nil
		}
	}

	return out, nil
}

func (e *SlugEngine) randomSuffix(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(suggestionAlphabet[e.rng.Intn(len(suggestionAlphabet))])
	}
	return b.String()
}
