package services

import (
	"regexp"
	"strings"
)

var defaultTechnicalKeywords = []string{
	"python", "code", "function", "class", "aws", "job", "cv", "def",
	"import", "for", "if", "try", "test", "web", "flask", "django",
}

var repoLinkPattern = regexp.MustCompile(`(?i)^(https?://)?(www\.)?github\.com/[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+/?(\S*)$`)

// KeywordClassifier decides whether a message is on topic for the course.
// Exact quiz answers always count as technical, even when they contain no
// English keyword.
type KeywordClassifier struct {
	keywords []string
	answers  map[string]bool
}

func NewKeywordClassifier(catalog StageCatalog) *KeywordClassifier {
	c := &KeywordClassifier{
		keywords: defaultTechnicalKeywords,
		answers:  make(map[string]bool),
	}
	if catalog != nil {
		for i := 0; i < catalog.Len(); i++ {
			if quiz, err := catalog.Quiz(i); err == nil {
				c.answers[normalizeAnswer(quiz.Answer)] = true
			}
		}
	}
	return c
}

func (c *KeywordClassifier) IsTechnical(text string) bool {
	normalized := normalizeAnswer(text)
	if normalized == "" {
		return false
	}
	if c.answers[normalized] {
		return true
	}
	for _, kw := range c.keywords {
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	return strings.ContainsAny(normalized, "=(:")
}

func (c *KeywordClassifier) IsRepoLink(text string) bool {
	return repoLinkPattern.MatchString(strings.TrimSpace(text))
}
