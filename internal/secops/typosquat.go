package secops

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// SquatFinding flags a dependency name suspiciously close to a popular
// package.
type SquatFinding struct {
	Dependency string `json:"dependency"`
	Target     string `json:"target"`
	Reason     string `json:"reason"`
}

// Popular package names that attackers typosquat. Go module paths are
// compared on their last element; npm names as-is.
var popularPackages = []string{
	// npm
	"react", "lodash", "express", "axios", "typescript", "webpack",
	"eslint", "vite", "zod", "stripe", "moment",
	// go (last path element)
	"chi", "pgx", "testify", "cobra", "uuid", "slug", "asynq",
	"go-redis", "validator", "envconfig", "godotenv",
}

// Confusable substitutions that survive a casual code review.
var confusablePairs = [][2]string{
	{"0", "o"},
	{"1", "l"},
	{"rn", "m"},
	{"vv", "w"},
}

// CheckTyposquats compares dependency names against the popular-package
// list. A name within edit distance 1 of a popular package, without being
// that package, is suspicious; so is one that becomes a popular name after
// a confusable substitution.
func CheckTyposquats(dependencies []string) []SquatFinding {
	var findings []SquatFinding
	for _, dep := range dependencies {
		name := normalizeName(dep)
		for _, popular := range popularPackages {
			target := normalizeName(popular)
			if name == target {
				break
			}
			if damerauLevenshtein(name, target) == 1 {
				findings = append(findings, SquatFinding{
					Dependency: dep,
					Target:     popular,
					Reason:     "edit distance 1",
				})
				break
			}
			if confusableMatch(name, target) {
				findings = append(findings, SquatFinding{
					Dependency: dep,
					Target:     popular,
					Reason:     "confusable characters",
				})
				break
			}
		}
	}
	return findings
}

// normalizeName lowercases, NFKC-normalizes, and reduces a module path to
// its last element so github.com/x/chi compares as "chi".
func normalizeName(name string) string {
	name = strings.ToLower(norm.NFKC.String(name))
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

func confusableMatch(name, target string) bool {
	for _, pair := range confusablePairs {
		swapped := strings.ReplaceAll(name, pair[0], pair[1])
		if swapped != name && swapped == target {
			return true
		}
		swapped = strings.ReplaceAll(name, pair[1], pair[0])
		if swapped != name && swapped == target {
			return true
		}
	}
	return false
}

// damerauLevenshtein computes edit distance with adjacent transpositions.
func damerauLevenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev2 := make([]int, lb+1)
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				curr[j] = min(curr[j], prev2[j-2]+1)
			}
		}
		prev2, prev, curr = prev, curr, prev2
	}
	return prev[lb]
}
