// File: internal/nlp/router.go
// Package nlp scores free-form utterances against the intent manifest and
// proposes the best match. Proposals are informational: nothing here writes
// intent files, the bracketed chat grammar stays the only execution path.
package nlp

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// minScore is the floor below which no proposal is made.
const minScore = 2

// IntentInfo describes one routable intent from the manifest.
type IntentInfo struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Synonyms    []string `yaml:"synonyms"`
}

// Manifest is the on-disk intent catalogue.
type Manifest struct {
	Intents []IntentInfo `yaml:"intents"`
}

// Proposal is a scored routing suggestion.
type Proposal struct {
	Intent string
	Args   map[string]string
	Score  int
}

// Router matches utterances against the manifest.
type Router struct {
	intents []IntentInfo
}

var (
	argPairRe = regexp.MustCompile(`(\w+)\s*[:=]\s*([\w./:-]+)`)
	topicRe   = regexp.MustCompile(`(?:\bfor\b|\babout\b)\s+([\w.-]+)`)
)

// LoadManifest reads the intent manifest file.
func LoadManifest(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("reading intent manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("parsing intent manifest: %w", err)
	}
	return m, nil
}

// NewRouter builds a router over the manifest's intents.
func NewRouter(m Manifest) *Router {
	return &Router{intents: m.Intents}
}

// Intents returns the manifest entries, sorted by name.
func (r *Router) Intents() []IntentInfo {
	out := append([]IntentInfo(nil), r.intents...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Route scores the utterance against every intent. A name hit counts 3, a
// synonym hit 2; below the minimum score there is no proposal.
func (r *Router) Route(utterance string) (Proposal, bool) {
	lowered := strings.ToLower(utterance)

	best := Proposal{}
	for _, intent := range r.intents {
		score := 0
		spokenName := strings.ReplaceAll(strings.ToLower(intent.Name), "_", " ")
		if strings.Contains(lowered, spokenName) {
			score += 3
		}
		for _, syn := range intent.Synonyms {
			if syn != "" && strings.Contains(lowered, strings.ToLower(syn)) {
				score += 2
			}
		}
		if score > best.Score {
			best = Proposal{Intent: intent.Name, Score: score}
		}
	}
	if best.Score < minScore {
		return Proposal{}, false
	}

	best.Args = extractArgs(lowered)
	return best, true
}

// extractArgs pulls key=value / key: value pairs plus a trailing
// "for <topic>" / "about <topic>" hint.
func extractArgs(utterance string) map[string]string {
	args := map[string]string{}
	for _, m := range argPairRe.FindAllStringSubmatch(utterance, -1) {
		args[strings.ToLower(m[1])] = m[2]
	}
	if len(args) == 0 {
		if m := topicRe.FindStringSubmatch(utterance); m != nil {
			args["topic"] = m[1]
		}
	}
	return args
}
