package guidance

import (
	"fmt"
	"strings"

	"shravan-server-go/internal/domain/location"
	"shravan-server-go/internal/domain/scene"
	"shravan-server-go/internal/domain/speech"
)

type FragmentKind string

const (
	FragmentScene       FragmentKind = "scene"
	FragmentLocation    FragmentKind = "location"
	FragmentUtterance   FragmentKind = "utterance"
	FragmentInstruction FragmentKind = "instruction"
)

const (
	separator      = ". "
	scenePrefix    = "Camera sees: "
	sceneUnclear   = "Camera cannot identify any objects clearly"
	utteranceQuote = "User asked: '%s'"
)

type Fragment struct {
	Kind FragmentKind
	Text string
}

// Context is the prompt handed to the reasoning collaborator. It is built
// per request and never reused.
type Context struct {
	Fragments []Fragment
	Text      string
}

// Assembler turns stage outputs into a Context. It has no side effects.
type Assembler struct {
	instruction string
}

func NewAssembler(taskInstruction string) *Assembler {
	return &Assembler{instruction: strings.TrimSpace(taskInstruction)}
}

func (a *Assembler) Assemble(sc scene.Scene, loc location.Result, utt speech.Utterance) Context {
	fragments := make([]Fragment, 0, 4)

	if len(sc.Descriptors) > 0 {
		described := make([]string, len(sc.Descriptors))
		for i, d := range sc.Descriptors {
			described[i] = d.String()
		}
		fragments = append(fragments, Fragment{FragmentScene, scenePrefix + strings.Join(described, ", ")})
	} else {
		fragments = append(fragments, Fragment{FragmentScene, sceneUnclear})
	}

	if loc.Available && strings.TrimSpace(loc.Sentence) != "" {
		fragments = append(fragments, Fragment{FragmentLocation, loc.Sentence})
	}

	fragments = append(fragments, Fragment{FragmentUtterance, fmt.Sprintf(utteranceQuote, strings.TrimSpace(utt.Text))})

	if a.instruction != "" {
		fragments = append(fragments, Fragment{FragmentInstruction, a.instruction})
	}

	return Context{Fragments: fragments, Text: join(fragments)}
}

// join separates fragments with ". ", dropping one trailing period from all
// but the last fragment so none end up doubled.
func join(fragments []Fragment) string {
	parts := make([]string, len(fragments))
	for i, f := range fragments {
		text := strings.TrimSpace(f.Text)
		if i < len(fragments)-1 {
			text = strings.TrimSpace(strings.TrimSuffix(text, "."))
		}
		parts[i] = text
	}
	return strings.Join(parts, separator)
}
