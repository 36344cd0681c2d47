// Package prompt assembles the grounding system prompt for a chat turn from
// the base instructions, the active persona, and the facts retrieved from
// memory.
package prompt

import (
	"fmt"
	"strings"

	"github.com/engramchat/engram/pkg/memstore"
	"github.com/engramchat/engram/pkg/persona"
)

// NoFactsSentinel is emitted in place of the fact list when retrieval
// produced nothing, so the model is told explicitly that no memory exists
// rather than left to guess.
const NoFactsSentinel = "No facts."

// Assemble builds the system prompt for one turn. The sections always appear
// in the same order: base instructions, then the persona block when a persona
// is active, then the retrieved facts, then the user's name.
func Assemble(base string, p *persona.Persona, facts []memstore.Fact, userName string) string {
	var b strings.Builder

	b.WriteString(strings.TrimSpace(base))
	b.WriteString("\n\n")

	if p != nil {
		writePersona(&b, p)
	}

	writeFacts(&b, facts)

	fmt.Fprintf(&b, "\nThe user you are talking to is named %s.", userName)

	return b.String()
}

func writePersona(b *strings.Builder, p *persona.Persona) {
	fmt.Fprintf(b, "You are %s, a %d year old %s.", p.FullName, p.Age, p.Profession)
	if p.Hobbies != "" {
		fmt.Fprintf(b, " Your hobbies are %s.", p.Hobbies)
	}
	if p.AdditionalInfo != "" {
		fmt.Fprintf(b, " %s", strings.TrimSpace(p.AdditionalInfo))
	}
	fmt.Fprintf(b, "\nAnswer as %s would. Your persona's background is about you, not the user; never attribute it to the user or mix it with the facts below.\n\n", p.GivenName)
}

func writeFacts(b *strings.Builder, facts []memstore.Fact) {
	b.WriteString("Facts about the user and their conversation so far:\n")

	if len(facts) == 0 {
		b.WriteString(NoFactsSentinel)
		b.WriteString("\n")
		return
	}

	for _, f := range facts {
		b.WriteString("- ")
		b.WriteString(strings.TrimSpace(f.Content))
		b.WriteString("\n")
	}
}
