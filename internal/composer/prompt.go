package composer

import (
	"fmt"
	"strings"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/tokens"
)

// DefaultMaxContextTokens caps the catalog excerpt of a prompt.
const DefaultMaxContextTokens = 1500

// PromptBuilder renders the grounded prompt sent to the provider chain.
type PromptBuilder struct {
	counter   tokens.Counter
	maxTokens int
}

// NewPromptBuilder returns a builder that keeps retrieved context within
// maxContextTokens as measured by counter.
func NewPromptBuilder(counter tokens.Counter, maxContextTokens int) *PromptBuilder {
	if counter == nil {
		counter = tokens.NewEstimator()
	}
	if maxContextTokens <= 0 {
		maxContextTokens = DefaultMaxContextTokens
	}
	return &PromptBuilder{counter: counter, maxTokens: maxContextTokens}
}

// Build returns the prompt and the number of documents that fit the budget.
// Documents are taken in rank order; the first one that overflows ends the
// excerpt. With no documents the prompt asks for a general answer.
func (b *PromptBuilder) Build(activeDomain, text string, docs []domain.RetrievedDocument) (string, int) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Eres una asesora del área %s. Responde en español, breve y cordial.\n", activeDomain)

	var excerpt strings.Builder
	used, included := 0, 0
	for _, d := range docs {
		line := fmt.Sprintf("[%d] (%s) %s\n", included+1, d.SourceID, strings.TrimSpace(d.Content))
		n := b.counter.Count(line)
		if used+n > b.maxTokens {
			break
		}
		excerpt.WriteString(line)
		used += n
		included++
	}

	if included > 0 {
		sb.WriteString("Usa solo la siguiente información del catálogo; si no alcanza, dilo con honestidad.\n\n")
		sb.WriteString("Catálogo:\n")
		sb.WriteString(excerpt.String())
	} else {
		sb.WriteString("No hay información de catálogo disponible. Responde de forma general sin inventar productos ni precios.\n")
	}

	fmt.Fprintf(&sb, "\nMensaje del cliente: %s\n", strings.TrimSpace(text))
	return sb.String(), included
}
