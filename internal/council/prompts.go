package council

import (
	"fmt"
	"strings"

	"github.com/davidbz/symposium/internal/domain"
)

const selectorSystemPrompt = `You assemble a small advisory council for a user's question.
Given the question and the available personas, pick the personas whose
perspectives would produce the most useful, non-overlapping answers. You may
also invent ad hoc personas when the question needs expertise the catalog
lacks. For each voice, craft a focused sub-query: the user's question
reworded to draw out that persona's perspective.

Respond with a single JSON object, no prose, no code fences:
{"voices": [{"source": "catalog", "key": "<persona id>", "query": "<sub-query>"},
            {"source": "adhoc", "name": "<short name>", "description": "<one line>", "query": "<sub-query>"}],
 "rationale": "<one sentence on why this composition>"}

Pick between 1 and %d voices. Catalog keys must come from this list:
%s`

const sanitizerSystemPrompt = `You rewrite user questions for clarity before they reach an advisory
council. Remove filler, fix obvious typos and make the ask explicit. Never
change the meaning, never answer the question, never add content. Respond
with the rewritten question only.`

const voiceSystemPromptSuffix = `

After your answer, on its own final line, write:
SUMMARY: <one sentence capturing your position>`

const consolidatorSystemPrompt = `You are the moderator of an advisory council. You received several
perspectives on the user's question. Weave them into one coherent answer
that preserves genuine disagreement instead of averaging it away. Attribute
notable positions to their voice by name. If some voices failed to respond,
work only with those that did. Answer the user directly.`

// renderSelectorSystem fills the selector instructions with the catalog.
func renderSelectorSystem(catalog *Catalog, maxVoices int) string {
	var b strings.Builder
	for _, key := range catalog.SelectableKeys() {
		p, _ := catalog.Get(key)
		fmt.Fprintf(&b, "- %s: %s\n", key, p.Spec.Description)
	}
	return fmt.Sprintf(selectorSystemPrompt, maxVoices, b.String())
}

// renderHistory formats prior turn summaries for inclusion in a prompt.
// Returns "" when there is no history.
func renderHistory(history []domain.TurnSummary) string {
	if len(history) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Earlier in this conversation:\n")
	for _, h := range history {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", h.Query, h.Answer)
	}
	return b.String()
}

// renderVoiceMessages builds the message list for one responder call.
func renderVoiceMessages(persona Persona, query string, history []domain.TurnSummary) []domain.Message {
	system := persona.Prompt
	if system == "" {
		// Ad hoc personas carry only a name and description.
		system = fmt.Sprintf("You are %s. %s Answer the user's question from that perspective.",
			persona.Spec.Name, persona.Spec.Description)
	}
	system += voiceSystemPromptSuffix

	messages := []domain.Message{{Role: "system", Content: system}}
	if h := renderHistory(history); h != "" {
		messages = append(messages, domain.Message{Role: "system", Content: h})
	}
	messages = append(messages, domain.Message{Role: "user", Content: query})
	return messages
}

// renderConsolidatorMessages builds the message list for the consolidation
// call. Picks align with outcomes by index and contribute the sub-query each
// voice was asked. Failed voices appear as a one-line note so the moderator
// knows a perspective is missing instead of it vanishing silently.
func renderConsolidatorMessages(query string, picks []Pick, outcomes []domain.Outcome, history []domain.TurnSummary) []domain.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", query)
	for i, o := range outcomes {
		if o.Failed() {
			fmt.Fprintf(&b, "%s could not respond.\n\n", o.Voice)
			continue
		}
		if i < len(picks) && picks[i].SubQuery != "" {
			fmt.Fprintf(&b, "%s (asked: %s) answered:\n%s\n\n", o.Voice, picks[i].SubQuery, o.Answer)
			continue
		}
		fmt.Fprintf(&b, "%s answered:\n%s\n\n", o.Voice, o.Answer)
	}

	messages := []domain.Message{{Role: "system", Content: consolidatorSystemPrompt}}
	if h := renderHistory(history); h != "" {
		messages = append(messages, domain.Message{Role: "system", Content: h})
	}
	return append(messages, domain.Message{Role: "user", Content: b.String()})
}

// splitAnswerSummary separates a voice response into answer text and the
// trailing SUMMARY line. Responses without the marker summarize to their
// first sentence-ish fragment.
func splitAnswerSummary(content string) (answer, summary string) {
	idx := strings.LastIndex(content, "SUMMARY:")
	if idx >= 0 {
		answer = strings.TrimSpace(content[:idx])
		summary = strings.TrimSpace(content[idx+len("SUMMARY:"):])
		if answer == "" {
			answer = summary
		}
		return answer, summary
	}

	answer = strings.TrimSpace(content)
	summary = answer
	if cut := strings.IndexAny(summary, ".\n"); cut > 0 {
		summary = strings.TrimSpace(summary[:cut+1])
	}
	return answer, summary
}

// stripCodeFences removes a surrounding markdown code fence, if present, so
// fenced JSON from a model still parses.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop a language tag like "json" on the fence line.
		first := strings.TrimSpace(s[:nl])
		if first != "" && !strings.HasPrefix(first, "{") && !strings.HasPrefix(first, "[") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
