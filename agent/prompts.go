package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/paperflow/agent/tools"
)

const answerSystemPrompt = `You are a research assistant specializing in AI/ML papers.
Answer questions based ONLY on the provided context from research papers.
Cite sources using [arxiv_id] format.
Be precise, technical, and thorough.`

const outOfScopeSystemPrompt = `You are an AI/ML research assistant.
The user's query is outside your scope. Generate a helpful response that:

1. Acknowledges their message naturally (don't be robotic)
2. References the conversation topic if relevant
3. Explains your focus on AI/ML research papers
4. Suggests a relevant angle if their query could relate to AI/ML

Keep response to 2-3 sentences. Be warm but direct.`

const routerSystemPrompt = `You are the routing module of an AI/ML research assistant.
Decide the next action: call one or more tools, or generate the final answer.

Rules:
- Use retrieve_chunks when the answer needs evidence from the paper database.
- Use other tools only when the query explicitly asks for their capability.
- Choose "generate" when enough evidence has been gathered or no tool can help.
- When retrieval already failed, consider retrying with more technical phrasing.`

func guardrailPrompt(query, topicContext, scanNote string, threshold int) string {
	var b strings.Builder
	b.WriteString(`You are a query relevance validator for an AI/ML research paper database.

Score this query on a scale of 0-100:
- 100: Directly about AI/ML research (models, techniques, theory)
- 75-99: Related to AI/ML (applications, datasets, benchmarks)
- 50-74: Tangentially related (computing, statistics)
- 0-49: Not related to AI/ML

`)
	if topicContext != "" {
		b.WriteString(topicContext)
		b.WriteString("\n\n")
	}
	if scanNote != "" {
		b.WriteString("Note: ")
		b.WriteString(scanNote)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, `Query: %s

Provide:
- score: Integer 0-100
- reasoning: Brief explanation (1-2 sentences)
- is_in_scope: Boolean (true if score >= %d)`, query, threshold)
	return b.String()
}

func routerPrompt(query string, schemas []tools.Schema, history []ToolExecution, conversationContext string) string {
	var b strings.Builder
	b.WriteString("Available tools:\n")
	for _, schema := range schemas {
		params, _ := json.Marshal(schema.Parameters)
		fmt.Fprintf(&b, "- %s: %s\n  parameters: %s\n", schema.Name, schema.Description, params)
	}

	if len(history) > 0 {
		b.WriteString("\nTools already executed this run:\n")
		for _, exec := range history {
			status := "ok"
			if !exec.Success {
				status = "failed: " + exec.Error
			}
			fmt.Fprintf(&b, "- %s (%s) %s\n", exec.ToolName, status, exec.ResultSummary)
		}
	}

	if conversationContext != "" {
		b.WriteString("\n")
		b.WriteString(conversationContext)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, `
Question: %s

Decide the next action. Respond with:
- action: "execute_tools" or "generate"
- reasoning: why
- tool_calls: list of {tool_name, tool_args_json} when executing tools (tool_args_json is a JSON object string)`, query)
	return b.String()
}

func gradingPrompt(query string, chunk tools.RetrievedChunk) string {
	text := truncate(chunk.ChunkText, 500)
	return fmt.Sprintf(`Is this chunk relevant to the query?

Query: %s

Chunk (from paper %s):
%s

Respond with:
- is_relevant: Boolean (true if this chunk helps answer the query)
- reasoning: Brief explanation (1 sentence)`, query, chunk.ArxivID, text)
}

func rewritePrompt(originalQuery, feedback string) string {
	return fmt.Sprintf(`The original query did not retrieve enough relevant documents.

Original Query: %s

Retrieval Feedback:
%s

Rewrite the query to improve retrieval. Focus on:
- Technical terminology used in research papers
- Specific AI/ML concepts
- Key terms that would appear in relevant papers

Return ONLY the rewritten query, no explanation.`, originalQuery, feedback)
}

func answerPrompt(query, conversationContext string, chunks []tools.RetrievedChunk, limitedSources bool) string {
	var b strings.Builder
	if conversationContext != "" {
		b.WriteString(conversationContext)
		b.WriteString("\n\n")
	}

	b.WriteString("Context from research papers:\n")
	if len(chunks) == 0 {
		b.WriteString("(no relevant papers found)\n")
	}
	for i, chunk := range chunks {
		fmt.Fprintf(&b, "\n[%d] %s (%s)", i+1, chunk.Title, chunk.ArxivID)
		if chunk.SectionName != "" {
			fmt.Fprintf(&b, ", section: %s", chunk.SectionName)
		}
		b.WriteString("\n")
		b.WriteString(chunk.ChunkText)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nQuestion: %s\n\nProvide a detailed answer based on the context above. Cite sources.", query)
	if limitedSources {
		b.WriteString("\nNote: Limited sources found. Acknowledge gaps if needed.")
	}
	return b.String()
}

func outOfScopePrompt(query, conversationContext string, scoring *GuardrailScoring) string {
	var b strings.Builder
	if conversationContext != "" {
		b.WriteString(conversationContext)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "User message: %s\n", query)
	if scoring != nil {
		fmt.Fprintf(&b, "\nRelevance score: %d/100\nReason: %s\n", scoring.Score, scoring.Reasoning)
	}
	return b.String()
}
