// Package analysis builds the prompts sent to the model and turns its answers
// into validated results.
package analysis

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

// SystemPrompt is sent ahead of every request.
const SystemPrompt = "You are a legal expert who explains complex legal documents in simple terms. " +
	"Always respond with valid JSON only, no markdown formatting."

const analysisTemplate = `
You are a legal document expert. Analyze the following legal document and provide:

1. A simplified summary in plain language (2-3 paragraphs)
2. Risk assessment with levels (low, medium, high) and explanations
3. Key clauses with their implications
4. Important terms that need attention

Document content:
{{.Content}}

Respond ONLY with valid JSON in this exact format (no markdown, no backticks, no additional text):
{
  "simplified_summary": "Plain language summary...",
  "risk_assessment": {
    "overall_risk": "medium",
    "risk_factors": [
      {
        "level": "high",
        "clause": "Exclusivity clause text...",
        "explanation": "This restricts your ability to...",
        "key_terms": ["exclusively", "written consent"]
      }
    ]
  },
  "key_clauses": [
    {
      "id": 1,
      "content": "Clause text...",
      "risk": "high",
      "explanation": "Plain language explanation...",
      "key_terms": ["term1", "term2"]
    }
  ]
}
`

const summaryTemplate = `
You are a legal document expert. Write an enhanced plain-language summary of the following legal document
for someone without legal training. Identify what kind of document it is, who the parties are, the main
terms, every deadline or date that matters, the risks to the reader and what they should do before signing.

Document content:
{{.Content}}

Respond ONLY with valid JSON in this exact format (no markdown, no backticks, no additional text):
{
  "enhanced_summary": "Detailed plain language summary...",
  "document_type": "Employment agreement",
  "key_parties": ["Employer name", "Employee name"],
  "main_terms": ["Salary of ...", "Term of ..."],
  "deadlines": ["Notice must be given 30 days before ..."],
  "risks": ["Non-compete restricts ..."],
  "recommendations": ["Ask for the non-compete period to be shortened ..."]
}
`

func render(tpl, content string) string {
	return strings.NewReplacer("{{.Content}}", content).Replace(tpl)
}

// AnalysisPrompt embeds content into the full-analysis prompt.
func AnalysisPrompt(content string) string {
	return render(analysisTemplate, content)
}

// SummaryPrompt embeds content into the enhanced-summary prompt.
func SummaryPrompt(content string) string {
	return render(summaryTemplate, content)
}

// AnalysisMessages is the conversation sent for a full analysis.
func AnalysisMessages(content string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(SystemPrompt),
		schema.UserMessage(AnalysisPrompt(content)),
	}
}

// SummaryMessages is the conversation sent for an enhanced summary.
func SummaryMessages(content string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(SystemPrompt),
		schema.UserMessage(SummaryPrompt(content)),
	}
}
