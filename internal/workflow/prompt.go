package workflow

import (
	"fmt"
	"strings"

	"github.com/linesage/linesage/internal/models"
)

// historyWindow bounds how many prior turns the expert prompt carries.
const historyWindow = 3

// snippetWindow bounds how many retrieved snippets the expert prompt carries.
const snippetWindow = 3

// buildExpertPrompt assembles the user prompt every dispatched expert sees:
// classification background, retrieved references, recent history, question.
func buildExpertPrompt(st *State) string {
	var b strings.Builder

	if cls := st.Classification; cls != nil && cls.IssueCode != "" {
		fmt.Fprintf(&b, "진단된 이슈: %s (%s, 심각도 %s)\n", cls.Description, cls.IssueCode, cls.Severity)
		if len(cls.CommonCauses) > 0 {
			fmt.Fprintf(&b, "알려진 원인: %s\n", strings.Join(cls.CommonCauses, ", "))
		}
		if len(cls.StandardSolutions) > 0 {
			fmt.Fprintf(&b, "표준 해결책: %s\n", strings.Join(cls.StandardSolutions, ", "))
		}
		b.WriteString("\n")
	}

	if rc := st.Retrieval; rc != nil {
		snippets := append(append([]models.Snippet{}, rc.VectorResults...), rc.KeywordResults...)
		if len(snippets) > snippetWindow {
			snippets = snippets[:snippetWindow]
		}
		if len(snippets) > 0 {
			b.WriteString("참고 자료:\n")
			for i, s := range snippets {
				fmt.Fprintf(&b, "%d. %s\n", i+1, s.Content)
			}
			b.WriteString("\n")
		}
	}

	if len(st.History) > 0 {
		start := len(st.History) - historyWindow
		if start < 0 {
			start = 0
		}
		b.WriteString("이전 대화:\n")
		for _, turn := range st.History[start:] {
			fmt.Fprintf(&b, "사용자: %s\n답변 요약: %s\n", turn.UserMessage, firstLine(turn.Reply))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "질문: %s", st.UserMessage)
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
