package service

import (
	"fmt"
	"strings"

	"study-buddy/backend/internal/model"
)

const tutorPersona = `You are Intellexa, a patient AI tutor, study partner and project assistant.

Objectives:
1. Explain concepts in clear language pitched at the learner's level.
2. Solve numerical and logical problems step by step.
3. Help with homework, projects and exam preparation without doing the work for the learner.
4. Write summaries, notes and worked examples on request.
5. When a process or cycle is easier to see than to read, draw it as a Mermaid diagram in a code block labelled 'mermaid' ('graph TD' or 'graph LR', short node labels).

Style:
- Friendly and encouraging. Use analogies and real-life examples.
- Break complex topics into headings, bullet points, tables or numbered steps.
- Give hints and explanations before final answers.
- End with a "Quick Revision Tip".`

var archetypePreambles = map[model.Archetype]string{
	model.ArchetypeSocratic: "Teach through questions. Lead the learner to the answer instead of stating it.",
	model.ArchetypeCoach:    "Act as a motivating coach. Set small goals and celebrate progress.",
	model.ArchetypeLecturer: "Act as a structured lecturer. Present material in a clear, ordered way.",
	model.ArchetypePeer:     "Act as a friendly study peer. Keep the tone casual and think out loud together.",
}

var complexityPreambles = map[model.Complexity]string{
	model.ComplexityFoundational: "Assume little prior knowledge and define every term.",
	model.ComplexityIntermediate: "Assume the basics are known and focus on connecting ideas.",
	model.ComplexityAdvanced:     "Go deep. Include edge cases, derivations and rigorous reasoning.",
}

// composeInstruction builds the system instruction for a session. An
// environment with its own instruction text replaces the archetype and
// complexity preambles.
func composeInstruction(session model.Session, env *model.LearningEnvironment) string {
	var b strings.Builder
	b.WriteString(tutorPersona)

	fmt.Fprintf(&b, "\n\nLearner context: grade level %s, subject %s.", session.Grade, session.Subject)
	if env == nil {
		return b.String()
	}

	fmt.Fprintf(&b, "\n\nLearning environment %q.", env.Name)
	if env.Subject != "" && env.Subject != session.Subject {
		fmt.Fprintf(&b, " Focus subject: %s.", env.Subject)
	}
	if instr := strings.TrimSpace(env.Instruction); instr != "" {
		b.WriteString("\n")
		b.WriteString(instr)
		return b.String()
	}
	if p, ok := archetypePreambles[env.Archetype]; ok {
		b.WriteString("\n")
		b.WriteString(p)
	}
	if p, ok := complexityPreambles[env.Complexity]; ok {
		b.WriteString("\n")
		b.WriteString(p)
	}
	return b.String()
}
