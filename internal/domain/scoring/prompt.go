package scoring

import (
	"strings"
)

// Rubric is the score scale shared by every prompt.
const Rubric = `Scoring rubric:
- 90-100: Exceptional fit, exceeds requirements
- 75-89: Strong fit, meets all key requirements
- 60-74: Good fit, meets most requirements with minor gaps
- 40-59: Moderate fit, has relevant experience but significant gaps
- 20-39: Poor fit, lacks many key requirements
- 0-19: Not qualified for this role`

// BuildPrompt renders the instruction sent to a language model. Calibration
// guidance, when present, is placed right before the answer format so it is
// read last.
func BuildPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("You are an expert technical recruiter and hiring manager. Evaluate the candidate against the job requirements and give a score from 0 to 100. Be thorough, fair and objective.\n\n")
	b.WriteString("Job requirements:\n")
	b.WriteString(strings.TrimSpace(in.JobRequirements))
	b.WriteString("\n\nCandidate:\n")
	b.WriteString(strings.TrimSpace(in.CandidateDescription))
	b.WriteString("\n\n")
	b.WriteString(Rubric)
	b.WriteString("\n\n")
	if c := strings.TrimSpace(in.CalibrationContext); c != "" {
		b.WriteString(c)
		b.WriteString("\n\n")
	}
	b.WriteString(`Respond with JSON only, no prose and no code fences: {"score": <integer 0-100>}`)
	return b.String()
}
