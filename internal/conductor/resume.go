package conductor

import (
	"fmt"
	"regexp"
	"strconv"
)

// phaseMarkerRe matches the commit subject written after each phase.
var phaseMarkerRe = regexp.MustCompile(`^forge: Phase (\d+) complete$`)

// PhaseCommitMessage is the commit subject recorded when a phase completes.
func PhaseCommitMessage(phase int) string {
	return fmt.Sprintf("forge: Phase %d complete", phase)
}

// resumeLogDepth bounds how far back the log scan looks for phase markers.
const resumeLogDepth = 200

// ResumePhase parses the workspace commit log for phase-complete markers and
// returns the index of the first phase still to run. A repo with no markers
// (or no repo at all) resumes from zero.
func ResumePhase(repo Repo) int {
	if repo == nil {
		return 0
	}
	subjects, err := repo.Log(resumeLogDepth)
	if err != nil {
		return 0
	}

	highest := -1
	for _, subject := range subjects {
		m := phaseMarkerRe.FindStringSubmatch(subject)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1
}
