package draw

import (
	"strconv"
	"strings"
	"time"

	"occfuse/internal/kernel"
)

// ParseTranscript reconstructs per-step results from a session transcript.
//
// The returned result always has one entry per plan step, in plan order.
// Steps the transcript never reached are marked skipped. When the
// transcript stops before the session end marker and no step reported an
// error, the second return value names the step that was in flight (the
// kernel died under it); it is nil for a cleanly ended session.
func ParseTranscript(stdout string, plan *kernel.Plan) (*kernel.Result, *kernel.Step) {
	steps := plan.Steps()
	result := &kernel.Result{Steps: make([]kernel.StepResult, len(steps))}
	for i, step := range steps {
		result.Steps[i] = kernel.StepResult{Step: step, Status: kernel.StepSkipped}
	}

	current := -1
	ended := false
	failed := false
	var raw strings.Builder

	flushRaw := func(idx int) {
		if idx >= 0 && idx < len(result.Steps) {
			result.Steps[idx].Raw = raw.String()
		}
		raw.Reset()
	}

	for _, line := range strings.Split(stdout, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, MarkerPrefix+" ") {
			if current >= 0 {
				raw.WriteString(line)
				raw.WriteString("\n")
			}
			continue
		}

		fields := strings.Fields(trimmed)
		// fields[0] is the prefix itself.
		switch {
		case len(fields) >= 3 && fields[1] == "session":
			if fields[2] == "end" {
				ended = true
			}

		case len(fields) >= 4 && fields[1] == "step":
			idx, err := strconv.Atoi(fields[2])
			if err != nil || idx < 0 || idx >= len(result.Steps) {
				continue
			}
			switch fields[3] {
			case "begin":
				flushRaw(current)
				current = idx

			case "ok":
				sr := &result.Steps[idx]
				sr.Status = kernel.StepOK
				if len(fields) >= 5 {
					if usec, err := strconv.ParseInt(fields[4], 10, 64); err == nil && usec >= 0 {
						sr.Duration = time.Duration(usec) * time.Microsecond
					}
				}
				flushRaw(idx)
				finishStep(sr)
				current = -1

			case "err":
				sr := &result.Steps[idx]
				sr.Status = kernel.StepFailed
				sr.Message = strings.Join(fields[4:], " ")
				flushRaw(idx)
				failed = true
				current = -1
			}
		}
	}
	flushRaw(current)

	if ended || failed {
		return result, nil
	}

	// The session died mid-flight. Blame the step that was running, or the
	// first one the transcript never finished.
	if current >= 0 {
		step := steps[current]
		return result, &step
	}
	for i := range result.Steps {
		if result.Steps[i].Status == kernel.StepSkipped {
			step := steps[i]
			return result, &step
		}
	}
	return result, nil
}

// finishStep extracts the structured payloads carried in a completed step's
// raw kernel output.
func finishStep(sr *kernel.StepResult) {
	switch sr.Step.Op {
	case kernel.OpStats:
		sr.Counts = parseCounts(sr.Raw)
	case kernel.OpCheck:
		sr.Valid = parseValidity(sr.Raw)
	}
}

// parseCounts reads the kernel's subshape summary, lines shaped like
// " FACE      : 6". Returns nil when no count line is present.
func parseCounts(raw string) *kernel.ShapeCounts {
	counts := &kernel.ShapeCounts{}
	found := false

	for _, line := range strings.Split(raw, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 3 || fields[1] != ":" {
			continue
		}
		n, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		switch fields[0] {
		case "SOLID":
			counts.Solids = n
		case "SHELL":
			counts.Shells = n
		case "FACE":
			counts.Faces = n
		case "WIRE":
			counts.Wires = n
		case "EDGE":
			counts.Edges = n
		case "VERTEX":
			counts.Vertices = n
		default:
			continue
		}
		found = true
	}

	if !found {
		return nil
	}
	return counts
}

// parseValidity reads the kernel's checkshape verdict. Returns nil when the
// output matches neither the valid nor the faulty phrasing.
func parseValidity(raw string) *bool {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "seems to be valid"):
		v := true
		return &v
	case strings.Contains(lower, "faulty"):
		v := false
		return &v
	}
	return nil
}

// ParseVersion extracts the kernel's version line from a probe transcript.
// Prefers the line naming the toolkit, falls back to the first non-marker
// line.
func ParseVersion(stdout string) string {
	first := ""
	for _, line := range strings.Split(stdout, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, MarkerPrefix+" ") {
			continue
		}
		if strings.Contains(trimmed, "Open CASCADE") {
			return trimmed
		}
		if first == "" {
			first = trimmed
		}
	}
	return first
}
