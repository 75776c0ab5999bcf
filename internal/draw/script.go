package draw

import (
	"fmt"
	"strings"

	"occfuse/internal/kernel"
)

// MarkerPrefix starts every transcript line the parser cares about. The
// generated script emits these around each delegated command so status and
// timing can be attributed to individual plan steps; everything else on
// stdout is kernel noise and is kept as raw step output.
const MarkerPrefix = "@occfuse"

// shapeVar returns the Tcl variable holding the output shape of step idx.
func shapeVar(idx int) string {
	return fmt.Sprintf("s%d", idx)
}

// validatePath rejects path arguments that brace quoting cannot carry
// literally into Tcl.
func validatePath(path string) error {
	if strings.ContainsAny(path, "{}") {
		return fmt.Errorf("path contains a brace: %q", path)
	}
	if strings.ContainsAny(path, "\n\r") {
		return fmt.Errorf("path contains a newline: %q", path)
	}
	if strings.HasSuffix(path, `\`) {
		return fmt.Errorf("path ends with a backslash: %q", path)
	}
	return nil
}

// tclPath renders a validated path as a brace-quoted Tcl word.
func tclPath(path string) string {
	return "{" + path + "}"
}

// Script renders the Tcl batch session for a plan. Output is deterministic
// for a given plan and options.
//
// Session layout: plugin loads, the kernel's boolean-parallel switch, one
// guarded block per step, the session end marker. Each block measures the
// delegated command with the kernel's own clock so process startup never
// counts against a step, and aborts the session on the first failure after
// emitting an err marker.
func Script(plan *kernel.Plan, opts kernel.Options) (string, error) {
	if plan == nil || plan.Len() == 0 {
		return "", fmt.Errorf("empty plan")
	}
	if err := plan.Err(); err != nil {
		return "", fmt.Errorf("invalid plan: %w", err)
	}
	for _, step := range plan.Steps() {
		if step.Path != "" {
			if err := validatePath(step.Path); err != nil {
				return "", err
			}
		}
	}

	var b strings.Builder
	b.WriteString("pload MODELING\n")
	b.WriteString("pload XSDRAW\n")
	if opts.RunParallel {
		b.WriteString("brunparallel 1\n")
	} else {
		b.WriteString("brunparallel 0\n")
	}
	b.WriteString("proc occfuse_fail {idx msg} {\n")
	b.WriteString("    set msg [string map [list \"\\n\" \" \" \"\\r\" \" \"] $msg]\n")
	fmt.Fprintf(&b, "    puts \"%s step $idx err $msg\"\n", MarkerPrefix)
	fmt.Fprintf(&b, "    puts {%s session end}\n", MarkerPrefix)
	b.WriteString("    exit 1\n")
	b.WriteString("}\n")
	fmt.Fprintf(&b, "puts {%s session begin}\n", MarkerPrefix)

	for _, step := range plan.Steps() {
		if err := writeStep(&b, step); err != nil {
			return "", err
		}
	}

	fmt.Fprintf(&b, "puts {%s session end}\n", MarkerPrefix)
	b.WriteString("exit\n")
	return b.String(), nil
}

func writeStep(b *strings.Builder, step kernel.Step) error {
	idx := step.Index
	fmt.Fprintf(b, "puts {%s step %d begin %s}\n", MarkerPrefix, idx, step.Op)
	fmt.Fprintf(b, "set t%d [clock microseconds]\n", idx)

	guard := func(command string) {
		fmt.Fprintf(b, "if {[catch {%s} msg]} { occfuse_fail %d $msg }\n", command, idx)
	}
	require := func(variable, reason string) {
		fmt.Fprintf(b, "if {![isdraw %s]} { occfuse_fail %d {%s} }\n", variable, idx, reason)
	}

	switch step.Op {
	case kernel.OpImportSTEP:
		// Transfer root 1 only; the harness names it <var>_1.
		out := shapeVar(idx)
		guard(fmt.Sprintf("stepread %s %s 1", tclPath(step.Path), out))
		require(out+"_1", "file gave no transferable root")
		fmt.Fprintf(b, "renamevar %s_1 %s\n", out, out)

	case kernel.OpFuse:
		if len(step.Inputs) != 2 {
			return fmt.Errorf("step %d: fuse needs two inputs", idx)
		}
		out := shapeVar(idx)
		guard(fmt.Sprintf("bfuse %s %s %s", out, shapeVar(step.Inputs[0]), shapeVar(step.Inputs[1])))
		require(out, "fuse produced no result")

	case kernel.OpMakeConnected:
		if len(step.Inputs) != 1 {
			return fmt.Errorf("step %d: make_connected needs one input", idx)
		}
		out := shapeVar(idx)
		guard(fmt.Sprintf("makeconnected %s %s", out, shapeVar(step.Inputs[0])))
		require(out, "make_connected produced no result")

	case kernel.OpExportBREP:
		if len(step.Inputs) != 1 {
			return fmt.Errorf("step %d: export_brep needs one input", idx)
		}
		guard(fmt.Sprintf("save %s %s", shapeVar(step.Inputs[0]), tclPath(step.Path)))

	case kernel.OpStats:
		if len(step.Inputs) != 1 {
			return fmt.Errorf("step %d: stats needs one input", idx)
		}
		guard(fmt.Sprintf("nbshapes %s", shapeVar(step.Inputs[0])))

	case kernel.OpCheck:
		if len(step.Inputs) != 1 {
			return fmt.Errorf("step %d: check needs one input", idx)
		}
		guard(fmt.Sprintf("checkshape %s", shapeVar(step.Inputs[0])))

	default:
		return fmt.Errorf("step %d: unknown operation %q", idx, step.Op)
	}

	fmt.Fprintf(b, "puts \"%s step %d ok [expr {[clock microseconds] - $t%d}]\"\n", MarkerPrefix, idx, idx)
	return nil
}

// probeScript asks the kernel for its version banner.
const probeScript = "puts {" + MarkerPrefix + " session begin}\n" +
	"dversion\n" +
	"puts {" + MarkerPrefix + " session end}\n" +
	"exit\n"
