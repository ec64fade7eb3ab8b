// Package tools wraps the external collaborators the pipeline drives: the
// card-authoring tool, the batch image tool and zip packaging.
//
// The contract with every external tool is file-based. A non-zero exit or a
// missing expected output is reported as an external_tool error, which the
// scheduler may retry. Prefer this package over ad-hoc exec.Command usage.
package tools
