// Package structured compiles logical output schemas into prompt
// instructions and parses model text back into validated values. It is the
// boundary where free-form model output becomes typed data: parse failures
// are reported as values, never panics, and always preserve the raw text for
// operator inspection.
package structured
