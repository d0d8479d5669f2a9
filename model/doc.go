// Package model defines the uniform model-provider client contract and the
// response pipeline that drives it. Provider adapters (anthropic, openai,
// ollama) normalize vendor SDKs behind a single Call method; the Pipeline
// appends structured-output instructions, classifies every failure into a
// closed status set, retries transient outages and always returns a Response
// value rather than raising past its boundary.
package model
