// Package gemini implements generation.Transport on Google's Gemini API.
//
// It is an infrastructure adapter: the pipeline only sees generation.Request
// and plain response text. The transport makes exactly one GenerateContent call
// per request and translates safety blocks and empty answers into the
// generation error taxonomy. Retries, timeouts and circuit breaking live in
// generation.ResilientInvoker.
//
// Text requests go to the configured text model. Requests carrying an image are
// sent to the vision model as inline bytes followed by the prompt.
package gemini
