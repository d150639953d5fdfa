// Package generation is the boundary between the pipeline and external
// generative models. It defines the request shape, the single-call Transport
// implemented by platform adapters (Gemini), and a resilient Invoker that adds
// per-attempt timeouts, fixed-delay retries and a circuit breaker on top.
package generation
