// Package llm provides the optional language model path of the query engine:
// translating a question into a read-only SQL query and summarizing query
// results as prose. It supports OpenAI-compatible, Anthropic and Gemini
// providers behind one Client interface, with response caching and a
// non-blocking rate limiter.
package llm
