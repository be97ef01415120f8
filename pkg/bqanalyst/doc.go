// Package bqanalyst implements a conversational BigQuery data analyst.
//
// The Analyst drives a tool-calling model loop over a read-only BigQuery
// tool set, committing the conversation transcript to a checkpoint store
// after every turn. Conversations are addressed by thread id: a repeat
// query on the same thread resumes from the latest checkpoint with full
// context, and the thread's step-by-step history stays inspectable.
//
// Subpackages:
//   - checkpoint: versioned checkpoint persistence over a document store
//   - docstore: the document store abstraction and its backends
//   - bq: the BigQuery tool boundary with SQL safety checks
//   - config: environment and file configuration
//   - observability: logging, metrics, and tracing helpers
package bqanalyst
