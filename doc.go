// Package reflexion is a Go engine for iterative reasoning refinement with
// backtracking search over language-model outputs.
//
// The engine runs generation attempts against an expected outcome, classifies
// how far each result diverges, and decides between refining in place,
// backtracking to an alternative reasoning path, or accepting the best
// partial result within a finite budget.
//
// Key Components:
//
//   - State: immutable snapshots of reasoning states, a LIFO branch-point
//     stack, and pluggable persistence (in-memory and SQLite).
//
//   - DeadEnd: toggleable heuristics that flag unrecoverable traces, such as
//     repeated failure signatures, circular reasoning, and stalled progress.
//
//   - Budget: a mutex-protected unit budget with per-level allocations and a
//     priority reserve, so exploration always terminates.
//
//   - Explore: diverse alternative generation that steers clear of paths
//     that already failed.
//
//   - Correction: divergence classification, correction-strategy selection,
//     and the iterative generate-validate-correct loop.
//
//   - TreeSearch: BFS, DFS, and best-first exploration of candidate thoughts
//     with pruning and bounded concurrent evaluation.
//
//   - Engine: the orchestrator composing all of the above behind a single
//     Run call.
//
// Generation and evaluation are injected functions, so the core never talks
// to a model directly; pkg/llms/anthropic adapts Anthropic's Messages API to
// those function types.
package reflexion
