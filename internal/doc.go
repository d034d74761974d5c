// Package internal contains the core implementation packages for tsxlive.
//
// # Package Organization
//
// The internal packages are organized along the path an edit takes from
// the editor to the rendered preview:
//
//   - types: source documents, compile requests and results, diagnostics
//   - dispatch: debounces edits and drops stale compile results
//   - worker: compile channel with a lazily started worker pool
//   - transform: esbuild-based TSX to UMD compiler
//   - cache: LRU cache of compiled modules
//   - sandbox: goja runtime that executes compiled modules against a
//     virtual DOM surface
//   - preview: one editor session's pipeline wiring the stages together
//   - server: playground page, HTTP API and websocket sessions
//   - middleware: HTTP middleware stack of the server
//   - watcher: file system source feed for the watch command
//   - config, logging, errors, version: ambient support
//
// # Inter-Package Communication
//
//   - The dispatcher owns request ids and is the only writer of compile
//     requests into the worker channel
//   - Worker results flow back through a single handler into the dispatcher,
//     which forwards only the latest one
//   - The preview pipeline runs each accepted module in its sandbox and
//     reports compiled, diagnostic and rendered events to listeners
//   - Server sessions and the CLI are both pipeline listeners
package internal
