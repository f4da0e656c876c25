// Package logging provides file-based logging with rotation for
// ruby-fast-lsp, under ~/.ruby-fast-lsp/logs/.
//
// The serve command always logs to server.log and writes nothing to
// stdout or stderr; --debug raises its level from info to debug. The
// index command logs to index.log and to stderr.
package logging
