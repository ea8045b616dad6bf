// Package logx wraps zerolog behind a small structured-logging API.
//
// Components hold plain Logger values (cheap to copy, safe zero value).
// The Service owns the sinks and levels and can swap them at runtime via
// Apply(), so loggers created before a config reload keep working.
package logx
