// Package logx wraps zerolog behind a small, swap-safe logging facade.
//
// Components receive a Logger value instead of reaching for a global.
// The Service owns the sink configuration (console, file) and can swap
// the root logger atomically on config reload without invalidating
// Loggers that were handed out earlier.
package logx
