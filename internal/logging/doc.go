// Package logging builds the slog loggers used by every pipeline component.
//
// Each binary constructs one logger tagged with its component name and a
// per-run UUID. Output fans out to the console (human-readable key=value
// lines) and a per-component log file (text or JSON).
package logging
