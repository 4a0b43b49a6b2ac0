// Package report persists a YAML summary of a completed universal build:
// the built target, merged architectures, sealed artifacts and any merge
// fallbacks. The file gives scripts a machine-readable alternative to
// scraping warning lines from the log.
package report
