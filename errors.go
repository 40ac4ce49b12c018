/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"log"
	"time"
)

// Sentinel errors for the boundary layer. Handlers wrap these with
// fmt.Errorf("...: %w", err) and the HTTP layer maps each class to a
// status code, suppressing internal detail for anything unclassified.
var (
	errValidation = errors.New("validation failed")
	errAuth       = errors.New("unauthorized")
	errNotFound   = errors.New("not found")
	errConflict   = errors.New("conflict")
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}
