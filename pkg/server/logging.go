package server

import (
	"io"
	"log"
	"os"
)

var (
	errorLog = log.New(os.Stderr, "ERROR: ", log.LstdFlags)
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)
)

// EnableDebugLogging routes debug output to stdout instead of discarding it
func (s *Server) EnableDebugLogging() {
	debugLog = log.New(os.Stdout, "DEBUG: ", log.LstdFlags|log.Lmicroseconds)
}
