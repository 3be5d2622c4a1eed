package speech

import "errors"

var (
	// ErrProtocolDesync reports a violated extractor/engine contract: tag
	// queue underflow or leftovers, or slot/alignment length mismatch.
	ErrProtocolDesync = errors.New("protocol desync")

	// ErrEngineFailure reports a frontend or inference failure for a sentence.
	ErrEngineFailure = errors.New("engine failure")
)
