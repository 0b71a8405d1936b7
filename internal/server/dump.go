package server

import (
	"encoding/hex"
	"log"
)

const previewBytes = 32

// logPreview logs the size of an outgoing payload and its leading bytes in hex.
func logPreview(logger *log.Logger, ctype string, b []byte) {
	if logger == nil || len(b) == 0 {
		return
	}
	head := b[:min(len(b), previewBytes)]
	logger.Printf("OUT %s %d bytes (first %d shown): %s", ctype, len(b), len(head), hex.EncodeToString(head))
}
