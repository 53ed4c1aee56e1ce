package depot

import (
	"fmt"
	"regexp"
)

// Transient object keys are derived from the upload identifier so they can
// never collide with legitimate filenames and can be filtered out of
// catalog listings. The catalog filter below must stay in sync with these
// formats.
func metaKey(uploadID string) string {
	return uploadID + ".meta"
}

func chunkKey(uploadID string, partIndex int) string {
	return fmt.Sprintf("%s.chunk.%d", uploadID, partIndex)
}

// transientKeyPattern matches "{uploadId}.meta" and
// "{uploadId}.chunk.{index}" keys, where uploadId is a UUID.
var transientKeyPattern = regexp.MustCompile(`^[0-9a-fA-F-]{36}\.(meta|chunk\.[0-9]+)$`)

func isTransientKey(key string) bool {
	return transientKeyPattern.MatchString(key)
}
