package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// NextRevision returns the revision following rev, "N-<hex>" where N is
// the generation. An empty rev starts at generation 1.
func NextRevision(rev string) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%d-%s", RevisionGeneration(rev)+1, token)
}

// RevisionGeneration parses the generation prefix of rev, 0 if malformed.
func RevisionGeneration(rev string) int {
	prefix, _, found := strings.Cut(rev, "-")
	if !found {
		return 0
	}
	n, err := strconv.Atoi(prefix)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
