package task

import (
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	idAlphabet     = "0123456789abcdefghijklmnopqrstuvwxyz"
	idSuffixLength = 9
)

// NewID returns an identifier of the form task_<unix millis>_<random suffix>.
func NewID(now time.Time) string {
	return fmt.Sprintf("task_%d_%s", now.UnixMilli(), gonanoid.MustGenerate(idAlphabet, idSuffixLength))
}
