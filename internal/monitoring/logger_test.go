package monitoring

import (
	"fmt"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	defer SetLogger(log.Printf)

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	Logf("stored fit %s", "fit_1")
	assert.Equal(t, []string{"stored fit fit_1"}, lines)

	SetLogger(nil)
	Logf("muted")
	assert.Len(t, lines, 1)
}
