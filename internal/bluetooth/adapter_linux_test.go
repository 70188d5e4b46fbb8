package bluetooth

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	tinygo "tinygo.org/x/bluetooth"
)

func TestAdapterForNamed(t *testing.T) {
	a := adapterFor("hci1", slog.New(slog.DiscardHandler))
	assert.NotNil(t, a)
	assert.NotSame(t, tinygo.DefaultAdapter, a)
}
