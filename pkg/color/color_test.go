package color

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func withColor(t *testing.T, on bool) {
	t.Helper()
	prev := Enabled()
	if on {
		Enable()
	} else {
		Disable()
	}
	t.Cleanup(func() {
		if prev {
			Enable()
		} else {
			Disable()
		}
	})
}

func TestEnableDisable(t *testing.T) {
	withColor(t, true)
	assert.True(t, Enabled())
	Disable()
	assert.False(t, Enabled())
}

func TestFormatters_Enabled(t *testing.T) {
	withColor(t, true)

	assert.Equal(t, Green+"ok"+Reset, Success("ok"))
	assert.Equal(t, Red+"bad 2"+Reset, Errorf("bad %d", 2))
	assert.Equal(t, Yellow+"careful"+Reset, Warning("careful"))
	assert.Equal(t, Cyan+"note"+Reset, Info("note"))
	assert.Equal(t, Bold+"Title"+Reset, Header("Title"))
	assert.Equal(t, Green+"VALID"+Reset, Verdict(true))
	assert.Equal(t, Red+"INVALID"+Reset, Verdict(false))
}

func TestFormatters_Disabled(t *testing.T) {
	withColor(t, false)

	assert.Equal(t, "ok", Success("ok"))
	assert.Equal(t, "done 3", Successf("done %d", 3))
	assert.Equal(t, "INVALID", Verdict(false))
	assert.Equal(t, "a591a6d40bf4", Hash("a591a6d40bf420404a011733cfb7b190d62c65bf0bcda32b57b277d9ad9f146e"))
	assert.Equal(t, "short", Hash("short"))
}
