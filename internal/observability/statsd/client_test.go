package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMetricName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" admission/jobs ": "admission_jobs",
		"foo..bar":         "foo.bar",
		".ledger.debit.":   "ledger.debit",
		"multi  space":     "multi__space",
		"   ":              "",
	}
	for input, want := range tests {
		assert.Equal(t, want, normalizeMetricName(input), input)
	}
	assert.Equal(t, "sarbatch", sanitizePrefix(" ..sarbatch. "))
}

func TestFormatTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{"env": "prod", " service ": " sarbatch "}
	local := map[string]string{"result": " accepted ", "": "ignored", "env": "stage"}

	assert.Equal(t, "|#env:stage,result:accepted,service:sarbatch", formatTags(global, local))
	assert.Empty(t, formatTags(nil, nil))
	assert.Equal(t, "prod", global["env"], "inputs must not be mutated")
}

func TestClientEncode(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Config{Prefix: "sarbatch.", GlobalTags: map[string]string{"env": "test"}})
	require.NoError(t, err)

	line, ok := c.encode("admission.jobs", "3", "c", map[string]string{"job_type": "RTC_GAMMA"})
	require.True(t, ok)
	assert.Equal(t, "sarbatch.admission.jobs:3|c|#env:test,job_type:RTC_GAMMA", line)

	_, ok = c.encode(" . ", "1", "c", nil)
	assert.False(t, ok)
}

func TestClientSendsOverUDP(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	c, err := NewClient(Config{Enabled: true, Address: pc.LocalAddr().String(), Prefix: "sarbatch"})
	require.NoError(t, err)
	require.True(t, c.Enabled())

	c.Timing("admission.duration", 1500*time.Microsecond, nil)

	buf := make([]byte, 512)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "sarbatch.admission.duration:1.5|ms", string(buf[:n]))

	require.NoError(t, c.Close())
	assert.False(t, c.Enabled())
	require.NoError(t, c.Close())
	c.Count("after.close", 1, nil)
}

func TestNilAndDisabledClients(t *testing.T) {
	t.Parallel()

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
	assert.NoError(t, nilClient.Close())
	nilClient.Gauge("ignored", 1, nil)

	c, err := NewClient(Config{Enabled: true, Address: "   "})
	require.NoError(t, err)
	assert.False(t, c.Enabled())
	c.Count("ignored", 1, nil)
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statsd dial")
}
