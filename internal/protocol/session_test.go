package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattxcnm/goalzero-ble/internal/transport"
)

// fakeLink scripts notification chunks per write.
type fakeLink struct {
	notifications chan []byte
	lost          chan struct{}
	written       [][]byte

	// onWrite, when set, runs after each write so tests can enqueue the
	// scripted response.
	onWrite func(payload []byte)
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		notifications: make(chan []byte, 16),
		lost:          make(chan struct{}),
	}
}

func (l *fakeLink) Write(ctx context.Context, payload []byte) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	l.written = append(l.written, buf)
	if l.onWrite != nil {
		l.onWrite(buf)
	}
	return nil
}

func (l *fakeLink) Notifications() <-chan []byte { return l.notifications }
func (l *fakeLink) Lost() <-chan struct{}        { return l.lost }

func fastOptions() Options {
	return Options{
		FirstChunkTimeout: 20 * time.Millisecond,
		CollectTimeout:    50 * time.Millisecond,
		Attempts:          3,
		RetryDelay:        time.Millisecond,
	}
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func chunk(n int, fill byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = fill
	}
	return b
}

func TestExchangeCollectsTwoChunks(t *testing.T) {
	link := newFakeLink()
	link.onWrite = func([]byte) {
		link.notifications <- chunk(18, 0xAA)
		link.notifications <- chunk(18, 0xBB)
	}
	s := NewSession(link, quietLog(), fastOptions())

	frame, err := s.Exchange(context.Background(), Alta80Status())
	require.NoError(t, err)
	require.Len(t, frame, 36)
	assert.Equal(t, byte(0xAA), frame[0])
	assert.Equal(t, byte(0xBB), frame[18])
	assert.Len(t, link.written, 1)
}

func TestExchangeExtraChunkIgnored(t *testing.T) {
	link := newFakeLink()
	link.onWrite = func([]byte) {
		link.notifications <- chunk(18, 0x01)
		link.notifications <- chunk(18, 0x02)
		link.notifications <- chunk(18, 0x03)
	}
	s := NewSession(link, quietLog(), fastOptions())

	frame, err := s.Exchange(context.Background(), Alta80Status())
	require.NoError(t, err)
	assert.Len(t, frame, 36, "collection stops at the expected chunk count")
}

func TestExchangeRetriesRotateVariants(t *testing.T) {
	link := newFakeLink()
	writes := 0
	link.onWrite = func([]byte) {
		writes++
		if writes == 3 {
			link.notifications <- chunk(18, 0x01)
			link.notifications <- chunk(18, 0x02)
		}
	}
	s := NewSession(link, quietLog(), fastOptions())
	s.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	frame, err := s.Exchange(context.Background(), Alta80Status())
	require.NoError(t, err)
	assert.Len(t, frame, 36)

	require.Len(t, link.written, 3)
	assert.Equal(t, []byte{0xFE, 0xFE, 0x03, 0x01, 0x02, 0x00}, link.written[0])
	assert.Equal(t, []byte{0xFE, 0xFE, 0x03, 0x01, 0x02}, link.written[1])
	assert.Equal(t, []byte{0xFE, 0xFE, 0x03, 0x01, 0x02, 0x00, 0x00}, link.written[2])
}

func TestExchangeNoResponse(t *testing.T) {
	link := newFakeLink()
	s := NewSession(link, quietLog(), fastOptions())
	s.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	_, err := s.Exchange(context.Background(), Alta80Status())
	assert.ErrorIs(t, err, ErrNoResponse)
	assert.Len(t, link.written, 3, "all attempts used")
}

func TestExchangeIncompleteResponse(t *testing.T) {
	link := newFakeLink()
	link.onWrite = func([]byte) {
		link.notifications <- chunk(18, 0x01)
		// Second chunk never comes.
	}
	s := NewSession(link, quietLog(), fastOptions())

	_, err := s.Exchange(context.Background(), Alta80Status())
	assert.ErrorIs(t, err, ErrIncompleteResponse)
}

func TestExchangeLinkLossMidResponse(t *testing.T) {
	link := newFakeLink()
	link.onWrite = func([]byte) {
		link.notifications <- chunk(18, 0x01)
		close(link.lost)
	}
	s := NewSession(link, quietLog(), fastOptions())

	_, err := s.Exchange(context.Background(), Alta80Status())
	assert.ErrorIs(t, err, transport.ErrConnectionLost)
}

func TestExchangeFireAndForget(t *testing.T) {
	link := newFakeLink()
	s := NewSession(link, quietLog(), fastOptions())

	frame, err := s.Exchange(context.Background(), Alta80EcoMode(true))
	require.NoError(t, err)
	assert.Nil(t, frame)
	assert.Len(t, link.written, 1, "a successful write is the acknowledgement")
}

func TestExchangeDrainsStaleChunks(t *testing.T) {
	link := newFakeLink()
	link.notifications <- chunk(18, 0xEE) // leftover from an earlier command
	link.onWrite = func([]byte) {
		link.notifications <- chunk(18, 0x01)
		link.notifications <- chunk(18, 0x02)
	}
	s := NewSession(link, quietLog(), fastOptions())

	frame, err := s.Exchange(context.Background(), Alta80Status())
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), frame[0], "stale chunk must not leak into the response")
}

func TestExchangeCancellation(t *testing.T) {
	link := newFakeLink()
	ctx, cancel := context.WithCancel(context.Background())
	link.onWrite = func([]byte) { cancel() }
	s := NewSession(link, quietLog(), fastOptions())

	_, err := s.Exchange(ctx, Alta80Status())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSetpointEncoding(t *testing.T) {
	tests := []struct {
		name string
		zone Zone
		temp int
		want []byte
	}{
		{
			name: "zone1 at 34F",
			zone: Zone1,
			temp: 34,
			want: []byte{0xFE, 0xFE, 0x04, 0x05, 0x22, 0x02, 0x2D},
		},
		{
			name: "zone2 at 0F",
			zone: Zone2,
			temp: 0,
			want: []byte{0xFE, 0xFE, 0x04, 0x06, 0x00, 0x02, 0x0C},
		},
		{
			name: "negative temp uses two's complement",
			zone: Zone1,
			temp: -4,
			want: []byte{0xFE, 0xFE, 0x04, 0x05, 0xFC, 0x02, 0x07},
		},
		{
			name: "above range clamps to 68",
			zone: Zone1,
			temp: 90,
			want: []byte{0xFE, 0xFE, 0x04, 0x05, 0x44, 0x02, 0x4F},
		},
		{
			name: "below range clamps to -4",
			zone: Zone2,
			temp: -40,
			want: []byte{0xFE, 0xFE, 0x04, 0x06, 0xFC, 0x02, 0x08},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := Alta80Setpoint(tt.zone, tt.temp)
			assert.Equal(t, tt.want, cmd.Payload)
		})
	}
}

func TestSetpointIdempotence(t *testing.T) {
	a := Alta80Setpoint(Zone1, 37)
	b := Alta80Setpoint(Zone1, 37)
	assert.Equal(t, a.Payload, b.Payload, "same request must produce identical bytes")
}

func TestSettingsCommands(t *testing.T) {
	eco := Alta80EcoMode(true)
	require.Len(t, eco.Payload, 20)
	assert.Equal(t, byte(0x02), eco.Payload[3])

	ecoOff := Alta80EcoMode(false)
	assert.Equal(t, byte(0x01), ecoOff.Payload[3])

	prot := Alta80BatteryProtection(ProtectionHigh)
	require.Len(t, prot.Payload, 20)
	assert.Equal(t, byte(0x02), prot.Payload[7])

	on := Alta80Power(true)
	off := Alta80Power(false)
	assert.Equal(t, byte(0x01), on.Payload[7])
	assert.Equal(t, byte(0x00), off.Payload[7])
	assert.Equal(t, byte(0x65), on.Payload[19])
	assert.Equal(t, byte(0x64), off.Payload[19])
}

func TestParseBatteryProtection(t *testing.T) {
	for in, want := range map[string]BatteryProtection{
		"low": ProtectionLow, "med": ProtectionMed, "Medium": ProtectionMed, "HIGH": ProtectionHigh,
	} {
		got, err := ParseBatteryProtection(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseBatteryProtection("max")
	assert.ErrorIs(t, err, ErrCommandRejected)
}
