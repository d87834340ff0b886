package pin

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashVerifyRoundTrip(t *testing.T) {
	g := NewGuard(1_000)
	for _, p := range []string{"1234", "00000", "987654"} {
		record, err := g.Hash(p)
		require.NoError(t, err)
		assert.True(t, g.Verify(p, record), p)

		for i := range p {
			mutated := []byte(p)
			mutated[i] = '0' + (mutated[i]-'0'+1)%10
			assert.False(t, g.Verify(string(mutated), record), "mutation %d of %s", i, p)
		}
	}
}

func TestHashRejectsInvalidFormat(t *testing.T) {
	g := NewGuard(1_000)
	for _, p := range []string{"", "123", "1234567", "12a4", " 1234", "١٢٣٤"} {
		_, err := g.Hash(p)
		assert.ErrorIs(t, err, ErrInvalidFormat, p)
	}
}

func TestHashUsesFreshSalt(t *testing.T) {
	g := NewGuard(1_000)
	a, err := g.Hash("1234")
	require.NoError(t, err)
	b, err := g.Hash("1234")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRecordEncoding(t *testing.T) {
	record, err := NewGuard(1_000).Hash("1234")
	require.NoError(t, err)
	salt, key, ok := strings.Cut(record, ":")
	require.True(t, ok)
	assert.Len(t, salt, saltLength*2)
	assert.Len(t, key, keyLength*2)
}

func TestVerifyMalformedRecord(t *testing.T) {
	g := NewGuard(1_000)
	good, err := g.Hash("1234")
	require.NoError(t, err)
	_, key, _ := strings.Cut(good, ":")

	cases := map[string]string{
		"empty":        "",
		"no separator": strings.Replace(good, ":", "", 1),
		"empty salt":   ":" + key,
		"empty key":    "abcd:",
		"non hex salt": "zz:" + key,
		"short key":    "abcd:abcd",
		"non hex key":  "abcd:" + strings.Repeat("g", keyLength*2),
		"extra colon":  good + ":00",
	}
	for name, record := range cases {
		assert.NotPanics(t, func() {
			assert.False(t, g.Verify("1234", record), name)
		})
	}
	assert.False(t, g.Verify("12", good))
}

// Verification cost should not depend on where the first wrong digit sits.
func TestVerifyTimingIndependentOfMismatchPosition(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	g := NewGuard(2_000)
	record, err := g.Hash("123456")
	require.NoError(t, err)

	median := func(candidate string) time.Duration {
		samples := make([]time.Duration, 0, 41)
		for i := 0; i < cap(samples); i++ {
			start := time.Now()
			g.Verify(candidate, record)
			samples = append(samples, time.Since(start))
		}
		sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
		return samples[len(samples)/2]
	}

	// warm up
	median("123456")

	early := median("023456")
	late := median("123450")
	ratio := float64(early) / float64(late)
	assert.InDelta(t, 1.0, ratio, 0.5, "early=%s late=%s", early, late)
}

func TestPackageDefaults(t *testing.T) {
	assert.True(t, ValidFormat("4321"))
	assert.False(t, ValidFormat("43a1"))
	assert.Equal(t, DefaultIterations, Default.iterations)
	assert.Equal(t, DefaultIterations, NewGuard(0).iterations)
}
