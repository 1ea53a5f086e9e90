package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddressPort_Inet(t *testing.T) {
	addr, warns, err := ParseAddressPort("127.0.0.1:9312")
	require.NoError(t, err)
	assert.Empty(t, warns)
	assert.Equal(t, FamilyInet, addr.Family)
	assert.Equal(t, "127.0.0.1", addr.Host)
	assert.Equal(t, 9312, addr.Port)
}

func TestParseAddressPort_Unix(t *testing.T) {
	addr, warns, err := ParseAddressPort("/tmp/sock")
	require.NoError(t, err)
	assert.Empty(t, warns)
	assert.Equal(t, FamilyUnix, addr.Family)
	assert.Equal(t, "/tmp/sock", addr.Path)
}

func TestParseAddressPort_DefaultsPortWithWarning(t *testing.T) {
	addr, warns, err := ParseAddressPort("localhost")
	require.NoError(t, err)
	assert.Equal(t, FamilyInet, addr.Family)
	assert.Equal(t, "localhost", addr.Host)
	assert.Equal(t, DefaultAgentPort, addr.Port)
	assert.Len(t, warns, 1)
}

func TestParseAddressPort_RejectsPortOutOfRange(t *testing.T) {
	_, _, err := ParseAddressPort("host:99999")
	assert.Error(t, err)
}

func TestParseAddressPort_RejectsInvalidHost(t *testing.T) {
	_, _, err := ParseAddressPort("bad host name:9312")
	assert.Error(t, err)
}

func TestParseIndexList_TrimsAndFilters(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, ParseIndexList("a, b ,c"))
}

func TestParseIndexList_WhitespaceOnlyIsEmpty(t *testing.T) {
	assert.Empty(t, ParseIndexList("   "))
	assert.Empty(t, ParseIndexList(""))
}

func TestParseOptions_Defaults(t *testing.T) {
	opts, err := ParseOptions("")
	require.NoError(t, err)
	assert.Equal(t, StrategyRandom, opts.Strategy)
	assert.False(t, opts.Persistent)
}

func TestParseOptions_ParsesKnownKeys(t *testing.T) {
	opts, err := ParseOptions("conn=pconn, ha_strategy=roundrobin, blackhole=1, retry_count=3")
	require.NoError(t, err)
	assert.True(t, opts.Persistent)
	assert.Equal(t, StrategyRoundRobin, opts.Strategy)
	assert.True(t, opts.Blackhole)
	assert.Equal(t, 3, opts.RetryCount)
}

func TestParseOptions_RejectsUnknownKey(t *testing.T) {
	_, err := ParseOptions("bogus=1")
	assert.Error(t, err)
}

func TestParseAgentSpec_SingleMirrorNoOptionsNoIndexes(t *testing.T) {
	spec, warns, err := ParseAgentSpec("db1.example.com:9312")
	require.NoError(t, err)
	assert.Empty(t, warns)
	require.Len(t, spec.Mirrors, 1)
	assert.Equal(t, "db1.example.com", spec.Mirrors[0].Host)
	assert.Empty(t, spec.Indexes)
}

func TestParseAgentSpec_MultipleMirrorsWithOptionsAndIndexes(t *testing.T) {
	spec, _, err := ParseAgentSpec("db1:9312|db2:9312[ha_strategy=nodeads,conn=persistent]:main,delta")
	require.NoError(t, err)
	require.Len(t, spec.Mirrors, 2)
	assert.Equal(t, "db1", spec.Mirrors[0].Host)
	assert.Equal(t, "db2", spec.Mirrors[1].Host)
	assert.Equal(t, StrategyAvoidDead, spec.Options.Strategy)
	assert.True(t, spec.Options.Persistent)
	assert.Equal(t, []string{"main", "delta"}, spec.Indexes)
}

func TestParseAgentSpec_UnixMirrorLastTokenHasNoIndexAmbiguity(t *testing.T) {
	spec, _, err := ParseAgentSpec("db1:9312|/var/run/searchd.sock")
	require.NoError(t, err)
	require.Len(t, spec.Mirrors, 2)
	assert.Equal(t, FamilyUnix, spec.Mirrors[1].Family)
	assert.Empty(t, spec.Indexes)
}

func TestParseAgentSpec_RejectsUnmatchedBracket(t *testing.T) {
	_, _, err := ParseAgentSpec("db1:9312]")
	assert.Error(t, err)
}
