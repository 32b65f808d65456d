package axpert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveExact(t *testing.T) {
	assert := assert.New(t)

	for _, m := range []string{"QPI", "QID", "QVFW", "QVFW2", "QPIRI", "QFLAG", "QPIGS", "QMOD", "QPIWS", "QDI", "QMCHGCR", "QMUCHGCR", "QBOOT", "QOPM", "QPGS0"} {
		entry, ok := Resolve(m)
		assert.True(ok, m)
		assert.Equal(KindQuery, entry.Kind, m)
		assert.NotNil(entry.Schema, m)
	}

	entry, ok := Resolve("PF")
	assert.True(ok)
	assert.Equal(KindCommand, entry.Kind)
}

func TestResolveCommandPrefixes(t *testing.T) {
	assert := assert.New(t)

	cases := map[string]string{
		"POP02":    "POP",
		"PCP01":    "PCP",
		"PBCV48.0": "PBCV",
		"PBDV51.0": "PBDV",
		"MCHGC010": "MCHGC",
		"MUCHGC02": "MUCHGC",
		"PEa":      "PE",
		"PDb":      "PD",
		"F50":      "F",
		"PBT02":    "PBT",
	}
	for mnemonic, pattern := range cases {
		entry, ok := Resolve(mnemonic)
		assert.True(ok, mnemonic)
		assert.Equal(pattern, entry.Pattern, mnemonic)
		assert.Equal(KindCommand, entry.Kind, mnemonic)
	}
}

func TestResolveBarePrefixIsNotACommand(t *testing.T) {
	// A setting command without its parameter suffix is incomplete.
	_, ok := Resolve("PBCV")
	assert.False(t, ok)
}

func TestResolveUnknown(t *testing.T) {
	for _, m := range []string{"ZZZ", "", "Q", "XPIGS"} {
		_, ok := Resolve(m)
		assert.False(t, ok, m)
	}
}

func TestResolvePrefersLongestPrefix(t *testing.T) {
	// PBCV48.0 must hit PBCV, not PB-something shorter.
	entry, ok := Resolve("PBCV48.0")
	assert.True(t, ok)
	assert.Equal(t, "PBCV", entry.Pattern)
}

func TestListKnownMnemonics(t *testing.T) {
	assert := assert.New(t)

	list := ListKnownMnemonics()
	assert.NotEmpty(list)

	byPattern := map[string]MnemonicInfo{}
	for _, info := range list {
		byPattern[info.Pattern] = info
	}

	qpigs, ok := byPattern["QPIGS"]
	assert.True(ok)
	assert.Equal(KindQuery, qpigs.Kind)
	assert.Len(qpigs.Fields, 17)
	assert.Len(qpigs.Units, 17)
	assert.Equal("grid_voltage", qpigs.Fields[0])
	assert.Equal("V", qpigs.Units[0])

	qpiws, ok := byPattern["QPIWS"]
	assert.True(ok)
	assert.Len(qpiws.Fields, 32)

	qpiri, ok := byPattern["QPIRI"]
	assert.True(ok)
	assert.True(qpiri.Unverified)

	pcp, ok := byPattern["PCP"]
	assert.True(ok)
	assert.Equal(KindCommand, pcp.Kind)
	assert.True(pcp.Unverified)

	mchgc, ok := byPattern["MCHGC"]
	assert.True(ok)
	assert.Equal(KindCommand, mchgc.Kind)
}
