package axpert

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

const qpigsPayload = "230.1 49.9 230.0 49.9 0200 0180 015 380 52.4 010 090 042 060.0 123.4 52.7 000 00000110"

func TestTokenListDecode(t *testing.T) {
	assert := assert.New(t)

	entry, ok := Resolve("QPIGS")
	assert.True(ok)

	res, err := entry.Schema.decode("QPIGS", qpigsPayload, decodeOptions{})
	assert.NoError(err)
	assert.Len(res.Fields, 17)

	// fields keep response order
	assert.Equal("grid_voltage", res.Fields[0].Key)
	assert.Equal("device_status", res.Fields[16].Key)

	v, ok := res.Get("grid_voltage")
	assert.True(ok)
	assert.Equal(TypeFloat, v.Type)
	assert.Equal(230.1, v.Float)

	v, ok = res.Get("ac_output_apparent_power")
	assert.True(ok)
	assert.Equal(TypeInt, v.Type)
	assert.Equal(int64(200), v.Int)

	v, ok = res.Get("battery_discharge_current")
	assert.True(ok)
	assert.Equal(int64(0), v.Int)

	v, ok = res.Get("device_status")
	assert.True(ok)
	assert.Equal("00000110", v.Str)
}

func TestTokenListDecodeWithUnits(t *testing.T) {
	assert := assert.New(t)

	entry, _ := Resolve("QPIGS")
	res, err := entry.Schema.decode("QPIGS", qpigsPayload, decodeOptions{withUnits: true})
	assert.NoError(err)

	v, _ := res.Get("grid_voltage")
	assert.Equal("V", v.Unit)
	assert.Equal("230.1V", v.String())

	v, _ = res.Get("heat_sink_temperature")
	assert.Equal("42°C", v.String())

	// unitless fields stay bare
	v, _ = res.Get("device_status")
	assert.Equal("00000110", v.String())
}

func TestTokenListDecodeCountMismatch(t *testing.T) {
	entry, _ := Resolve("QPIGS")
	_, err := entry.Schema.decode("QPIGS", "230.1 49.9", decodeOptions{})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestTokenListDecodeBadNumber(t *testing.T) {
	entry, _ := Resolve("QPIGS")
	payload := "abc 49.9 230.0 49.9 0200 0180 015 380 52.4 010 090 042 060.0 123.4 52.7 000 00000110"
	_, err := entry.Schema.decode("QPIGS", payload, decodeOptions{})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestDeviceModeDecode(t *testing.T) {
	assert := assert.New(t)

	entry, ok := Resolve("QMOD")
	assert.True(ok)

	res, err := entry.Schema.decode("QMOD", "B", decodeOptions{})
	assert.NoError(err)
	v, _ := res.Get("device_mode")
	assert.Equal("Battery mode", v.Str)

	// unknown codes decode to a marker, not an error
	res, err = entry.Schema.decode("QMOD", "X", decodeOptions{})
	assert.NoError(err)
	v, _ = res.Get("device_mode")
	assert.Contains(v.Str, "Unknown")
}

func TestWarningBitfieldDecode(t *testing.T) {
	assert := assert.New(t)

	entry, ok := Resolve("QPIWS")
	assert.True(ok)

	// bit 1 (inverter fault) and bit 11 (battery voltage high) set
	payload := "01000000000100000000000000000000"
	res, err := entry.Schema.decode("QPIWS", payload, decodeOptions{})
	assert.NoError(err)
	assert.Len(res.Fields, 32)
	assert.Equal([]string{"inverter_fault", "battery_voltage_high"}, res.ActiveFlags())
}

func TestWarningBitfieldLengthMismatch(t *testing.T) {
	entry, _ := Resolve("QPIWS")
	_, err := entry.Schema.decode("QPIWS", "0100", decodeOptions{})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestWarningBitfieldBadDigit(t *testing.T) {
	entry, _ := Resolve("QPIWS")
	_, err := entry.Schema.decode("QPIWS", "0100000000010000000000000000000x", decodeOptions{})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestWarningBitfieldRawOptOut(t *testing.T) {
	assert := assert.New(t)

	entry, _ := Resolve("QPIWS")
	payload := "01000000000100000000000000000000"
	res, err := entry.Schema.decode("QPIWS", payload, decodeOptions{rawBitfield: true})
	assert.NoError(err)
	assert.Len(res.Fields, 1)
	v, _ := res.Get("raw")
	assert.Equal(payload, v.Str)
}

func TestDeviceFlagStatesDecode(t *testing.T) {
	assert := assert.New(t)

	entry, ok := Resolve("QFLAG")
	assert.True(ok)

	res, err := entry.Schema.decode("QFLAG", "EakxyDbjuvz", decodeOptions{})
	assert.NoError(err)

	enabled := map[string]bool{}
	for _, f := range res.Fields {
		enabled[f.Key] = f.Value.Bool
	}
	assert.True(enabled["alarm_enabled"])
	assert.True(enabled["lcd_return_home"])
	assert.True(enabled["backlight_on"])
	assert.False(enabled["overload_bypass"])
	assert.False(enabled["power_saving"])
	assert.False(enabled["fault_code_record"])
}

func TestDeviceFlagStatesUnknownFlag(t *testing.T) {
	entry, _ := Resolve("QFLAG")
	_, err := entry.Schema.decode("QFLAG", "EaqDb", decodeOptions{})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestUnverifiedSchemaWrapsDecodeFailure(t *testing.T) {
	assert := assert.New(t)

	entry, ok := Resolve("QPIRI")
	assert.True(ok)
	assert.True(entry.Schema.Unverified())

	_, err := entry.Schema.decode("QPIRI", "230.0 11.3", decodeOptions{})
	assert.ErrorIs(err, ErrUnverifiedSchema)
	assert.ErrorIs(err, ErrSchemaMismatch)
}

func TestEnumIndexDecode(t *testing.T) {
	assert := assert.New(t)

	f := Field{Key: "battery_type", Type: TypeEnum, Enum: []string{"AGM", "Flooded", "User"}}

	v, err := f.parse("1")
	assert.NoError(err)
	assert.Equal("Flooded", v.Str)

	_, err = f.parse("7")
	assert.Error(err)
}

func TestQueryResultJSON(t *testing.T) {
	assert := assert.New(t)

	entry, _ := Resolve("QPIGS")
	res, err := entry.Schema.decode("QPIGS", qpigsPayload, decodeOptions{})
	assert.NoError(err)

	raw, err := json.Marshal(res)
	assert.NoError(err)

	var m map[string]any
	assert.NoError(json.Unmarshal(raw, &m))
	assert.Equal(230.1, m["grid_voltage"])
	assert.Equal("00000110", m["device_status"])
}
