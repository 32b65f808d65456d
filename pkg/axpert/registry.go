package axpert

import (
	"sort"
	"strings"
)

// EntryKind separates queries (structured data back) from setting commands
// (ACK/NAK back).
type EntryKind int

const (
	KindQuery EntryKind = iota
	KindCommand
)

func (k EntryKind) String() string {
	if k == KindCommand {
		return "command"
	}
	return "query"
}

// Entry is one registered mnemonic or mnemonic prefix.
type Entry struct {
	// Pattern is the full mnemonic for exact entries, or the fixed leading
	// part for prefix entries (setting commands embed their parameter in
	// the mnemonic, e.g. MCHGC010 or PBCV48.0).
	Pattern string
	Prefix  bool
	Kind    EntryKind
	Desc    string
	// Schema is set for queries only.
	Schema *Schema
	// Unverified marks commands the protocol documentation flags as not
	// reliably working. Query schemas carry their own flag.
	Unverified bool
}

// MnemonicInfo is the read-only registry listing exposed to the CLI's
// list feature.
type MnemonicInfo struct {
	Pattern    string
	Kind       EntryKind
	Desc       string
	Fields     []string
	Units      []string
	Unverified bool
}

// registry is built once before any exchange and read-only afterwards.
// Mnemonic schemas are fixed protocol knowledge, so there is no runtime
// mutation surface.
type registry struct {
	exact    map[string]*Entry
	prefixes []*Entry // sorted by pattern length, longest first
}

var defaultRegistry = newRegistry()

func newRegistry() *registry {
	r := &registry{exact: make(map[string]*Entry)}
	for _, e := range protocolEntries() {
		e := e
		if e.Prefix {
			r.prefixes = append(r.prefixes, &e)
		} else {
			r.exact[e.Pattern] = &e
		}
	}
	sort.Slice(r.prefixes, func(i, j int) bool {
		return len(r.prefixes[i].Pattern) > len(r.prefixes[j].Pattern)
	})
	return r
}

// Resolve looks up the registry entry for a mnemonic. Exact matches win;
// otherwise the longest registered prefix that the mnemonic extends wins.
// ok is false for mnemonics the protocol does not know.
func Resolve(mnemonic string) (*Entry, bool) {
	return defaultRegistry.resolve(mnemonic)
}

func (r *registry) resolve(mnemonic string) (*Entry, bool) {
	if e, ok := r.exact[mnemonic]; ok {
		return e, true
	}
	for _, e := range r.prefixes {
		// A bare prefix is not a complete command: the parameter suffix
		// must be present.
		if len(mnemonic) > len(e.Pattern) && strings.HasPrefix(mnemonic, e.Pattern) {
			return e, true
		}
	}
	return nil, false
}

// ListKnownMnemonics returns every registered mnemonic pattern with its
// kind, field names and units, sorted by pattern. Used by the CLI list
// output and the HTTP API.
func ListKnownMnemonics() []MnemonicInfo {
	r := defaultRegistry
	out := make([]MnemonicInfo, 0, len(r.exact)+len(r.prefixes))
	for _, e := range r.exact {
		out = append(out, entryInfo(e))
	}
	for _, e := range r.prefixes {
		out = append(out, entryInfo(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pattern < out[j].Pattern })
	return out
}

func entryInfo(e *Entry) MnemonicInfo {
	info := MnemonicInfo{
		Pattern:    e.Pattern,
		Kind:       e.Kind,
		Desc:       e.Desc,
		Unverified: e.Unverified,
	}
	if e.Schema != nil {
		info.Fields = e.Schema.FieldNames()
		info.Units = e.Schema.Units()
		info.Unverified = info.Unverified || e.Schema.Unverified()
	}
	return info
}

// deviceModes maps the QMOD response letter to the device operating mode.
var deviceModes = map[string]string{
	"P": "Power on mode",
	"S": "Standby mode",
	"L": "Line mode",
	"B": "Battery mode",
	"F": "Fault mode",
	"H": "Power saving mode",
}

// warningFlags lists the 32 warning status indicators of the QPIWS
// response by bit position.
var warningFlags = []BitFlag{
	{"warn_reserved_0", "Reserved"},
	{"inverter_fault", "Inverter fault"},
	{"bus_over_voltage", "Bus over voltage fault"},
	{"bus_under_voltage", "Bus under voltage fault"},
	{"bus_soft_fail", "Bus soft fail"},
	{"line_fail", "Line fail warning"},
	{"opv_short", "OPV short warning"},
	{"inverter_voltage_low", "Inverter voltage too low fault"},
	{"inverter_voltage_high", "Inverter voltage too high fault"},
	{"over_temperature", "Over temperature warning/fault"},
	{"fan_locked", "Fan locked warning/fault"},
	{"battery_voltage_high", "Battery voltage high warning/fault"},
	{"battery_low_alarm", "Battery low alarm warning"},
	{"warn_reserved_13", "Reserved"},
	{"battery_under_shutdown", "Battery under shutdown warning"},
	{"warn_reserved_15", "Reserved"},
	{"overload", "Overload warning/fault"},
	{"eeprom_fault", "EEPROM fault warning"},
	{"inverter_over_current", "Inverter over current fault"},
	{"inverter_soft_fail", "Inverter soft fail fault"},
	{"self_test_fail", "Self test fail fault"},
	{"output_dc_over_voltage", "Output DC voltage over fault"},
	{"battery_open", "Battery open fault"},
	{"current_sensor_fail", "Current sensor fail fault"},
	{"battery_short", "Battery short fault"},
	{"power_limit", "Power limit warning"},
	{"pv_voltage_high", "PV voltage high warning"},
	{"mppt_overload_fault", "MPPT overload fault"},
	{"mppt_overload_warning", "MPPT overload warning"},
	{"battery_too_low_to_charge", "Battery too low to charge warning"},
	{"warn_reserved_30", "Reserved"},
	{"warn_reserved_31", "Reserved"},
}

// deviceFlags lists the QFLAG enabled/disabled settings by their protocol
// letter, with the inverter's front panel program number where one exists.
var deviceFlags = []StateFlag{
	{'a', "alarm_enabled", "Alarm enabled", "18"},
	{'b', "overload_bypass", "Overload bypass", "23"},
	{'j', "power_saving", "Power saving", ""},
	{'k', "lcd_return_home", "LCD return to home screen after 1 min", "19"},
	{'u', "overload_restart", "Overload restart", ""},
	{'v', "over_temperature_restart", "Over temperature restart", ""},
	{'x', "backlight_on", "Backlight on", "20"},
	{'y', "alarm_on_primary_source_interrupt", "Alarm on primary source interrupt", "23"},
	{'z', "fault_code_record", "Fault code record", "25"},
}

// protocolEntries returns the full mnemonic table. Queries carry the field
// schema for their response payload; commands only differ in parameter
// suffix and all answer ACK or NAK.
func protocolEntries() []Entry {
	return []Entry{
		// Identification
		{Pattern: "QPI", Kind: KindQuery, Desc: "Device protocol ID inquiry",
			Schema: tokenSchema(Field{Key: "protocol_id", Desc: "Device protocol ID", Type: TypeString})},
		{Pattern: "QID", Kind: KindQuery, Desc: "Device serial number inquiry",
			Schema: tokenSchema(Field{Key: "serial_number", Desc: "Device serial number", Type: TypeString})},
		{Pattern: "QVFW", Kind: KindQuery, Desc: "Main CPU firmware version inquiry",
			Schema: tokenSchema(Field{Key: "firmware_version", Desc: "Main CPU firmware version", Type: TypeString})},
		{Pattern: "QVFW2", Kind: KindQuery, Desc: "Additional CPU firmware version inquiry",
			Schema: tokenSchema(Field{Key: "firmware2_version", Desc: "Additional CPU firmware version", Type: TypeString})},

		// Status
		{Pattern: "QPIGS", Kind: KindQuery, Desc: "General status parameters inquiry",
			Schema: tokenSchema(
				Field{Key: "grid_voltage", Desc: "Grid voltage", Type: TypeFloat, Unit: "V"},
				Field{Key: "grid_frequency", Desc: "Grid frequency", Type: TypeFloat, Unit: "Hz"},
				Field{Key: "ac_output_voltage", Desc: "AC output voltage", Type: TypeFloat, Unit: "V"},
				Field{Key: "ac_output_frequency", Desc: "AC output frequency", Type: TypeFloat, Unit: "Hz"},
				Field{Key: "ac_output_apparent_power", Desc: "AC output apparent power", Type: TypeInt, Unit: "VA"},
				Field{Key: "ac_output_active_power", Desc: "AC output active power", Type: TypeInt, Unit: "W"},
				Field{Key: "output_load_percent", Desc: "Output load percentage", Type: TypeInt, Unit: "%"},
				Field{Key: "bus_voltage", Desc: "Bus voltage", Type: TypeInt, Unit: "V"},
				Field{Key: "battery_voltage", Desc: "Battery voltage", Type: TypeFloat, Unit: "V"},
				Field{Key: "battery_charging_current", Desc: "Battery charging current", Type: TypeFloat, Unit: "A"},
				Field{Key: "battery_capacity", Desc: "Battery capacity", Type: TypeInt, Unit: "%"},
				Field{Key: "heat_sink_temperature", Desc: "Inverter heat sink temperature", Type: TypeInt, Unit: "°C"},
				Field{Key: "pv_input_current", Desc: "PV input current for battery", Type: TypeInt, Unit: "A"},
				Field{Key: "pv_input_voltage", Desc: "PV input voltage", Type: TypeFloat, Unit: "V"},
				Field{Key: "battery_voltage_scc", Desc: "Battery voltage from SCC", Type: TypeFloat, Unit: "V"},
				Field{Key: "battery_discharge_current", Desc: "Battery discharge current", Type: TypeInt, Unit: "A"},
				Field{Key: "device_status", Desc: "Device status bits", Type: TypeString},
			)},
		{Pattern: "QMOD", Kind: KindQuery, Desc: "Device mode inquiry",
			Schema: enumSchema(Field{Key: "device_mode", Desc: "Device mode", Type: TypeEnumMap, EnumMap: deviceModes})},
		{Pattern: "QPIWS", Kind: KindQuery, Desc: "Device warning status inquiry",
			Schema: bitfieldSchema(warningFlags)},
		{Pattern: "QFLAG", Kind: KindQuery, Desc: "Device flag status inquiry",
			Schema: flagStateSchema(deviceFlags)},

		// Ratings and defaults. The protocol documentation marks these as
		// not working on several firmware revisions, so their schemas are
		// flagged unverified.
		{Pattern: "QPIRI", Kind: KindQuery, Desc: "Device rating information inquiry",
			Schema: tokenSchema(
				Field{Key: "grid_rating_voltage", Desc: "Grid rating voltage", Type: TypeFloat, Unit: "V"},
				Field{Key: "grid_rating_current", Desc: "Grid rating current", Type: TypeFloat, Unit: "A"},
				Field{Key: "ac_output_rating_voltage", Desc: "AC output rating voltage", Type: TypeFloat, Unit: "V"},
				Field{Key: "ac_output_rating_frequency", Desc: "AC output rating frequency", Type: TypeFloat, Unit: "Hz"},
				Field{Key: "ac_output_rating_current", Desc: "AC output rating current", Type: TypeFloat, Unit: "A"},
				Field{Key: "ac_output_rating_apparent_power", Desc: "AC output rating apparent power", Type: TypeInt, Unit: "VA"},
				Field{Key: "ac_output_rating_active_power", Desc: "AC output rating active power", Type: TypeInt, Unit: "W"},
				Field{Key: "battery_rating_voltage", Desc: "Battery rating voltage", Type: TypeFloat, Unit: "V"},
				Field{Key: "battery_recharge_voltage", Desc: "Battery re-charge voltage", Type: TypeFloat, Unit: "V"},
				Field{Key: "battery_under_voltage", Desc: "Battery under voltage", Type: TypeFloat, Unit: "V"},
				Field{Key: "battery_bulk_voltage", Desc: "Battery bulk voltage", Type: TypeFloat, Unit: "V"},
				Field{Key: "battery_float_voltage", Desc: "Battery float voltage", Type: TypeFloat, Unit: "V"},
				Field{Key: "battery_type", Desc: "Battery type", Type: TypeEnum, Enum: []string{"AGM", "Flooded", "User"}, Prog: "05"},
				Field{Key: "ac_charging_max_current", Desc: "AC max charging current", Type: TypeInt, Unit: "A"},
				Field{Key: "charging_max_current", Desc: "Max charging current total", Type: TypeInt, Unit: "A", Prog: "02"},
				Field{Key: "ac_input_voltage_range", Desc: "AC input voltage range", Type: TypeEnum, Enum: []string{"Appliance", "UPS"}, Prog: "03"},
				Field{Key: "output_source_priority", Desc: "Output source priority", Type: TypeEnum, Enum: []string{"Utility first", "Solar first", "SBU first"}, Prog: "01"},
				Field{Key: "charger_source_priority", Desc: "Charger source priority", Type: TypeEnum, Enum: []string{"Utility first", "Solar first", "Solar + Utility", "Solar only"}, Prog: "16"},
				Field{Key: "parallel_max_number", Desc: "Parallel max number", Type: TypeString},
				Field{Key: "inverter_type", Desc: "Inverter type", Type: TypeEnumMap, EnumMap: map[string]string{"00": "Grid tie", "01": "Off grid", "10": "Hybrid"}},
				Field{Key: "topology", Desc: "Topology", Type: TypeEnum, Enum: []string{"No transformer", "Transformer"}},
				Field{Key: "output_mode", Desc: "Output mode", Type: TypeEnum, Enum: []string{"Single", "Parallel", "Phase 1/3", "Phase 2/3", "Phase 3/3"}},
				Field{Key: "battery_redischarge_voltage", Desc: "Battery re-discharge voltage", Type: TypeFloat, Unit: "V"},
				Field{Key: "pv_ok_condition", Desc: "PV OK condition for parallel", Type: TypeEnum, Enum: []string{"PV on one", "PV on all"}},
				Field{Key: "pv_power_balance", Desc: "PV power balance", Type: TypeEnum, Enum: []string{"PV max current", "PV max sum power"}},
			).markUnverified()},
		{Pattern: "QDI", Kind: KindQuery, Desc: "Default setting values inquiry",
			Schema: tokenSchema(
				Field{Key: "ac_output_voltage", Desc: "Default AC output voltage", Type: TypeFloat, Unit: "V"},
				Field{Key: "ac_output_frequency", Desc: "Default AC output frequency", Type: TypeFloat, Unit: "Hz"},
				Field{Key: "ac_charging_max_current", Desc: "Default AC max charging current", Type: TypeInt, Unit: "A"},
				Field{Key: "battery_under_voltage", Desc: "Default battery under voltage", Type: TypeFloat, Unit: "V"},
				Field{Key: "charging_float_voltage", Desc: "Default charging float voltage", Type: TypeFloat, Unit: "V"},
				Field{Key: "charging_bulk_voltage", Desc: "Default charging bulk voltage", Type: TypeFloat, Unit: "V"},
				Field{Key: "battery_recharge_voltage", Desc: "Default battery re-charge voltage", Type: TypeFloat, Unit: "V"},
				Field{Key: "charging_max_current", Desc: "Default max charging current", Type: TypeInt, Unit: "A"},
				Field{Key: "ac_input_voltage_range", Desc: "Default AC input voltage range", Type: TypeEnum, Enum: []string{"Appliance", "UPS"}},
				Field{Key: "output_source_priority", Desc: "Default output source priority", Type: TypeEnum, Enum: []string{"Utility first", "Solar first", "SBU first"}},
				Field{Key: "charger_source_priority", Desc: "Default charger source priority", Type: TypeEnum, Enum: []string{"Utility first", "Solar first", "Solar + Utility", "Solar only"}},
				Field{Key: "battery_type", Desc: "Default battery type", Type: TypeEnum, Enum: []string{"AGM", "Flooded", "User"}},
				Field{Key: "alarm_enabled", Desc: "Default alarm enabled", Type: TypeInt},
				Field{Key: "power_saving", Desc: "Default power saving", Type: TypeInt},
				Field{Key: "overload_restart", Desc: "Default overload restart", Type: TypeInt},
				Field{Key: "over_temperature_restart", Desc: "Default over temperature restart", Type: TypeInt},
				Field{Key: "backlight_on", Desc: "Default LCD backlight on", Type: TypeInt},
				Field{Key: "alarm_on_primary_source_interrupt", Desc: "Default alarm on primary source interrupt", Type: TypeInt},
				Field{Key: "fault_code_record", Desc: "Default fault code record", Type: TypeInt},
				Field{Key: "overload_bypass", Desc: "Default overload bypass", Type: TypeInt},
				Field{Key: "lcd_return_home", Desc: "Default LCD return to home screen", Type: TypeInt},
				Field{Key: "output_mode", Desc: "Default output mode", Type: TypeEnum, Enum: []string{"Single", "Parallel", "Phase 1/3", "Phase 2/3", "Phase 3/3"}},
				Field{Key: "battery_redischarge_voltage", Desc: "Default battery re-discharge voltage", Type: TypeFloat, Unit: "V"},
				Field{Key: "pv_ok_condition", Desc: "Default PV OK condition for parallel", Type: TypeEnum, Enum: []string{"PV on one", "PV on all"}},
				Field{Key: "pv_power_balance", Desc: "Default PV power balance", Type: TypeEnum, Enum: []string{"PV max current", "PV max sum power"}},
			).markUnverified()},

		// Raw passthrough queries: shapes vary by model, so no field schema
		// is declared for them.
		{Pattern: "QMCHGCR", Kind: KindQuery, Desc: "Selectable max charging current values inquiry",
			Schema: rawSchema("raw", "Selectable max charging currents")},
		{Pattern: "QMUCHGCR", Kind: KindQuery, Desc: "Selectable max utility charging current values inquiry",
			Schema: rawSchema("raw", "Selectable max utility charging currents")},
		{Pattern: "QBOOT", Kind: KindQuery, Desc: "DSP bootstrap inquiry",
			Schema: rawSchema("raw", "DSP bootstrap status")},
		{Pattern: "QOPM", Kind: KindQuery, Desc: "Output mode inquiry",
			Schema: rawSchema("raw", "Output mode")},
		{Pattern: "QPGS0", Kind: KindQuery, Desc: "Parallel information inquiry",
			Schema: rawSchema("raw", "Parallel information")},

		// Setting commands. The parameter is part of the mnemonic, so these
		// are prefix patterns.
		{Pattern: "POP", Prefix: true, Kind: KindCommand, Desc: "Set output source priority (00 utility, 01 solar, 02 SBU)"},
		{Pattern: "PCP", Prefix: true, Kind: KindCommand, Desc: "Set charger source priority (00 utility, 01 solar, 02 solar+utility, 03 solar only)", Unverified: true},
		{Pattern: "PBCV", Prefix: true, Kind: KindCommand, Desc: "Set battery re-charge voltage"},
		{Pattern: "PBDV", Prefix: true, Kind: KindCommand, Desc: "Set battery re-discharge voltage"},
		{Pattern: "PGR", Prefix: true, Kind: KindCommand, Desc: "Set grid working range (00 appliance, 01 UPS)"},
		{Pattern: "PBT", Prefix: true, Kind: KindCommand, Desc: "Set battery type (00 AGM, 01 flooded, 02 user)"},
		{Pattern: "PSDV", Prefix: true, Kind: KindCommand, Desc: "Set battery cut-off voltage"},
		{Pattern: "PCVV", Prefix: true, Kind: KindCommand, Desc: "Set battery constant voltage charging voltage"},
		{Pattern: "MCHGC", Prefix: true, Kind: KindCommand, Desc: "Set max charging current"},
		{Pattern: "MUCHGC", Prefix: true, Kind: KindCommand, Desc: "Set utility max charging current"},
		{Pattern: "PE", Prefix: true, Kind: KindCommand, Desc: "Enable device flag"},
		{Pattern: "PD", Prefix: true, Kind: KindCommand, Desc: "Disable device flag"},
		{Pattern: "F", Prefix: true, Kind: KindCommand, Desc: "Set output frequency (50 or 60)"},
		{Pattern: "PF", Kind: KindCommand, Desc: "Reset all settings to default"},
	}
}
