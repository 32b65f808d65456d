package axpert

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ValueType selects how a response token is parsed.
type ValueType int

const (
	TypeString ValueType = iota
	TypeInt
	TypeFloat
	TypeBool
	// TypeEnum parses the token as an index into Field.Enum.
	TypeEnum
	// TypeEnumMap maps the literal token through Field.EnumMap.
	TypeEnumMap
)

// Field describes one named value inside a query response.
type Field struct {
	// Key identifies the field in decoded results.
	Key string
	// Desc is the human readable description shown by the list/table output.
	Desc string
	Type ValueType
	// Unit is attached to decoded values when the caller asks for units.
	Unit string
	// Enum holds the meanings for TypeEnum, indexed by the token value.
	Enum []string
	// EnumMap holds the meanings for TypeEnumMap, keyed by the literal token.
	EnumMap map[string]string
	// Prog is the inverter's front-panel program number for this setting,
	// when it has one.
	Prog string
}

// BitFlag is one position in a bitfield response.
type BitFlag struct {
	Key  string
	Desc string
}

// StateFlag is one letter in a flag-state response ("ExyDz" form), where
// the letters after 'E' are enabled and those after 'D' disabled.
type StateFlag struct {
	Char byte
	Key  string
	Desc string
	Prog string
}

// decodeKind is the tagged variant selecting how a schema interprets its
// response payload.
type decodeKind int

const (
	// decodeTokens splits the payload on single spaces and maps tokens
	// positionally onto Fields.
	decodeTokens decodeKind = iota
	// decodeEnum treats the whole payload as one enumerated code.
	decodeEnum
	// decodeBitfield treats the payload as a fixed-length string of 0/1
	// digits, one per BitFlag.
	decodeBitfield
	// decodeFlagStates parses the 'E...D...' enabled/disabled flag form.
	decodeFlagStates
	// decodeRaw passes the payload through as a single string field.
	decodeRaw
)

// Schema describes how one mnemonic's response payload becomes a typed
// result. Schemas are registered once at startup and read-only afterwards.
type Schema struct {
	kind   decodeKind
	fields []Field
	bits   []BitFlag
	flags  []StateFlag

	// unverified marks schemas the protocol documentation flags as not
	// reliably working. Decode failures on these wrap ErrUnverifiedSchema.
	unverified bool
}

func tokenSchema(fields ...Field) *Schema {
	return &Schema{kind: decodeTokens, fields: fields}
}

func enumSchema(field Field) *Schema {
	return &Schema{kind: decodeEnum, fields: []Field{field}}
}

func bitfieldSchema(bits []BitFlag) *Schema {
	return &Schema{kind: decodeBitfield, bits: bits}
}

func flagStateSchema(flags []StateFlag) *Schema {
	return &Schema{kind: decodeFlagStates, flags: flags}
}

func rawSchema(key, desc string) *Schema {
	return &Schema{kind: decodeRaw, fields: []Field{{Key: key, Desc: desc, Type: TypeString}}}
}

func (s *Schema) markUnverified() *Schema {
	s.unverified = true
	return s
}

// Unverified reports whether the protocol documentation marks this schema
// as not reliably working across firmware revisions.
func (s *Schema) Unverified() bool {
	return s.unverified
}

// FieldNames returns the declared field keys in response order. For
// bitfield schemas these are the flag keys by bit position.
func (s *Schema) FieldNames() []string {
	switch s.kind {
	case decodeBitfield:
		names := make([]string, len(s.bits))
		for i, b := range s.bits {
			names[i] = b.Key
		}
		return names
	case decodeFlagStates:
		names := make([]string, len(s.flags))
		for i, f := range s.flags {
			names[i] = f.Key
		}
		return names
	default:
		names := make([]string, len(s.fields))
		for i, f := range s.fields {
			names[i] = f.Key
		}
		return names
	}
}

// Units returns the declared unit per field, empty for unitless fields.
func (s *Schema) Units() []string {
	units := make([]string, len(s.fields))
	for i, f := range s.fields {
		units[i] = f.Unit
	}
	return units
}

// Value is one decoded field value. Raw always holds the original token;
// the typed accessors are valid according to Type.
type Value struct {
	Raw  string
	Type ValueType

	Int   int64
	Float float64
	Bool  bool
	Str   string

	// Unit is set when decoding was asked to attach units.
	Unit string
}

// String formats the value for display, with its unit when attached.
func (v Value) String() string {
	var s string
	switch v.Type {
	case TypeInt:
		s = strconv.FormatInt(v.Int, 10)
	case TypeFloat:
		s = strconv.FormatFloat(v.Float, 'f', -1, 64)
	case TypeBool:
		s = strconv.FormatBool(v.Bool)
	default:
		s = v.Str
	}
	if v.Unit != "" {
		return s + v.Unit
	}
	return s
}

// MarshalJSON emits the typed value: numbers for numeric fields, booleans
// for flags, strings otherwise. Values with a unit attached marshal as the
// formatted string so the unit survives.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Unit != "" {
		return json.Marshal(v.String())
	}
	switch v.Type {
	case TypeInt:
		return json.Marshal(v.Int)
	case TypeFloat:
		return json.Marshal(v.Float)
	case TypeBool:
		return json.Marshal(v.Bool)
	default:
		return json.Marshal(v.Str)
	}
}

// DecodedField pairs a field descriptor with its decoded value.
type DecodedField struct {
	Key   string
	Desc  string
	Prog  string
	Value Value
}

// QueryResult is the decoded outcome of a query mnemonic. Fields keep the
// response order; Get provides keyed access. Raw is the payload as
// received, start marker and CRC stripped.
type QueryResult struct {
	Mnemonic string
	Raw      string
	Fields   []DecodedField
}

// Get returns the value for key and whether it is present.
func (r *QueryResult) Get(key string) (Value, bool) {
	for _, f := range r.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

// ActiveFlags returns the keys of all boolean fields that are set. For
// bitfield responses this is the set of active warning indicators.
func (r *QueryResult) ActiveFlags() []string {
	var active []string
	for _, f := range r.Fields {
		if f.Value.Type == TypeBool && f.Value.Bool {
			active = append(active, f.Key)
		}
	}
	return active
}

// MarshalJSON renders the result as a flat key/value object.
func (r *QueryResult) MarshalJSON() ([]byte, error) {
	m := make(map[string]Value, len(r.Fields))
	for _, f := range r.Fields {
		m[f.Key] = f.Value
	}
	return json.Marshal(m)
}

// CommandOutcome is the result of a setting command. A NAK is a valid
// negative outcome: the device understood and rejected the command. It is
// not an error.
type CommandOutcome struct {
	Mnemonic     string
	Acknowledged bool
	Raw          string
}

// decodeOptions control payload decoding. See the Exec options on Client.
type decodeOptions struct {
	withUnits   bool
	rawBitfield bool
}

// decode converts a frame payload into a QueryResult per the schema's
// variant. Token or flag count mismatches yield ErrSchemaMismatch, wrapped
// in ErrUnverifiedSchema for schemas flagged unverified.
func (s *Schema) decode(mnemonic string, payload string, opts decodeOptions) (*QueryResult, error) {
	res, err := s.decodePayload(mnemonic, payload, opts)
	if err != nil {
		if s.unverified {
			return nil, fmt.Errorf("%w: %w", ErrUnverifiedSchema, err)
		}
		return nil, err
	}
	res.Raw = payload
	return res, nil
}

func (s *Schema) decodePayload(mnemonic, payload string, opts decodeOptions) (*QueryResult, error) {
	switch s.kind {
	case decodeTokens:
		return s.decodeTokenList(mnemonic, payload, opts)
	case decodeEnum:
		return s.decodeEnumPayload(mnemonic, payload)
	case decodeBitfield:
		if opts.rawBitfield {
			return rawResult(mnemonic, payload), nil
		}
		return s.decodeBitfieldPayload(mnemonic, payload)
	case decodeFlagStates:
		return s.decodeFlagStatesPayload(mnemonic, payload)
	default:
		return rawResult(mnemonic, payload), nil
	}
}

func rawResult(mnemonic, payload string) *QueryResult {
	return &QueryResult{
		Mnemonic: mnemonic,
		Fields: []DecodedField{{
			Key:   "raw",
			Desc:  "Raw response",
			Value: Value{Raw: payload, Type: TypeString, Str: payload},
		}},
	}
}

func (s *Schema) decodeTokenList(mnemonic, payload string, opts decodeOptions) (*QueryResult, error) {
	tokens := strings.Split(payload, " ")
	if len(tokens) != len(s.fields) {
		return nil, fmt.Errorf("%w: %s returned %d tokens, schema declares %d",
			ErrSchemaMismatch, mnemonic, len(tokens), len(s.fields))
	}
	out := make([]DecodedField, len(tokens))
	for i, tok := range tokens {
		val, err := s.fields[i].parse(tok)
		if err != nil {
			return nil, fmt.Errorf("%w: %s field %q: %v", ErrSchemaMismatch, mnemonic, s.fields[i].Key, err)
		}
		if opts.withUnits {
			val.Unit = s.fields[i].Unit
		}
		out[i] = DecodedField{Key: s.fields[i].Key, Desc: s.fields[i].Desc, Prog: s.fields[i].Prog, Value: val}
	}
	return &QueryResult{Mnemonic: mnemonic, Fields: out}, nil
}

func (s *Schema) decodeEnumPayload(mnemonic, payload string) (*QueryResult, error) {
	f := s.fields[0]
	val, err := f.parse(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSchemaMismatch, mnemonic, err)
	}
	return &QueryResult{
		Mnemonic: mnemonic,
		Fields:   []DecodedField{{Key: f.Key, Desc: f.Desc, Prog: f.Prog, Value: val}},
	}, nil
}

func (s *Schema) decodeBitfieldPayload(mnemonic, payload string) (*QueryResult, error) {
	if len(payload) != len(s.bits) {
		return nil, fmt.Errorf("%w: %s returned %d flag digits, schema declares %d",
			ErrSchemaMismatch, mnemonic, len(payload), len(s.bits))
	}
	out := make([]DecodedField, len(s.bits))
	for i, bit := range s.bits {
		c := payload[i]
		if c != '0' && c != '1' {
			return nil, fmt.Errorf("%w: %s position %d holds %q, want 0 or 1",
				ErrSchemaMismatch, mnemonic, i, c)
		}
		out[i] = DecodedField{
			Key:   bit.Key,
			Desc:  bit.Desc,
			Value: Value{Raw: string(c), Type: TypeBool, Bool: c == '1'},
		}
	}
	return &QueryResult{Mnemonic: mnemonic, Fields: out}, nil
}

func (s *Schema) decodeFlagStatesPayload(mnemonic, payload string) (*QueryResult, error) {
	byChar := make(map[byte]StateFlag, len(s.flags))
	for _, f := range s.flags {
		byChar[f.Char] = f
	}
	var out []DecodedField
	enabled := false
	seenState := false
	for i := 0; i < len(payload); i++ {
		c := payload[i]
		if c == 'E' || c == 'D' {
			enabled = c == 'E'
			seenState = true
			continue
		}
		f, ok := byChar[c]
		if !ok || !seenState {
			return nil, fmt.Errorf("%w: %s: unknown flag %q in %q", ErrSchemaMismatch, mnemonic, c, payload)
		}
		out = append(out, DecodedField{
			Key:   f.Key,
			Desc:  f.Desc,
			Prog:  f.Prog,
			Value: Value{Raw: string(c), Type: TypeBool, Bool: enabled},
		})
	}
	return &QueryResult{Mnemonic: mnemonic, Fields: out}, nil
}

func (f Field) parse(token string) (Value, error) {
	v := Value{Raw: token, Type: f.Type}
	switch f.Type {
	case TypeInt:
		n, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return v, fmt.Errorf("parse int %q: %v", token, err)
		}
		v.Int = n
	case TypeFloat:
		n, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return v, fmt.Errorf("parse float %q: %v", token, err)
		}
		v.Float = n
	case TypeEnum:
		idx, err := strconv.Atoi(token)
		if err != nil || idx < 0 || idx >= len(f.Enum) {
			return v, fmt.Errorf("enum index %q out of range (0..%d)", token, len(f.Enum)-1)
		}
		v.Type = TypeString
		v.Str = f.Enum[idx]
	case TypeEnumMap:
		meaning, ok := f.EnumMap[token]
		if !ok {
			meaning = fmt.Sprintf("Unknown %q", token)
		}
		v.Type = TypeString
		v.Str = meaning
	default:
		v.Str = token
	}
	return v, nil
}
