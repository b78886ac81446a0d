package decode

// alta80FrameLen is the assembled status frame size: two 18-byte
// notifications concatenated in arrival order.
const alta80FrameLen = 36

// Alta80Table returns the default field layout for the Alta 80 status frame.
//
// Only offsets with a confirmed meaning are named here. Several more offsets
// (power state, eco mode, battery protection, min/max setpoint, temperature
// unit) have conflicting interpretations across captures; they stay raw
// unsigned until confirmed, and deployments that trust a particular reading
// can override this table from configuration.
func Alta80Table() *BinaryTable {
	return &BinaryTable{
		FrameLen: alta80FrameLen,
		Fields: []Field{
			{Offset: 0, Name: "header_0", Kind: FieldConst},
			{Offset: 1, Name: "header_1", Kind: FieldConst},
			{Offset: 8, Name: "zone1_setpoint", Kind: FieldSigned, Unit: "°F"},
			{Offset: 13, Name: "filler_13", Kind: FieldConst},
			{Offset: 14, Name: "filler_14", Kind: FieldConst},
			{Offset: 18, Name: "zone1_temperature", Kind: FieldSigned, Unit: "°C"},
			{Offset: 19, Name: "filler_19", Kind: FieldConst},
			{Offset: 20, Name: "filler_20", Kind: FieldConst},
			{Offset: 22, Name: "zone2_setpoint", Kind: FieldSigned, Unit: "°F"},
			{Offset: 25, Name: "filler_25", Kind: FieldConst},
			{Offset: 26, Name: "filler_26", Kind: FieldConst},
			{Offset: 34, Name: "zone1_setpoint_exceeded", Kind: FieldBool},
			{Offset: 35, Name: "zone2_temperature", Kind: FieldSigned, Unit: "°C"},
		},
	}
}

// DecodeAlta80 decodes an assembled 36-byte Alta 80 status frame with the
// given table; a nil table uses the compiled-in default.
func DecodeAlta80(table *BinaryTable, frame []byte) (Status, error) {
	if table == nil {
		table = Alta80Table()
	}
	return DecodeBinary("alta80", table, frame)
}
