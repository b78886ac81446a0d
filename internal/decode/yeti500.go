package decode

import (
	"encoding/json"
	"fmt"
)

// rpcEnvelope is the common wrapper on every Yeti 500 JSON-RPC reply. The
// payload of interest is always under result.body.
type rpcEnvelope struct {
	ID     int    `json:"id"`
	Src    string `json:"src"`
	Result *struct {
		Body       json.RawMessage `json:"body"`
		StatusMsg  string          `json:"status_msg"`
		StatusCode int             `json:"status_code"`
	} `json:"result"`
}

// leafKind selects how a JSON leaf is represented in the status map.
type leafKind int

const (
	leafNumber leafKind = iota
	leafBool            // numeric 0/1 flag on the wire
	leafString
)

// rpcLeaf names one known leaf inside a reply body. Path components are
// object keys from the body root; Name is the flattened dotted key.
type rpcLeaf struct {
	path []string
	name string
	kind leafKind
	unit string
}

// yetiStatusLeaves is the known field set of the mandatory "status" reply.
var yetiStatusLeaves = []rpcLeaf{
	{path: []string{"batt", "soc"}, name: "battery.soc", unit: "%"},
	{path: []string{"batt", "whRem"}, name: "battery.wh_remaining", unit: "Wh"},
	{path: []string{"batt", "v"}, name: "battery.voltage", unit: "V"},
	{path: []string{"batt", "cyc"}, name: "battery.cycles"},
	{path: []string{"batt", "cTmp"}, name: "battery.temperature", unit: "°C"},
	{path: []string{"batt", "mTtef"}, name: "battery.minutes_to_empty", unit: "min"},
	{path: []string{"batt", "whIn"}, name: "battery.wh_in", unit: "Wh"},
	{path: []string{"batt", "whOut"}, name: "battery.wh_out", unit: "Wh"},
	{path: []string{"batt", "aNet"}, name: "battery.amps_net", unit: "A"},
	{path: []string{"batt", "aNetAvg"}, name: "battery.amps_net_avg", unit: "A"},
	{path: []string{"batt", "wNet"}, name: "battery.watts_net", unit: "W"},
	{path: []string{"batt", "wNetAvg"}, name: "battery.watts_net_avg", unit: "W"},
	{path: []string{"batt", "pctHtsRh"}, name: "battery.heater_humidity", unit: "%"},
	{path: []string{"batt", "cHtsTmp"}, name: "battery.heater_temperature", unit: "°C"},
	{path: []string{"ports", "acOut", "s"}, name: "ports.ac_out.state"},
	{path: []string{"ports", "acOut", "w"}, name: "ports.ac_out.watts", unit: "W"},
	{path: []string{"ports", "acOut", "v"}, name: "ports.ac_out.voltage", unit: "V"},
	{path: []string{"ports", "acOut", "a"}, name: "ports.ac_out.amps", unit: "A"},
	{path: []string{"ports", "v12Out", "s"}, name: "ports.v12_out.state"},
	{path: []string{"ports", "v12Out", "w"}, name: "ports.v12_out.watts", unit: "W"},
	{path: []string{"ports", "usbOut", "s"}, name: "ports.usb_out.state"},
	{path: []string{"ports", "usbOut", "w"}, name: "ports.usb_out.watts", unit: "W"},
	{path: []string{"ports", "acIn", "s"}, name: "ports.ac_in.state"},
	{path: []string{"ports", "acIn", "v"}, name: "ports.ac_in.voltage", unit: "V"},
	{path: []string{"ports", "acIn", "a"}, name: "ports.ac_in.amps", unit: "A"},
	{path: []string{"ports", "acIn", "w"}, name: "ports.ac_in.watts", unit: "W"},
	{path: []string{"ports", "acIn", "fastChg"}, name: "ports.ac_in.fast_charging", kind: leafBool},
	{path: []string{"ports", "lvDcIn", "s"}, name: "ports.lv_dc_in.state"},
	{path: []string{"ports", "lvDcIn", "v"}, name: "ports.lv_dc_in.voltage", unit: "V"},
	{path: []string{"ports", "lvDcIn", "a"}, name: "ports.lv_dc_in.amps", unit: "A"},
	{path: []string{"ports", "lvDcIn", "w"}, name: "ports.lv_dc_in.watts", unit: "W"},
	{path: []string{"wifiRssi"}, name: "wifi_rssi", unit: "dBm"},
	{path: []string{"appOn"}, name: "app_connected", kind: leafBool},
}

// yetiDeviceLeaves is the optional "device" reply field set, read once per
// session rather than every cycle.
var yetiDeviceLeaves = []rpcLeaf{
	{path: []string{"fw"}, name: "device.firmware", kind: leafString},
	{path: []string{"identity", "sn"}, name: "device.serial", kind: leafString},
	{path: []string{"identity", "mac"}, name: "device.mac", kind: leafString},
	{path: []string{"identity", "thingName"}, name: "device.thing_name", kind: leafString},
	{path: []string{"batt", "sn"}, name: "device.battery_serial", kind: leafString},
	{path: []string{"batt", "whCap"}, name: "device.battery_capacity", unit: "Wh"},
}

// yetiConfigLeaves is the optional "config" reply field set (charge profile).
// Key abbreviations follow the device shadow naming seen in captures.
var yetiConfigLeaves = []rpcLeaf{
	{path: []string{"chgPrfl", "min"}, name: "config.charge_profile.min_soc", unit: "%"},
	{path: []string{"chgPrfl", "max"}, name: "config.charge_profile.max_soc", unit: "%"},
	{path: []string{"chgPrfl", "rchg"}, name: "config.charge_profile.recharge_soc", unit: "%"},
}

// DecodeYeti500 flattens a set of JSON-RPC replies, keyed by method, into a
// status map. The "status" reply is mandatory; "device" and "config" are
// optional and simply contribute nothing when absent. Within a reply,
// individual missing leaves are skipped, not errors.
func DecodeYeti500(replies map[string]json.RawMessage) (Status, error) {
	statusRaw, ok := replies["status"]
	if !ok {
		return nil, &Error{Family: "yeti500", Reason: "mandatory status reply missing"}
	}

	status := make(Status, len(yetiStatusLeaves))
	if err := flattenReply(status, "status", statusRaw, yetiStatusLeaves); err != nil {
		return nil, err
	}
	if raw, ok := replies["device"]; ok {
		if err := flattenReply(status, "device", raw, yetiDeviceLeaves); err != nil {
			return nil, err
		}
	}
	if raw, ok := replies["config"]; ok {
		if err := flattenReply(status, "config", raw, yetiConfigLeaves); err != nil {
			return nil, err
		}
	}
	return status, nil
}

func flattenReply(status Status, method string, raw json.RawMessage, leaves []rpcLeaf) error {
	// Accept either a full reply envelope or a bare result body; the
	// session layer usually strips the envelope before handing it over.
	var env rpcEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &Error{Family: "yeti500", Reason: fmt.Sprintf("%s reply is not valid JSON: %v", method, err)}
	}
	payload := raw
	if env.Result != nil {
		if len(env.Result.Body) == 0 {
			return &Error{Family: "yeti500", Reason: fmt.Sprintf("%s reply has no result body", method)}
		}
		payload = env.Result.Body
	}

	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return &Error{Family: "yeti500", Reason: fmt.Sprintf("%s body is not a JSON object: %v", method, err)}
	}

	for _, leaf := range leaves {
		v, found := lookupPath(body, leaf.path)
		if !found {
			continue
		}
		switch leaf.kind {
		case leafNumber:
			if n, ok := v.(float64); ok {
				status[leaf.name] = Value{Kind: KindFloat, Float: n, Unit: leaf.unit}
			}
		case leafBool:
			switch t := v.(type) {
			case float64:
				status[leaf.name] = Value{Kind: KindBool, Bool: t != 0}
			case bool:
				status[leaf.name] = Value{Kind: KindBool, Bool: t}
			}
		case leafString:
			if s, ok := v.(string); ok {
				status[leaf.name] = Value{Kind: KindString, Str: s}
			}
		}
	}
	return nil
}

func lookupPath(body map[string]any, path []string) (any, bool) {
	var cur any = body
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
