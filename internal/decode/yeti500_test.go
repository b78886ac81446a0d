package decode

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yetiStatusReply = `{
	"id": 2,
	"src": "gzy5c-d8132a74dbb4",
	"result": {
		"body": {
			"_version": 2,
			"wifiRssi": -61,
			"appOn": 1,
			"batt": {
				"cyc": 10, "soc": 11, "whRem": 57, "v": 27.2,
				"aNetAvg": 7.5, "aNet": 7.7, "cTmp": 36.8, "mTtef": 125,
				"wNetAvg": 203, "wNet": 208, "pctHtsRh": 0, "cHtsTmp": 36.8,
				"whIn": 4856, "whOut": 0
			},
			"ports": {
				"acOut": {"s": 0, "w": 0, "v": 0, "a": 0},
				"v12Out": {"s": 0, "w": 0},
				"usbOut": {"s": 1, "w": 12},
				"acIn": {"s": 2, "v": 1175, "a": 0.2, "w": 287, "fastChg": 0},
				"lvDcIn": {"s": 0, "v": 0, "a": 0, "w": 0}
			}
		},
		"status_msg": "200 OK",
		"status_code": 200
	}
}`

const yetiDeviceReply = `{
	"id": 1,
	"src": "gzy5c-d8132a74dbb4",
	"result": {
		"body": {
			"_version": 2,
			"fw": "1.3.6",
			"identity": {
				"thingName": "gzy5c-d8132a74dbb4",
				"sn": "37000-02-24D01034",
				"mac": "d8132a74dbb4"
			},
			"batt": {"sn": "IDU191GAPCM2403180006936", "whCap": 499}
		},
		"status_msg": "200 OK",
		"status_code": 200
	}
}`

const yetiConfigReply = `{
	"id": 3,
	"src": "gzy5c-d8132a74dbb4",
	"result": {
		"body": {
			"chgPrfl": {"min": 0, "max": 100, "rchg": 95}
		},
		"status_msg": "200 OK",
		"status_code": 200
	}
}`

func replies(pairs map[string]string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(pairs))
	for method, body := range pairs {
		out[method] = json.RawMessage(body)
	}
	return out
}

func TestDecodeYeti500Status(t *testing.T) {
	status, err := DecodeYeti500(replies(map[string]string{"status": yetiStatusReply}))
	require.NoError(t, err)

	assert.Equal(t, 11.0, status["battery.soc"].Float)
	assert.Equal(t, "%", status["battery.soc"].Unit)
	assert.Equal(t, 27.2, status["battery.voltage"].Float)
	assert.Equal(t, 125.0, status["battery.minutes_to_empty"].Float)
	assert.Equal(t, 2.0, status["ports.ac_in.state"].Float)
	assert.Equal(t, 12.0, status["ports.usb_out.watts"].Float)
	assert.Equal(t, -61.0, status["wifi_rssi"].Float)

	assert.Equal(t, KindBool, status["app_connected"].Kind)
	assert.True(t, status["app_connected"].Bool)
	assert.False(t, status["ports.ac_in.fast_charging"].Bool)

	// Device and config replies were not supplied, so their fields are absent.
	assert.NotContains(t, status, "device.firmware")
	assert.NotContains(t, status, "config.charge_profile.min_soc")
}

func TestDecodeYeti500AllReplies(t *testing.T) {
	status, err := DecodeYeti500(replies(map[string]string{
		"status": yetiStatusReply,
		"device": yetiDeviceReply,
		"config": yetiConfigReply,
	}))
	require.NoError(t, err)

	assert.Equal(t, "1.3.6", status["device.firmware"].Str)
	assert.Equal(t, "37000-02-24D01034", status["device.serial"].Str)
	assert.Equal(t, 499.0, status["device.battery_capacity"].Float)
	assert.Equal(t, "Wh", status["device.battery_capacity"].Unit)
	assert.Equal(t, 95.0, status["config.charge_profile.recharge_soc"].Float)
}

func TestDecodeYeti500MissingStatusIsHardError(t *testing.T) {
	_, err := DecodeYeti500(replies(map[string]string{
		"device": yetiDeviceReply,
		"config": yetiConfigReply,
	}))
	require.Error(t, err)

	var decodeErr *Error
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "yeti500", decodeErr.Family)
	assert.Contains(t, decodeErr.Reason, "status")
}

func TestDecodeYeti500MissingOptionalLeaves(t *testing.T) {
	// A status body with only the battery SOC: every other leaf is simply
	// absent from the result, never an error.
	minimal := `{"id":2,"result":{"body":{"batt":{"soc":50}}}}`

	status, err := DecodeYeti500(replies(map[string]string{"status": minimal}))
	require.NoError(t, err)

	assert.Equal(t, 50.0, status["battery.soc"].Float)
	assert.NotContains(t, status, "battery.voltage")
	assert.NotContains(t, status, "ports.ac_out.state")
}

func TestDecodeYeti500MalformedJSON(t *testing.T) {
	_, err := DecodeYeti500(replies(map[string]string{"status": `{"id":2,`}))
	require.Error(t, err)

	var decodeErr *Error
	assert.ErrorAs(t, err, &decodeErr)
}

func TestDecodeYeti500EmptyBody(t *testing.T) {
	_, err := DecodeYeti500(replies(map[string]string{"status": `{"id":2,"result":{}}`}))
	require.Error(t, err)
}

func TestDecodeYeti500Pure(t *testing.T) {
	in := replies(map[string]string{"status": yetiStatusReply, "device": yetiDeviceReply})

	first, err := DecodeYeti500(in)
	require.NoError(t, err)
	second, err := DecodeYeti500(in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
