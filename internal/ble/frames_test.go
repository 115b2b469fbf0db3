package ble

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeHeartRateMeasurement(t *testing.T) {
	assert.Equal(t, []byte{0x00, 0x48}, EncodeHeartRateMeasurement(72))
	assert.Equal(t, []byte{0x00, 0x00}, EncodeHeartRateMeasurement(0))
	assert.Equal(t, []byte{0x00, 0xFF}, EncodeHeartRateMeasurement(255))
}

func TestEncodeBatteryLevel(t *testing.T) {
	assert.Equal(t, []byte{0x64}, EncodeBatteryLevel(100))
	assert.Equal(t, []byte{0x00}, EncodeBatteryLevel(0))
	assert.Equal(t, []byte{0x64}, EncodeBatteryLevel(101), "clamped to 100")
}

func TestEncodeTreadmillData(t *testing.T) {
	// speed=500 (5.00 km/h), incline=20 (2.0%), distance=100m
	frame := EncodeTreadmillData(500, 20, 100)
	assert.Equal(t, []byte{
		0x0C, 0x00, // flags: total distance + inclination/ramp present
		0xF4, 0x01, // speed
		0x64, 0x00, 0x00, // distance (uint24)
		0x14, 0x00, // incline
		0x00, 0x00, // ramp angle
	}, frame)
}

func TestEncodeTreadmillData_NegativeIncline(t *testing.T) {
	frame := EncodeTreadmillData(0, -15, 0)
	assert.Equal(t, byte(0xF1), frame[7])
	assert.Equal(t, byte(0xFF), frame[8])
}

func TestEncodeTreadmillData_Uint24Distance(t *testing.T) {
	frame := EncodeTreadmillData(0, 0, 0x123456)
	assert.Equal(t, byte(0x56), frame[4])
	assert.Equal(t, byte(0x34), frame[5])
	assert.Equal(t, byte(0x12), frame[6])
	assert.Len(t, frame, 11)
}
