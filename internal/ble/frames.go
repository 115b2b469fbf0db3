package ble

import "encoding/binary"

// Bluetooth SIG 16-bit UUIDs for the simulated profiles.
const (
	ServiceUUIDHeartRate         uint16 = 0x180D
	CharUUIDHeartRateMeasurement uint16 = 0x2A37
	CharUUIDBodySensorLocation   uint16 = 0x2A38

	ServiceUUIDBattery   uint16 = 0x180F
	CharUUIDBatteryLevel uint16 = 0x2A19

	ServiceUUIDFitnessMachine     uint16 = 0x1826
	CharUUIDFitnessMachineFeature uint16 = 0x2ACC
	CharUUIDTreadmillData         uint16 = 0x2ACD
)

// Treadmill Data flags: bit 2 Total Distance present, bit 3 Inclination and
// Ramp Angle present.
const treadmillDataFlags uint16 = 0x000C

// Body Sensor Location value: chest.
const bodySensorLocationChest byte = 0x01

// Fitness Machine Feature value advertised by the treadmill profile.
var fitnessMachineFeature = []byte{0x0B, 0x20, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

// EncodeHeartRateMeasurement builds a Heart Rate Measurement frame:
// flags byte 0x00 (uint8 value format, no contact status), then bpm.
func EncodeHeartRateMeasurement(bpm uint8) []byte {
	return []byte{0x00, bpm}
}

// EncodeBatteryLevel builds a Battery Level frame: a single percent byte.
func EncodeBatteryLevel(level uint8) []byte {
	if level > 100 {
		level = 100
	}
	return []byte{level}
}

// EncodeTreadmillData builds an 11-byte FTMS Treadmill Data frame.
// All multi-byte fields are little-endian: flags, instantaneous speed in
// 0.01 km/h units, total distance as uint24 meters, inclination in 0.1%
// units, and a ramp angle fixed at zero.
func EncodeTreadmillData(speed uint16, incline int16, distance uint32) []byte {
	data := make([]byte, 11)

	binary.LittleEndian.PutUint16(data[0:2], treadmillDataFlags)
	binary.LittleEndian.PutUint16(data[2:4], speed)

	data[4] = byte(distance)
	data[5] = byte(distance >> 8)
	data[6] = byte(distance >> 16)

	binary.LittleEndian.PutUint16(data[7:9], uint16(incline))

	// Ramp angle, fixed at 0.
	data[9] = 0x00
	data[10] = 0x00

	return data
}
