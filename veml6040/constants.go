package veml6040

const (
	VEML6040_ADDR uint16 = 0x10 ///< Fixed I2C address

	VEML6040_CONFIG_SD      byte = 0x01 ///< Shutdown. 1 = chip shutdown, 0 = color sensor enabled
	VEML6040_CONFIG_AF      byte = 0x02 ///< Force mode. 1 = manual (on demand) mode, 0 = auto mode
	VEML6040_CONFIG_TRIG    byte = 0x04 ///< Trigger a single measurement, only meaningful in manual mode
	VEML6040_CONFIG_IT_MASK byte = 0x70 ///< 0111 0000: integration time field
)

// VEML6040 Register map
const (
	VEML6040_REGISTER_CONFIG byte = 0x00 // Configuration register, written as a 16-bit word
	VEML6040_REGISTER_R_DATA byte = 0x08 // Red channel data, 16-bit little endian
	VEML6040_REGISTER_G_DATA byte = 0x09 // Green channel data, 16-bit little endian
	VEML6040_REGISTER_B_DATA byte = 0x0A // Blue channel data, 16-bit little endian
	VEML6040_REGISTER_W_DATA byte = 0x0B // White channel data, 16-bit little endian
)

// Count thresholds on the green channel used by the auto-exposure controller
const (
	VEML6040_DARK_THRESHOLD_SOFT   uint16 = 500    // below: switch to a longer integration time
	VEML6040_DARK_THRESHOLD_HARD   uint16 = 10     // below: reading is rejected
	VEML6040_BRIGHT_THRESHOLD_SOFT uint16 = 20_000 // above: switch to a shorter integration time
	VEML6040_BRIGHT_THRESHOLD_HARD uint16 = 64_000 // above: reading is rejected
)

// Channel identifies one of the four color detectors
type Channel byte

const (
	ChannelRed   Channel = Channel(VEML6040_REGISTER_R_DATA)
	ChannelGreen Channel = Channel(VEML6040_REGISTER_G_DATA)
	ChannelBlue  Channel = Channel(VEML6040_REGISTER_B_DATA)
	ChannelWhite Channel = Channel(VEML6040_REGISTER_W_DATA)
)

func (c Channel) String() string {
	switch c {
	case ChannelRed:
		return "red"
	case ChannelGreen:
		return "green"
	case ChannelBlue:
		return "blue"
	case ChannelWhite:
		return "white"
	default:
		return "unknown"
	}
}

// MeasurementMode selects between continuous and on-demand measurements
type MeasurementMode byte

const (
	MeasurementModeAuto   MeasurementMode = 0x00
	MeasurementModeManual MeasurementMode = 0x01
)

func MeasurementModeToString(mode MeasurementMode) string {
	switch mode {
	case MeasurementModeAuto:
		return "Auto"
	case MeasurementModeManual:
		return "Manual (force mode)"
	default:
		return "Unknown"
	}
}
