package keys

// AnalogSource supplies one raw sample per key on demand. Read must be
// synchronous with bounded latency.
type AnalogSource interface {
	Read(id int) (uint16, error)
}

// HID receives debounced key edges. The Resolver only calls it on genuine
// transitions, but implementations should tolerate redundant calls.
type HID interface {
	Press(id int)
	Release(id int)
}

// Volts converts a raw level into volts for a converter with the given
// reference voltage and resolution in bits.
func Volts(level uint16, vref float32, bits uint8) float32 {
	return float32(level) * vref / float32(uint32(1)<<bits)
}
