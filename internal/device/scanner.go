package device

// NullScanner reports no attached devices: every enabled profile falls
// back to role_id == 0 development-mode binding, or is skipped. Used when
// no platform-specific scanner is wired in (the normal case for this
// module, since real device enumeration is out of scope).
type NullScanner struct{}

func (NullScanner) Scan() (map[string]int, error) { return map[string]int{}, nil }

var _ Scanner = NullScanner{}
