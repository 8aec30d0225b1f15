package mqtt

// CategoryIR is the only command category the bridge serves.
const CategoryIR = "ir"

// Topics builds bridge topics under a configured prefix.
//
// The prefix is used verbatim and is expected to carry its own trailing
// separator, so "home/" yields "home/<id>/ir/command" while "home" yields
// "home<id>/ir/command".
//
//	topics := mqtt.Topics{Prefix: "home/"}
//	t := topics.DeviceCommand("dev-1", mqtt.CategoryIR)
//	// Returns: "home/dev-1/ir/command"
type Topics struct {
	Prefix string
}

// DeviceCommand returns the command topic for one device and category.
//
// Example: home/dev-1/ir/command
func (t Topics) DeviceCommand(deviceID, category string) string {
	return t.Prefix + deviceID + "/" + category + "/command"
}
