package httpexec

// DefaultOperations returns the operations a stock step executor server
// implements. Executors with a different surface can override the set
// with WithOperations.
func DefaultOperations() []string {
	return []string{
		"app.launch",
		"app.stop",
		"call.dial",
		"call.end",
		"contact.add",
		"device.info",
		"device.reboot",
		"media.play",
		"sms.send",
		"url.open",
	}
}
