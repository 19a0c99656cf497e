// Package models defines the JSON shapes served by the HTTP API.
package models

// Status is a snapshot of the bridge for API clients and SSE subscribers.
type Status struct {
	PressCount  uint64 `json:"press_count"`
	LEDOn       bool   `json:"led_on"`
	LEDFailures uint64 `json:"led_failures"`
	Opens       uint64 `json:"opens"`
	Releases    uint64 `json:"releases"`
	Device      string `json:"device"` // logical path of the status node
	LEDPin      int    `json:"led_pin"`
	ButtonPin   int    `json:"button_pin"`
	DebounceMs  int    `json:"debounce_ms"`
	Running     bool   `json:"running"`
}

// Node describes a registered device node.
type Node struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Class    string `json:"class"`
	Capacity int    `json:"capacity"`
}
