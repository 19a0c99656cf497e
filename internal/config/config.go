// Package config holds the deploy-time settings of the GPIO interrupt bridge:
// which lines carry the LED and the button, the debounce window, and the
// shape of the status device node.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Defaults match the board the bridge was first deployed on.
const (
	DefaultLEDPin         = 1016
	DefaultButtonPin      = 1020
	DefaultDebounceMs     = 200
	DefaultBufferCapacity = 64
	DefaultDeviceName     = "GPIO_INTR_STATUS"
	DefaultClassName      = "AGE_CUSTOM"
)

// Config is the full set of recognized options.
type Config struct {
	LEDPin         int    `json:"led_pin"`         // output line id
	ButtonPin      int    `json:"button_pin"`      // input line id
	DebounceMs     int    `json:"debounce_ms"`     // suppression window on the button line
	BufferCapacity int    `json:"buffer_capacity"` // max rendered status size, bytes
	DeviceName     string `json:"device_name"`
	ClassName      string `json:"class_name"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		LEDPin:         DefaultLEDPin,
		ButtonPin:      DefaultButtonPin,
		DebounceMs:     DefaultDebounceMs,
		BufferCapacity: DefaultBufferCapacity,
		DeviceName:     DefaultDeviceName,
		ClassName:      DefaultClassName,
	}
}

// Debounce returns the debounce window as a duration.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var errs []error
	if c.LEDPin < 0 {
		errs = append(errs, fmt.Errorf("config: led_pin %d is negative", c.LEDPin))
	}
	if c.ButtonPin < 0 {
		errs = append(errs, fmt.Errorf("config: button_pin %d is negative", c.ButtonPin))
	}
	if c.LEDPin == c.ButtonPin {
		errs = append(errs, fmt.Errorf("config: led_pin and button_pin are both %d", c.LEDPin))
	}
	if c.DebounceMs < 0 {
		errs = append(errs, fmt.Errorf("config: debounce_ms %d is negative", c.DebounceMs))
	}
	if c.BufferCapacity <= 0 {
		errs = append(errs, fmt.Errorf("config: buffer_capacity must be positive, got %d", c.BufferCapacity))
	}
	if c.DeviceName == "" {
		errs = append(errs, errors.New("config: device_name is empty"))
	}
	return errors.Join(errs...)
}
