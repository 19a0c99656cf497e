package hardware

import (
	"fmt"
	"strconv"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphResolver initializes the periph.io host drivers and returns a
// Resolver backed by gpioreg. Pins are looked up by number first (which
// covers sysfs/chardev global numbers) and then by BCM name.
func PeriphResolver() (Resolver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio: host init failed: %w", err)
	}
	return func(pin int) gpio.PinIO {
		if p := gpioreg.ByName(strconv.Itoa(pin)); p != nil {
			return p
		}
		return gpioreg.ByName(fmt.Sprintf("GPIO%d", pin))
	}, nil
}
