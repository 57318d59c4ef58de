package indicator

import (
	"fmt"
	"time"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/gpio"
	"github.com/cjeanneret/SnapGo/internal/logic/capture"
)

// Indicator drives an LED wired to a GPIO pin (active HIGH) and blinks it
// once per accepted snapshot. Useful on headless Pi setups to see the
// collector is alive without opening the metrics page.
type Indicator struct {
	gpio  gpio.Driver
	pin   int
	pulse time.Duration
	sleep func(time.Duration)
}

// New configures pin as an output and turns the LED off.
func New(g gpio.Driver, pin int, pulse time.Duration) (*Indicator, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("indicator: invalid pin %d", pin)
	}
	if err := g.SetupOutput(pin); err != nil {
		return nil, fmt.Errorf("indicator: setup pin %d: %w", pin, err)
	}
	if err := g.WritePin(pin, gpio.Low); err != nil {
		return nil, fmt.Errorf("indicator: reset pin %d: %w", pin, err)
	}
	return &Indicator{gpio: g, pin: pin, pulse: pulse, sleep: time.Sleep}, nil
}

// Pulse turns the LED on for the pulse duration, then off.
// Blocks for the pulse duration.
func (i *Indicator) Pulse() error {
	if err := i.gpio.WritePin(i.pin, gpio.High); err != nil {
		return err
	}
	i.sleep(i.pulse)
	return i.gpio.WritePin(i.pin, gpio.Low)
}

// Report pulses the LED for accepted outcomes only.
func (i *Indicator) Report(out capture.Outcome) {
	if out.Result != capture.Accepted {
		return
	}
	debug.Trace("Indicator: pulse pin %d for %v", i.pin, i.pulse)
	if err := i.Pulse(); err != nil {
		debug.Error(fmt.Errorf("indicator pulse: %w", err))
	}
}
