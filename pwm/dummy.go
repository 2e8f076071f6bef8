package pwm

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/physic"
)

type (
	// Dummy is a PWM that only records the pulses it is given. It is used for dry runs without hardware
	Dummy struct {
		mu        sync.Mutex
		frequency physic.Frequency
		pulses    map[uint8]time.Duration
		writes    int
		logger    logrus.FieldLogger
	}
)

// NewDummy creates a new Dummy PWM
func NewDummy(logger logrus.FieldLogger) *Dummy {
	return &Dummy{
		pulses: make(map[uint8]time.Duration),
		logger: logger,
	}
}

// Configure records the frequency
func (d *Dummy) Configure(frequency physic.Frequency) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frequency = frequency
	return nil
}

// SetPulse records the pulse width of the channel
func (d *Dummy) SetPulse(channel uint8, pulse time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pulses[channel] = pulse
	d.writes++

	if d.logger != nil {
		d.logger.WithFields(logrus.Fields{
			"channel": channel,
			"pulse":   pulse,
		}).Debug("Dummy PWM pulse")
	}
	return nil
}

// Pulse returns the last pulse width written to the channel
func (d *Dummy) Pulse(channel uint8) (time.Duration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pulse, ok := d.pulses[channel]
	return pulse, ok
}

// Frequency returns the configured frequency
func (d *Dummy) Frequency() physic.Frequency {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frequency
}

// Writes returns the number of pulse writes so far
func (d *Dummy) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}
