package flash

import (
	"fmt"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes one local serial device.
type PortInfo struct {
	Path         string `json:"path"`
	Manufacturer string `json:"manufacturer,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty"`
}

// PortLister enumerates local serial devices. Abstracted so handler tests
// do not need real hardware.
type PortLister interface {
	ListPorts() ([]PortInfo, error)
}

// SerialPortLister lists ports via the OS serial device enumerator.
type SerialPortLister struct{}

func (SerialPortLister) ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerating serial ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		p := PortInfo{Path: d.Name}
		if d.IsUSB {
			p.Manufacturer = d.Product
			p.SerialNumber = d.SerialNumber
		}
		ports = append(ports, p)
	}
	return ports, nil
}
