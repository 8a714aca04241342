package gui

import "fmt"

type Rotation int

const (
	Portrait Rotation = iota
	Landscape
)

func (r Rotation) String() string {
	switch r {
	case Portrait:
		return "PORTRAIT"
	case Landscape:
		return "LANDSCAPE"
	}
	return fmt.Sprintf("Rotation(%d)", int(r))
}

// Returns the rotation after rotating the device once.
func (r Rotation) Rotate() Rotation {
	if r == Portrait {
		return Landscape
	}
	return Portrait
}

func ParseRotation(s string) (Rotation, error) {
	switch s {
	case "", "portrait", "PORTRAIT":
		return Portrait, nil
	case "landscape", "LANDSCAPE":
		return Landscape, nil
	}
	return Portrait, fmt.Errorf("gui: unknown rotation %q", s)
}

type InternetStatus int

const (
	InternetUndefined InternetStatus = iota
	InternetEnabled
	InternetDisabled
)

func (i InternetStatus) String() string {
	switch i {
	case InternetUndefined:
		return "Undefined"
	case InternetEnabled:
		return "Enable"
	case InternetDisabled:
		return "Disable"
	}
	return fmt.Sprintf("InternetStatus(%d)", int(i))
}

func ParseInternetStatus(s string) (InternetStatus, error) {
	switch s {
	case "", "undefined", "Undefined":
		return InternetUndefined, nil
	case "enabled", "Enable", "enable":
		return InternetEnabled, nil
	case "disabled", "Disable", "disable":
		return InternetDisabled, nil
	}
	return InternetUndefined, fmt.Errorf("gui: unknown internet status %q", s)
}

// The device context a snapshot was captured in.
type Environment struct {
	Rotation Rotation
	Internet InternetStatus
}
