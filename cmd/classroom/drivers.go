package main

// Synthetic capture drivers, so device listing works on hosts without
// cameras or microphones.
import (
	_ "github.com/pion/mediadevices/pkg/driver/audiotest"
	_ "github.com/pion/mediadevices/pkg/driver/videotest"
)
