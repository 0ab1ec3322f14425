package engine

import (
	"github.com/spaghettifunk/lumen/engine/config"
)

type ApplicationConfig struct {
	// The application name used in windowing and as the Vulkan application name.
	Name   string
	Config *config.Config
}
