// Package config provides configuration structures and utilities for
// autosubnuclei. It defines scan options, default values, XDG directory
// helpers, and the optional YAML settings file that carries notification
// and default-scan preferences.
package config
