// Package config loads Hangar configuration from environment variables.
//
// All variables use the HANGAR_ prefix, with one exception: DISABLE_SIGNUPS,
// which is shared with the rest of the platform and keeps its historical name.
package config
