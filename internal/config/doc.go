// Package config loads the AgentHub daemon configuration from a JSON file and
// fills in defaults for every section the operator leaves empty.
package config
