package transport

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Mode selects how credentials reach the log service.
type Mode string

const (
	// ModeConnectionString authenticates with an embedded shared key.
	ModeConnectionString Mode = "connection-string"
	// ModeIdentity relies on ambient identity credentials; callers must
	// provide the broker endpoints explicitly.
	ModeIdentity Mode = "identity-credential"
)

// Config describes how to reach the log service. Exactly one of
// ConnectionString (ModeConnectionString) or Brokers (ModeIdentity) is used.
type Config struct {
	Mode             Mode
	ConnectionString string
	Brokers          []string

	// EntityPath names the event stream (topic). Overrides the EntityPath
	// embedded in a connection string.
	EntityPath string
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeConnectionString:
		if c.ConnectionString == "" {
			return errors.New("transport: connection string required in connection-string mode")
		}
	case ModeIdentity:
		if len(c.Brokers) == 0 {
			return errors.New("transport: brokers required in identity-credential mode")
		}
		if c.EntityPath == "" {
			return errors.New("transport: entity path required in identity-credential mode")
		}
	default:
		return fmt.Errorf("transport: unknown connection mode %q", c.Mode)
	}
	return nil
}

// ConnectionString is the parsed form of
// "Endpoint=sb://host/;SharedAccessKeyName=name;SharedAccessKey=key;EntityPath=stream".
type ConnectionString struct {
	Endpoint   string
	Host       string
	KeyName    string
	Key        string
	EntityPath string
}

// ParseConnectionString splits a semicolon-delimited connection string.
// Endpoint, SharedAccessKeyName and SharedAccessKey are mandatory.
func ParseConnectionString(s string) (ConnectionString, error) {
	var cs ConnectionString

	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, found := strings.Cut(part, "=")
		if !found {
			return ConnectionString{}, fmt.Errorf("transport: malformed connection string segment %q", part)
		}
		switch k {
		case "Endpoint":
			cs.Endpoint = v
		case "SharedAccessKeyName":
			cs.KeyName = v
		case "SharedAccessKey":
			cs.Key = v
		case "EntityPath":
			cs.EntityPath = v
		}
	}

	if cs.Endpoint == "" {
		return ConnectionString{}, errors.New("transport: connection string missing Endpoint")
	}
	if cs.KeyName == "" || cs.Key == "" {
		return ConnectionString{}, errors.New("transport: connection string missing shared access credentials")
	}

	u, err := url.Parse(cs.Endpoint)
	if err != nil {
		return ConnectionString{}, fmt.Errorf("transport: invalid endpoint %q: %w", cs.Endpoint, err)
	}
	cs.Host = u.Host
	if cs.Host == "" {
		cs.Host = strings.TrimSuffix(u.Path, "/")
	}
	if cs.Host == "" {
		return ConnectionString{}, fmt.Errorf("transport: endpoint %q has no host", cs.Endpoint)
	}

	return cs, nil
}
