package session

import (
	"fmt"

	"golang.org/x/mod/semver"
)

// ClientVersion is the newest client protocol this build understands.
const ClientVersion = "v1.0.0"

// CodeVersionUnsupported is returned when a client is newer than the gateway.
const CodeVersionUnsupported = "version_unsupported"

// VersionError is returned when a client requires a newer gateway.
type VersionError struct {
	Code          string
	Message       string
	ClientVersion string
	ServerVersion string
}

func (e *VersionError) Error() string {
	return e.Message
}

// CheckVersion verifies that server can serve a client speaking client.
// An empty client version is accepted. Versions are semver with or without
// the leading "v".
func CheckVersion(server, client string) error {
	if client == "" {
		return nil
	}

	sv := normalizeVersion(server)
	cv := normalizeVersion(client)
	if !semver.IsValid(cv) {
		return &VersionError{
			Code:          CodeVersionUnsupported,
			Message:       fmt.Sprintf("client version %q is not a valid version", client),
			ClientVersion: client,
			ServerVersion: server,
		}
	}

	if semver.Compare(cv, sv) > 0 {
		return &VersionError{
			Code:          CodeVersionUnsupported,
			Message:       fmt.Sprintf("client requires version %s, gateway supports %s", client, server),
			ClientVersion: client,
			ServerVersion: server,
		}
	}
	return nil
}

// normalizeVersion adds "v" prefix if needed for semver parsing.
func normalizeVersion(v string) string {
	if v == "" {
		return "v0.0.0"
	}
	if v[0] != 'v' {
		return "v" + v
	}
	return v
}
