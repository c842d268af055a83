package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dunglas/httpsfv"

	"storefront/internal/model"
)

// HeaderName carries the shopper's session to the gateway.
const HeaderName = "Storefront-Session"

// Header is the decoded Storefront-Session header.
type Header struct {
	Session model.Session
	Version string // Client version; empty means any
}

// ParseHeader decodes a Storefront-Session header (RFC 8941 Dictionary).
//
// Examples:
//   - token="abc", user="crio.do", v="v1.0.0"
//   - user="guest" (anonymous, no token)
//
// Unknown keys and parameters are ignored.
func ParseHeader(header string) (Header, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Header{}, errors.New("empty Storefront-Session header")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return Header{}, fmt.Errorf("invalid Storefront-Session header: %w", err)
	}

	var h Header
	if h.Session.Token, err = stringMember(dict, "token"); err != nil {
		return Header{}, err
	}
	if h.Session.Username, err = stringMember(dict, "user"); err != nil {
		return Header{}, err
	}
	if h.Version, err = stringMember(dict, "v"); err != nil {
		return Header{}, err
	}
	return h, nil
}

// FormatHeader encodes h as a Storefront-Session header value.
func FormatHeader(h Header) (string, error) {
	dict := httpsfv.NewDictionary()
	if h.Session.Token != "" {
		dict.Add("token", httpsfv.NewItem(h.Session.Token))
	}
	if h.Session.Username != "" {
		dict.Add("user", httpsfv.NewItem(h.Session.Username))
	}
	if h.Version != "" {
		dict.Add("v", httpsfv.NewItem(h.Version))
	}
	return httpsfv.Marshal(dict)
}

// stringMember returns the string value of key, or "" when absent.
func stringMember(dict *httpsfv.Dictionary, key string) (string, error) {
	member, ok := dict.Get(key)
	if !ok {
		return "", nil
	}

	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", fmt.Errorf("%s value must be an item", key)
	}

	s, ok := item.Value.(string)
	if !ok {
		return "", fmt.Errorf("%s value must be a string", key)
	}
	return s, nil
}
