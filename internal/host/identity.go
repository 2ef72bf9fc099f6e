package host

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/dunglas/httpsfv"
	"golang.org/x/mod/semver"

	"shop-miniapp/internal/model"
)

// IdentityHeader carries the host user as an RFC 8941 Dictionary.
//
// Examples:
//   - user=42, name="Ann Lee", version="7.2"
//   - user=42, first_name="Ann", last_name="Lee"
//
// String values are percent-encoded so non-ASCII names survive the
// sf-string grammar. Params on members are ignored.
const IdentityHeader = "Miniapp-Host"

// SessionHeader carries a guest's session token. The server sets it on
// responses to guests; the web view sends it back on every call. Identified
// users are keyed by user id and never need it.
const SessionHeader = "Miniapp-Session"

// MinPopupVersion is the first host platform version with native popups.
// Older hosts only get plain alerts.
const MinPopupVersion = "6.2"

// ParseIdentityHeader extracts the host user from the IdentityHeader value.
// Returns error if the header is empty, malformed, or has no user id.
func ParseIdentityHeader(header string) (model.Identity, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return model.Identity{}, errors.New("empty identity header")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return model.Identity{}, fmt.Errorf("invalid identity header: %w", err)
	}

	var id model.Identity

	member, ok := dict.Get("user")
	if !ok {
		return model.Identity{}, errors.New("user key not found in identity header")
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return model.Identity{}, errors.New("user value must be an item")
	}
	userID, ok := item.Value.(int64)
	if !ok {
		return model.Identity{}, errors.New("user value must be an integer")
	}
	id.UserID = userID

	name := stringMember(dict, "name")
	if name == "" {
		name = model.DisplayNameOf(stringMember(dict, "first_name"), stringMember(dict, "last_name"))
	}
	if name == "" {
		name = "Guest"
	}
	id.DisplayName = name

	if member, ok := dict.Get("version"); ok {
		if item, ok := member.(httpsfv.Item); ok {
			switch v := item.Value.(type) {
			case string:
				id.PlatformVersion = v
			case float64:
				id.PlatformVersion = strconv.FormatFloat(v, 'f', -1, 64)
			case int64:
				id.PlatformVersion = strconv.FormatInt(v, 10)
			}
		}
	}

	return id, nil
}

// FormatIdentityHeader renders id as an IdentityHeader value.
func FormatIdentityHeader(id model.Identity) (string, error) {
	dict := httpsfv.NewDictionary()
	dict.Add("user", httpsfv.NewItem(id.UserID))
	if id.DisplayName != "" {
		dict.Add("name", httpsfv.NewItem(url.PathEscape(id.DisplayName)))
	}
	if id.PlatformVersion != "" {
		dict.Add("version", httpsfv.NewItem(id.PlatformVersion))
	}
	return httpsfv.Marshal(dict)
}

// SupportsPopup reports whether a host at the given platform version can show
// native popups. Unknown or malformed versions fall back to alerts.
func SupportsPopup(version string) bool {
	v := normalizeVersion(version)
	if !semver.IsValid(v) {
		return false
	}
	return semver.Compare(v, normalizeVersion(MinPopupVersion)) >= 0
}

// normalizeVersion adds "v" prefix if needed for semver parsing.
func normalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if v[0] != 'v' {
		return "v" + v
	}
	return v
}

func stringMember(dict *httpsfv.Dictionary, key string) string {
	member, ok := dict.Get(key)
	if !ok {
		return ""
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return ""
	}
	s, _ := item.Value.(string)
	if unescaped, err := url.PathUnescape(s); err == nil {
		s = unescaped
	}
	return strings.TrimSpace(s)
}
