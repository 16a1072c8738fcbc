package configplane

import (
	"regexp"
	"strings"
)

var nameRE = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidateName implements spec section 4.H step 1's name rule: the
// regex [A-Za-z0-9_.-]+, and no "@@" prefix for user objects (MariaDB
// reserves that prefix for internal accounts).
func ValidateName(objType ObjectType, name string) error {
	if name == "" {
		return errConfig("data.id is required")
	}
	if !nameRE.MatchString(name) {
		return errConfig("invalid name %q: must match [A-Za-z0-9_.-]+", name)
	}
	if objType == TypeUser && strings.HasPrefix(name, "@@") {
		return errConfig("invalid user name %q: @@ prefix is reserved", name)
	}
	return nil
}

// ValidateCreate implements spec section 4.H step 1's required-field and
// field-type checks for a create request.
func ValidateCreate(objType ObjectType, doc *Document) error {
	if !objType.valid() {
		return errConfig("unknown object type %q", objType)
	}
	if doc == nil || doc.Data == nil {
		return errConfig("data is required")
	}
	r := doc.Data
	if r.Type != string(objType) {
		return errConfig("data.type %q does not match endpoint type %q", r.Type, objType)
	}
	if err := ValidateName(objType, r.ID); err != nil {
		return err
	}
	if r.Attributes.Parameters == nil {
		return errConfig("data.attributes.parameters is required")
	}
	switch objType {
	case TypeService:
		if r.Attributes.Router == "" {
			return errConfig("data.attributes.router is required for a service")
		}
	case TypeListener:
		if r.Attributes.Protocol == "" {
			return errConfig("data.attributes.protocol is required for a listener")
		}
	case TypeMonitor, TypeFilter:
		if r.Attributes.Module == "" {
			return errConfig("data.attributes.module is required for a %s", objType)
		}
	}
	return nil
}
