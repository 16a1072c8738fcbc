package configplane

// ObjectType is one of the five runtime object kinds spec section 4.H
// lists: servers, services, listeners, monitors, filters.
type ObjectType string

const (
	TypeServer   ObjectType = "servers"
	TypeService  ObjectType = "services"
	TypeListener ObjectType = "listeners"
	TypeMonitor  ObjectType = "monitors"
	TypeFilter   ObjectType = "filters"
	TypeUser     ObjectType = "users" // spec section 6's /v1/users surface; name validation rejects "@@" here specifically
)

func (t ObjectType) valid() bool {
	switch t {
	case TypeServer, TypeService, TypeListener, TypeMonitor, TypeFilter, TypeUser:
		return true
	default:
		return false
	}
}
