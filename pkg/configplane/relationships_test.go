package configplane

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRelationshipsRejectsUnknownName(t *testing.T) {
	reg := NewRegistry(nil)
	err := reg.validateRelationships(TypeService, map[string]Relationship{
		"bogus": {Data: []ResourceRef{{ID: "x", Type: string(TypeServer)}}},
	})
	require.Error(t, err)
}

func TestValidateRelationshipsRejectsTypeMismatch(t *testing.T) {
	reg := NewRegistry(nil)
	reg.objects[key{TypeServer, "srv1"}] = &Object{Type: TypeServer, Name: "srv1", active: true}

	err := reg.validateRelationships(TypeService, map[string]Relationship{
		"servers": {Data: []ResourceRef{{ID: "srv1", Type: string(TypeFilter)}}},
	})
	require.Error(t, err)
}

func TestValidateRelationshipsRejectsTypeWithNoRelationshipSupport(t *testing.T) {
	reg := NewRegistry(nil)
	err := reg.validateRelationships(TypeFilter, map[string]Relationship{
		"servers": {Data: []ResourceRef{{ID: "srv1", Type: string(TypeServer)}}},
	})
	require.Error(t, err)
}
