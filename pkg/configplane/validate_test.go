package configplane

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateNameRejectsBadCharacters(t *testing.T) {
	require.NoError(t, ValidateName(TypeServer, "db1.prod-east_1"))
	require.Error(t, ValidateName(TypeServer, "db 1"))
	require.Error(t, ValidateName(TypeServer, ""))
}

func TestValidateNameRejectsDoubleAtForUsers(t *testing.T) {
	require.Error(t, ValidateName(TypeUser, "@@root"))
	require.NoError(t, ValidateName(TypeUser, "app_user"))
}

func TestValidateCreateRequiresParameters(t *testing.T) {
	doc := &Document{Data: &Resource{ID: "srv1", Type: string(TypeServer)}}
	err := ValidateCreate(TypeServer, doc)
	require.Error(t, err)
}

func TestValidateCreateRequiresRouterOnService(t *testing.T) {
	doc := &Document{Data: &Resource{
		ID:         "svc1",
		Type:       string(TypeService),
		Attributes: Attributes{Parameters: map[string]interface{}{}},
	}}
	err := ValidateCreate(TypeService, doc)
	require.Error(t, err)

	doc.Data.Attributes.Router = "readwritesplit"
	require.NoError(t, ValidateCreate(TypeService, doc))
}

func TestValidateCreateRejectsTypeMismatch(t *testing.T) {
	doc := &Document{Data: &Resource{
		ID:         "srv1",
		Type:       string(TypeService),
		Attributes: Attributes{Parameters: map[string]interface{}{}},
	}}
	err := ValidateCreate(TypeServer, doc)
	require.Error(t, err)
}
