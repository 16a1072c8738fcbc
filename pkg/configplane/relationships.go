package configplane

// relationshipRules names, per object type, which relationship names are
// required and which object type they must point to, per spec section
// 4.H step 3 ("relationships.servers.data[].id, etc., ensuring every
// referenced object exists and is of the correct type").
var relationshipRules = map[ObjectType]map[string]ObjectType{
	TypeService: {"servers": TypeServer, "monitors": TypeMonitor, "filters": TypeFilter},
	TypeListener: {"services": TypeService},
	TypeMonitor:  {"servers": TypeServer},
}

// validateRelationships checks every relationship named on r against
// rules for objType, and every referenced id against what exists in
// reg's registry.
func (reg *Registry) validateRelationships(objType ObjectType, rels map[string]Relationship) error {
	rules, ok := relationshipRules[objType]
	if !ok && len(rels) > 0 {
		return errConfig("%s objects do not accept relationships", objType)
	}
	for name, rel := range rels {
		wantType, known := rules[name]
		if !known {
			return errConfig("unknown relationship %q for %s", name, objType)
		}
		for _, ref := range rel.Data {
			if ref.Type != string(wantType) {
				return errConfig("relationship %q entry has type %q, want %q", name, ref.Type, wantType)
			}
			if _, exists := reg.objects[key{wantType, ref.ID}]; !exists {
				return errConfig("relationship %q references nonexistent %s %q", name, wantType, ref.ID)
			}
		}
	}
	return nil
}
