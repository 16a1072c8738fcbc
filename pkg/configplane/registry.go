package configplane

import (
	"sync"
)

type key struct {
	Type ObjectType
	Name string
}

// Object is one runtime-config entity: the decoded, validated form of a
// JSON:API resource, independent of whichever live struct in
// pkg/session/pkg/monitor it ends up materializing (that materialization
// is an Applier's job).
type Object struct {
	Type          ObjectType
	Name          string
	Attributes    Attributes
	Relationships map[string]Relationship

	active   bool
	refCount int
}

// Active reports whether a destroy has been requested on this object;
// spec section 5's resource lifecycle keeps the record around with
// Active()==false until the last reference drops.
func (o *Object) Active() bool { return o.active }

// Applier materializes a validated configuration change against the
// live object graph (pkg/session.Server, pkg/monitor.Monitor, ...). The
// registry calls it only after validation, diffing and relationship
// checks pass, and rolls the registry's own record back if it fails —
// spec section 4.H step 4's "applies the change atomically with
// per-object rollback on failure of a later step".
type Applier interface {
	Create(obj *Object) error
	Alter(obj *Object, changed map[string]interface{}) error
	Destroy(objType ObjectType, name string) error
}

// Registry is the process-wide runtime-config lock of spec section 5:
// "Process-wide with a single mutex: the list of services, servers,
// listeners, monitors, filters." One Registry covers all five object
// types, matching that single-lock design.
type Registry struct {
	mu        sync.Mutex
	objects   map[key]*Object
	whitelist map[ObjectType]Whitelist
	appliers  map[ObjectType]Applier
	persist   *Persister // nil disables on-disk persistence (e.g. in tests)
}

// NewRegistry returns an empty registry using the default parameter
// whitelists. Callers register one Applier per object type they support
// via RegisterApplier before calling Create/Alter/Destroy for that type.
func NewRegistry(persist *Persister) *Registry {
	return &Registry{
		objects:   make(map[key]*Object),
		whitelist: DefaultWhitelists,
		appliers:  make(map[ObjectType]Applier),
		persist:   persist,
	}
}

func (reg *Registry) RegisterApplier(objType ObjectType, a Applier) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.appliers[objType] = a
}

// Create runs spec section 4.H's full create pipeline: validate, check
// relationships, apply, persist — rolling back the in-memory record if
// apply or persist fails.
func (reg *Registry) Create(objType ObjectType, doc *Document) *ErrorsDocument {
	errs := &ErrorsDocument{}
	if err := ValidateCreate(objType, doc); err != nil {
		errs.add(err.Error())
		return errs
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	k := key{objType, doc.Data.ID}
	if existing, ok := reg.objects[k]; ok && existing.active {
		errs.add(objType.String() + " " + doc.Data.ID + " already exists")
		return errs
	}
	if err := reg.validateRelationships(objType, doc.Data.Relationships); err != nil {
		errs.add(err.Error())
		return errs
	}

	obj := &Object{
		Type:          objType,
		Name:          doc.Data.ID,
		Attributes:    doc.Data.Attributes,
		Relationships: doc.Data.Relationships,
		active:        true,
	}

	if a, ok := reg.appliers[objType]; ok {
		if err := a.Create(obj); err != nil {
			errs.add(err.Error())
			return errs
		}
	}
	if reg.persist != nil {
		if err := reg.persist.Save(obj); err != nil {
			if a, ok := reg.appliers[objType]; ok {
				_ = a.Destroy(objType, obj.Name) // rollback: undo the apply we just committed
			}
			errs.add(err.Error())
			return errs
		}
	}

	reg.objects[k] = obj
	reg.bumpRefs(objType, doc.Data.Relationships, +1)
	return nil
}

// Alter runs spec section 4.H's alter pipeline: diff against the
// whitelist, validate any new relationships, apply, persist.
func (reg *Registry) Alter(objType ObjectType, name string, doc *Document) *ErrorsDocument {
	errs := &ErrorsDocument{}
	reg.mu.Lock()
	defer reg.mu.Unlock()

	obj, ok := reg.objects[key{objType, name}]
	if !ok || !obj.active {
		errs.add(objType.String() + " " + name + " does not exist")
		return errs
	}
	if doc == nil || doc.Data == nil || doc.Data.Attributes.Parameters == nil {
		errs.add("data.attributes.parameters is required")
		return errs
	}

	wl := reg.whitelist[objType]
	changed, err := Diff(objType, obj.Attributes.Parameters, doc.Data.Attributes.Parameters, wl)
	if err != nil {
		errs.add(err.Error())
		return errs
	}
	if len(doc.Data.Relationships) > 0 {
		if err := reg.validateRelationships(objType, doc.Data.Relationships); err != nil {
			errs.add(err.Error())
			return errs
		}
	}
	if len(changed) == 0 {
		return nil // nothing to do
	}

	prevParams := obj.Attributes.Parameters
	prevRels := obj.Relationships
	obj.Attributes.Parameters = mergeParams(prevParams, changed)
	if len(doc.Data.Relationships) > 0 {
		obj.Relationships = doc.Data.Relationships
	}

	if a, ok := reg.appliers[objType]; ok {
		if err := a.Alter(obj, changed); err != nil {
			obj.Attributes.Parameters = prevParams // rollback in-memory record
			obj.Relationships = prevRels
			errs.add(err.Error())
			return errs
		}
	}
	if reg.persist != nil {
		if err := reg.persist.Save(obj); err != nil {
			obj.Attributes.Parameters = prevParams
			obj.Relationships = prevRels
			errs.add(err.Error())
			return errs
		}
	}
	return nil
}

// Destroy runs spec section 4.H's destroy pipeline and spec section 5's
// reference-counted deferred free: the object is marked inactive and
// unlinked immediately, but the in-memory record is only dropped once
// ReleaseRef brings refCount to zero (e.g. the last backend session
// referencing a server has closed).
func (reg *Registry) Destroy(objType ObjectType, name string) *ErrorsDocument {
	errs := &ErrorsDocument{}
	reg.mu.Lock()
	defer reg.mu.Unlock()

	k := key{objType, name}
	obj, ok := reg.objects[k]
	if !ok || !obj.active {
		errs.add(objType.String() + " " + name + " does not exist")
		return errs
	}

	if a, ok := reg.appliers[objType]; ok {
		if err := a.Destroy(objType, name); err != nil {
			errs.add(err.Error())
			return errs
		}
	}
	if reg.persist != nil {
		if err := reg.persist.Unlink(objType, name); err != nil {
			errs.add(err.Error())
			return errs
		}
	}

	obj.active = false
	reg.bumpRefs(objType, obj.Relationships, -1)
	if obj.refCount <= 0 {
		delete(reg.objects, k)
	}
	return nil
}

// ReleaseRef drops one live reference to objType/name (a closed backend
// session, a stopped monitor) and removes the record if it was already
// marked inactive and has no references left.
func (reg *Registry) ReleaseRef(objType ObjectType, name string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	k := key{objType, name}
	obj, ok := reg.objects[k]
	if !ok {
		return
	}
	obj.refCount--
	if !obj.active && obj.refCount <= 0 {
		delete(reg.objects, k)
	}
}

// Get returns a snapshot copy of one object's current attributes, or
// false if it does not exist or has been destroyed.
func (reg *Registry) Get(objType ObjectType, name string) (Object, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	obj, ok := reg.objects[key{objType, name}]
	if !ok || !obj.active {
		return Object{}, false
	}
	return *obj, true
}

// List returns a snapshot of every active object of objType.
func (reg *Registry) List(objType ObjectType) []Object {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	var out []Object
	for k, obj := range reg.objects {
		if k.Type == objType && obj.active {
			out = append(out, *obj)
		}
	}
	return out
}

func (reg *Registry) bumpRefs(objType ObjectType, rels map[string]Relationship, delta int) {
	for _, rel := range rels {
		for _, ref := range rel.Data {
			if target, ok := reg.objects[key{ObjectType(ref.Type), ref.ID}]; ok {
				target.refCount += delta
			}
		}
	}
}

func mergeParams(base map[string]interface{}, changed map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(changed))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range changed {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

func (t ObjectType) String() string { return string(t) }
